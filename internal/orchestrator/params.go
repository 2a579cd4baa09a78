package orchestrator

import (
	"github.com/bobarin/vidguard/internal/editops"
	"github.com/bobarin/vidguard/internal/mediatoolbox"
)

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func floatParam(params map[string]any, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func boolParam(params map[string]any, key string) bool {
	v, _ := params[key].(bool)
	return v
}

func stringSliceParam(params map[string]any, key string) []string {
	raw, ok := params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringMapParam(params map[string]any, key string) map[string]string {
	raw, ok := params[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func timeRangeFrom(params map[string]any) editops.TimeRange {
	_, hasStart := params["start"]
	_, hasEnd := params["end"]
	if !hasStart && !hasEnd {
		return editops.TimeRange{}
	}
	return editops.TimeRange{Start: floatParam(params, "start"), End: floatParam(params, "end"), Set: true}
}

func blurRequestFrom(params map[string]any) editops.BlurRequest {
	effect := mediatoolbox.MaskEffectBlur
	if stringParam(params, "effect") == string(mediatoolbox.MaskEffectPixelate) {
		effect = mediatoolbox.MaskEffectPixelate
	}
	return editops.BlurRequest{
		Prompt:   stringParam(params, "prompt"),
		Strength: intParam(params, "strength"),
		Effect:   effect,
		Range:    timeRangeFrom(params),
	}
}

func generativeRequestFrom(params map[string]any) editops.GenerativeReplaceRequest {
	return editops.GenerativeReplaceRequest{
		Prompt:            stringParam(params, "prompt"),
		ReferenceImageURL: stringParam(params, "referenceImageURL"),
		Seconds:           floatParam(params, "seconds"),
		Range:             timeRangeFrom(params),
		AspectRatio:       stringParam(params, "aspectRatio"),
	}
}

func beepRequestFrom(params map[string]any) editops.BeepRequest {
	return editops.BeepRequest{CustomWords: stringSliceParam(params, "customWords")}
}

func dubRequestFrom(params map[string]any) editops.DubRequest {
	voice := editops.VoiceSelection{
		Clone:         stringParam(params, "voice") == "clone",
		PresetVoiceID: stringParam(params, "voice"),
		SampleStart:   floatParam(params, "voiceSampleStart"),
		SampleEnd:     floatParam(params, "voiceSampleEnd"),
	}
	return editops.DubRequest{
		CustomWords:        stringSliceParam(params, "customWords"),
		CustomReplacements: stringMapParam(params, "customReplacements"),
		Voice:              voice,
	}
}
