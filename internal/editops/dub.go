package editops

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bobarin/vidguard/internal/clients"
	"github.com/bobarin/vidguard/internal/mediatoolbox"
	"github.com/bobarin/vidguard/internal/models"
)

const minVoiceSampleSeconds = 10.0

// VoiceSelection picks a preset voice id outright, or asks Dub to clone a
// fresh voice from a window of the source audio.
type VoiceSelection struct {
	Clone         bool
	PresetVoiceID string
	SampleStart   float64
	SampleEnd     float64
}

// DubRequest is the Dub Profanity operation's input.
type DubRequest struct {
	CustomWords        []string
	CustomReplacements map[string]string
	Voice              VoiceSelection
}

// Dub runs the Dub Profanity operation: detect profanity, cluster into
// phrases, resolve a voice (preset or cloned), synthesize and time-stretch a
// replacement line per phrase, then mix the result over the muted original
// audio. Any cloned voice is deleted unconditionally once the operation
// completes, successfully or not.
func Dub(ctx context.Context, deps Deps, analyzer clients.AnalyzerClient, tts clients.TTSClient, job *models.Job, req DubRequest, phraseGap, dubGain, mutePadding float64) (string, error) {
	job.Mu.Lock()
	source := job.OutputPath
	if source == "" {
		source = job.SourceVideoPath
	}
	job.Mu.Unlock()

	matches, err := analyzer.AnalyzeAudio(ctx, source, req.CustomWords)
	if err != nil {
		return "", fmt.Errorf("analyze audio for dub: %w", err)
	}
	if len(matches) == 0 {
		return source, nil
	}

	applyCustomReplacements(matches, req.CustomReplacements)

	phrases := clusterDubPhrases(matches, phraseGap)
	if len(phrases) == 0 {
		return source, nil
	}

	voiceID, cleanup, err := resolveVoice(ctx, deps, tts, source, req.Voice)
	if err != nil {
		return "", fmt.Errorf("resolve dub voice: %w", err)
	}
	defer cleanup(ctx)

	mutes := make([]mediatoolbox.MuteWindow, len(phrases))
	dubs := make([]mediatoolbox.DubOverlay, len(phrases))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range phrases {
		i, p := i, p
		g.Go(func() error {
			rawPath := filepath.Join(deps.WorkDir, fmt.Sprintf("dub_raw_%d.mp3", i))
			if err := tts.Speak(gctx, p.Phrase, voiceID, rawPath); err != nil {
				return fmt.Errorf("speak dub phrase %d: %w", i, err)
			}

			stretchedPath := filepath.Join(deps.WorkDir, fmt.Sprintf("dub_stretched_%d.wav", i))
			targetDuration := p.EndTime - p.StartTime
			if err := deps.Media.TimeStretch(gctx, rawPath, targetDuration, stretchedPath); err != nil {
				return fmt.Errorf("time-stretch dub phrase %d: %w", i, err)
			}

			mutes[i] = mediatoolbox.MuteWindow{Start: p.StartTime - mutePadding, End: p.EndTime + mutePadding}
			dubs[i] = mediatoolbox.DubOverlay{AudioPath: stretchedPath, DelayMs: int(p.StartTime * 1000)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	outPath := filepath.Join(deps.WorkDir, "dubbed.mp4")
	if err := deps.Media.MixAudio(ctx, source, mutes, dubs, dubGain, outPath); err != nil {
		return "", fmt.Errorf("mix dubs: %w", err)
	}
	return outPath, nil
}

// applyCustomReplacements overwrites each match's Replacement with the
// caller-supplied word, falling back to the detected word verbatim when no
// override was given.
func applyCustomReplacements(matches []models.ProfanityMatch, replacements map[string]string) {
	for i := range matches {
		word := strings.ToLower(strings.TrimSpace(matches[i].Word))
		if r, ok := replacements[word]; ok {
			matches[i].Replacement = r
		} else if matches[i].Replacement == "" {
			matches[i].Replacement = matches[i].Word
		}
	}
}

// clusterDubPhrases groups consecutive same-speaker matches whose gap is
// under phraseGap into a single DubPhrase, joining replacements with spaces
// and taking the outer [start,end] envelope.
func clusterDubPhrases(matches []models.ProfanityMatch, phraseGap float64) []models.DubPhrase {
	if len(matches) == 0 {
		return nil
	}

	var phrases []models.DubPhrase
	cur := models.DubPhrase{
		SpeakerID: matches[0].SpeakerID,
		StartTime: matches[0].StartTime,
		EndTime:   matches[0].EndTime,
		Phrase:    matches[0].Replacement,
	}

	for _, m := range matches[1:] {
		if m.SpeakerID == cur.SpeakerID && m.StartTime-cur.EndTime < phraseGap {
			cur.Phrase = cur.Phrase + " " + m.Replacement
			if m.EndTime > cur.EndTime {
				cur.EndTime = m.EndTime
			}
			continue
		}
		phrases = append(phrases, cur)
		cur = models.DubPhrase{
			SpeakerID: m.SpeakerID,
			StartTime: m.StartTime,
			EndTime:   m.EndTime,
			Phrase:    m.Replacement,
		}
	}
	phrases = append(phrases, cur)
	return phrases
}

// resolveVoice returns the voice id to speak with and a cleanup func the
// caller must defer immediately — cleanup deletes the cloned voice
// unconditionally (finally-block semantics) so TTS quota is never leaked,
// and is a no-op for a preset voice.
func resolveVoice(ctx context.Context, deps Deps, tts clients.TTSClient, source string, voice VoiceSelection) (string, func(context.Context), error) {
	if !voice.Clone {
		return voice.PresetVoiceID, func(context.Context) {}, nil
	}

	sampleDuration := voice.SampleEnd - voice.SampleStart
	if sampleDuration < minVoiceSampleSeconds {
		log.Printf("dub: voice sample window %.2fs shorter than the %.0fs minimum, extending to minimum", sampleDuration, minVoiceSampleSeconds)
		sampleDuration = minVoiceSampleSeconds
	}

	samplePath := filepath.Join(deps.WorkDir, "voice_sample.wav")
	if err := deps.Media.ExtractAudio(ctx, source, voice.SampleStart, sampleDuration, samplePath); err != nil {
		return "", nil, fmt.Errorf("extract voice sample: %w", err)
	}

	voiceID, err := tts.CloneVoice(ctx, samplePath, fmt.Sprintf("dub-clone-%d", int(voice.SampleStart*1000)))
	if err != nil {
		return "", nil, fmt.Errorf("clone voice: %w", err)
	}

	cleanup := func(ctx context.Context) {
		_ = tts.DeleteVoice(ctx, voiceID)
	}
	return voiceID, cleanup, nil
}
