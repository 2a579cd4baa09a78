package editops

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bobarin/vidguard/internal/clients"
	"github.com/bobarin/vidguard/internal/mediatoolbox"
	"github.com/bobarin/vidguard/internal/models"
)

// BeepRequest is the Beep Profanity operation's input.
type BeepRequest struct {
	CustomWords []string
}

const beepToneFrequencyHz = 1000

// Beep runs the Beep Profanity operation: detect profanity, merge adjacent
// matches into single windows, generate a sine-tone beep for each, and mix
// the result over the muted original audio.
func Beep(ctx context.Context, deps Deps, analyzer clients.AnalyzerClient, job *models.Job, req BeepRequest, mergeGap, mutePadding float64) (string, error) {
	job.Mu.Lock()
	source := job.OutputPath
	if source == "" {
		source = job.SourceVideoPath
	}
	job.Mu.Unlock()

	matches, err := analyzer.AnalyzeAudio(ctx, source, req.CustomWords)
	if err != nil {
		return "", fmt.Errorf("analyze audio for beep: %w", err)
	}
	if len(matches) == 0 {
		return source, nil
	}

	merged := mergeAdjacentMatches(matches, mergeGap)

	var mutes []mediatoolbox.MuteWindow
	var dubs []mediatoolbox.DubOverlay
	for i, m := range merged {
		duration := m.EndTime - m.StartTime
		beepPath := filepath.Join(deps.WorkDir, fmt.Sprintf("beep_%d.wav", i))
		if err := deps.Media.GenerateTone(ctx, duration, beepToneFrequencyHz, beepPath); err != nil {
			return "", fmt.Errorf("generate beep tone %d: %w", i, err)
		}
		mutes = append(mutes, mediatoolbox.MuteWindow{Start: m.StartTime - mutePadding, End: m.EndTime + mutePadding})
		dubs = append(dubs, mediatoolbox.DubOverlay{AudioPath: beepPath, DelayMs: int(m.StartTime * 1000)})
	}

	outPath := filepath.Join(deps.WorkDir, "beeped.mp4")
	if err := deps.Media.MixAudio(ctx, source, mutes, dubs, 1.0, outPath); err != nil {
		return "", fmt.Errorf("mix beeps: %w", err)
	}
	return outPath, nil
}

// mergeAdjacentMatches combines consecutive ProfanityMatches whose gap is
// within mergeGap into a single covering window, matching the spec's
// merge-adjacent rule ahead of beep/mute generation.
func mergeAdjacentMatches(matches []models.ProfanityMatch, mergeGap float64) []models.ProfanityMatch {
	if len(matches) == 0 {
		return nil
	}
	merged := []models.ProfanityMatch{matches[0]}
	for _, m := range matches[1:] {
		last := &merged[len(merged)-1]
		if m.StartTime-last.EndTime <= mergeGap {
			if m.EndTime > last.EndTime {
				last.EndTime = m.EndTime
			}
			continue
		}
		merged = append(merged, m)
	}
	return merged
}
