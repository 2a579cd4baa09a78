// Package editops implements the compliance edit operations: blur/pixelate,
// generative replace, beep profanity, and dub profanity. Every time-ranged
// operation shares the same smart-clip/stitch fabric in this file, and a
// content-addressed mask cache in maskcache.go.
package editops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bobarin/vidguard/internal/mediatoolbox"
	"github.com/bobarin/vidguard/internal/models"
)

// TimeRange is an optional [Start, End) window — a zero value means "the
// whole source", matching operations invoked without start/end.
type TimeRange struct {
	Start, End float64
	Set        bool
}

// Deps bundles the collaborators every edit operation needs. Operations
// take this instead of holding their own copies so the orchestrator can
// construct it once and share it across concurrent operations.
type Deps struct {
	Media   *mediatoolbox.Toolbox
	WorkDir string // scratch directory for intermediate files, one per job
}

// SmartClip runs fn against either the whole current source (job.output_path
// if it exists, else job.source_video_path) or, when rng is set, against a
// buffered extraction of just that window — then stitches fn's result back
// into the full timeline. This is the shared fabric every time-ranged
// operation in this package is built on.
func SmartClip(ctx context.Context, deps Deps, job *models.Job, rng TimeRange, buffer float64, fn func(ctx context.Context, clipPath string) (string, error)) (string, error) {
	job.Mu.Lock()
	source := job.OutputPath
	if source == "" {
		source = job.SourceVideoPath
	}
	job.Mu.Unlock()

	if !rng.Set {
		result, err := fn(ctx, source)
		if err != nil {
			return "", err
		}
		return result, nil
	}

	info, err := deps.Media.Probe(ctx, source)
	if err != nil {
		return "", fmt.Errorf("probe source for smart clip: %w", err)
	}

	start := rng.Start - buffer
	if start < 0 {
		start = 0
	}
	end := rng.End + buffer
	if end > info.Duration {
		end = info.Duration
	}

	clipPath := filepath.Join(deps.WorkDir, fmt.Sprintf("clip_%d_%d.mp4", int(start*1000), int(end*1000)))
	if err := deps.Media.ExtractClip(ctx, source, start, end-start, clipPath); err != nil {
		return "", fmt.Errorf("extract clip for smart clip: %w", err)
	}

	result, err := fn(ctx, clipPath)
	if err != nil {
		return "", err
	}

	finalPath := filepath.Join(deps.WorkDir, fmt.Sprintf("stitched_%d_%d.mp4", int(start*1000), int(end*1000)))
	if err := deps.Media.InsertSegment(ctx, source, start, end, result, finalPath, deps.WorkDir); err != nil {
		return "", fmt.Errorf("insert segment for smart clip: %w", err)
	}

	return finalPath, nil
}

// EnsureWorkDir creates deps.WorkDir if it does not already exist.
func EnsureWorkDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
