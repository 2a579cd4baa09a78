package editops

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobarin/vidguard/internal/clients"
	"github.com/bobarin/vidguard/internal/errs"
	"github.com/bobarin/vidguard/internal/mediatoolbox"
	"github.com/bobarin/vidguard/internal/models"
)

// BlurRequest is the Blur/Pixelate operation's input.
type BlurRequest struct {
	Prompt   string
	Strength int // blur: box-blur radius clamped to 10-100; pixelate: sets the block size
	Effect   mediatoolbox.MaskEffectKind
	Range    TimeRange
}

// Blur runs the Blur/Pixelate operation: simplify the prompt, resolve (or
// populate) the mask cache, apply the visual effect inside the masked
// region, and stitch the result back into the timeline via SmartClip.
func Blur(ctx context.Context, deps Deps, seg clients.SegmentationClient, analyzer clients.AnalyzerClient, cacheDir string, job *models.Job, req BlurRequest, buffer float64) (string, error) {
	simplified, err := analyzer.SimplifyPrompt(ctx, req.Prompt)
	if err != nil {
		return "", fmt.Errorf("simplify prompt: %w", err)
	}

	return SmartClip(ctx, deps, job, req.Range, buffer, func(ctx context.Context, clipPath string) (string, error) {
		isClip := req.Range.Set
		maskPath := CachedMask(cacheDir, simplified, isClip)
		if maskPath == "" {
			framePath := filepath.Join(deps.WorkDir, "segment_frame.png")
			if err := deps.Media.ExtractFrame(ctx, clipPath, 0, framePath); err != nil {
				return "", fmt.Errorf("extract frame for segmentation: %w", err)
			}
			result, err := seg.Segment(ctx, framePath, simplified, true, "", 0)
			if err != nil {
				return "", fmt.Errorf("segment for blur: %w", err)
			}
			maskPath = MaskCachePath(cacheDir, simplified, isClip)
			if err := os.MkdirAll(filepath.Dir(maskPath), 0755); err != nil {
				return "", fmt.Errorf("create mask cache dir: %w", err)
			}
			clipInfo, err := deps.Media.Probe(ctx, clipPath)
			if err != nil {
				return "", fmt.Errorf("probe clip for mask duration: %w", err)
			}
			if err := materializeMask(ctx, deps, result.MaskVideoURL, clipInfo, maskPath); err != nil {
				return "", fmt.Errorf("materialize mask: %w", err)
			}
		}

		outPath := filepath.Join(deps.WorkDir, "blurred.mp4")
		if err := deps.Media.ApplyMaskEffect(ctx, clipPath, maskPath, req.Effect, req.Strength, outPath); err != nil {
			return "", err
		}
		return outPath, nil
	})
}

// materializeMask resolves a segmentation result — a data URI holding a
// still-image mask, or a URL/path to an already per-frame mask video — into
// a mask video on disk at maskPath spanning clipInfo's full duration.
func materializeMask(ctx context.Context, deps Deps, maskRef string, clipInfo models.VideoInfo, maskPath string) error {
	if strings.HasPrefix(maskRef, "data:image/") {
		imagePath := maskPath + ".still.png"
		if err := writeDataURI(maskRef, imagePath); err != nil {
			return fmt.Errorf("decode mask data uri: %w", err)
		}
		defer os.Remove(imagePath)
		return deps.Media.BuildStillMask(ctx, imagePath, clipInfo.Duration, clipInfo.FPS, maskPath)
	}
	return deps.Media.NormalizeFPS(ctx, maskRef, clipInfo.FPS, maskPath)
}

// writeDataURI decodes a data:<mime>;base64,<payload> URI to path.
func writeDataURI(uri, path string) error {
	idx := strings.Index(uri, ",")
	if idx < 0 {
		return errs.InputError("malformed data uri")
	}
	data, err := base64.StdEncoding.DecodeString(uri[idx+1:])
	if err != nil {
		return fmt.Errorf("base64 decode: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
