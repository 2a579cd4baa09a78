package editops

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bobarin/vidguard/internal/blobstore"
	"github.com/bobarin/vidguard/internal/clients"
	"github.com/bobarin/vidguard/internal/errs"
	"github.com/bobarin/vidguard/internal/models"
)

// GenerativeReplaceRequest is the Generative Replace operation's input.
type GenerativeReplaceRequest struct {
	Prompt            string
	ReferenceImageURL string
	Seconds           float64
	Range             TimeRange
	AspectRatio       string
}

var downloadClient = &http.Client{Timeout: 120 * time.Second}

// GenerativeReplace runs the chunking algorithm described for this
// operation: a clip longer than chunkSeconds is split into consecutive
// chunkSeconds-long pieces, each uploaded and edited independently, trimmed
// back to its exact source duration (backends may over-produce), concatenated
// in order, then stitched into the source timeline via SmartClip.
func GenerativeReplace(ctx context.Context, deps Deps, gen clients.GenerativeEditClient, blobs *blobstore.Store, job *models.Job, req GenerativeReplaceRequest, buffer, chunkSeconds float64) (string, error) {
	if chunkSeconds <= 0 {
		chunkSeconds = 5.0
	}

	referenceURL := req.ReferenceImageURL

	return SmartClip(ctx, deps, job, req.Range, buffer, func(ctx context.Context, clipPath string) (string, error) {
		info, err := deps.Media.Probe(ctx, clipPath)
		if err != nil {
			return "", fmt.Errorf("probe clip for generative replace: %w", err)
		}
		duration := info.Duration
		if req.Seconds > 0 && req.Seconds < duration {
			duration = req.Seconds
		}

		bounds := chunkBounds(duration, chunkSeconds)

		processed := make([]string, 0, len(bounds))
		for i, b := range bounds {
			chunkPath := filepath.Join(deps.WorkDir, fmt.Sprintf("gen_chunk_%d.mp4", i))
			if err := deps.Media.ExtractClip(ctx, clipPath, b.start, b.end-b.start, chunkPath); err != nil {
				return "", fmt.Errorf("extract generative chunk %d: %w", i, err)
			}

			chunkKey := fmt.Sprintf("jobs/%s/gen_input_chunk_%d.mp4", job.ID, i)
			if err := blobs.PutFile(ctx, chunkKey, chunkPath, "video/mp4"); err != nil {
				return "", fmt.Errorf("upload generative chunk %d: %w", i, err)
			}
			chunkURL, err := blobs.Sign(ctx, chunkKey, time.Hour)
			if err != nil {
				return "", fmt.Errorf("sign generative chunk %d: %w", i, err)
			}

			result, err := gen.Edit(ctx, chunkURL, req.Prompt, "", referenceURL, b.end-b.start, req.AspectRatio)
			if err != nil {
				return "", fmt.Errorf("generative edit chunk %d: %w", i, err)
			}

			rawPath := filepath.Join(deps.WorkDir, fmt.Sprintf("gen_chunk_%d_raw.mp4", i))
			if err := downloadToFile(ctx, result.OutputVideoURL, rawPath); err != nil {
				return "", fmt.Errorf("download generative chunk %d result: %w", i, err)
			}

			trimmedPath := filepath.Join(deps.WorkDir, fmt.Sprintf("gen_chunk_%d_trimmed.mp4", i))
			if err := deps.Media.ExtractClip(ctx, rawPath, 0, b.end-b.start, trimmedPath); err != nil {
				return "", fmt.Errorf("trim generative chunk %d: %w", i, err)
			}
			processed = append(processed, trimmedPath)
		}

		if len(processed) == 1 {
			return processed[0], nil
		}
		concatPath := filepath.Join(deps.WorkDir, "gen_concat.mp4")
		if err := deps.Media.Concat(ctx, processed, concatPath); err != nil {
			return "", fmt.Errorf("concat generative chunks: %w", err)
		}
		return concatPath, nil
	})
}

type chunkBound struct {
	start, end float64
}

// chunkBounds splits [0, duration) into consecutive chunks no longer than L,
// the last chunk taking whatever remainder is shorter than L.
func chunkBounds(duration, chunkLength float64) []chunkBound {
	if duration <= chunkLength {
		return []chunkBound{{0, duration}}
	}
	var bounds []chunkBound
	for start := 0.0; start < duration; start += chunkLength {
		end := start + chunkLength
		if end > duration {
			end = duration
		}
		bounds = append(bounds, chunkBound{start, end})
	}
	return bounds
}

// downloadToFile fetches url's body to outPath, used for generative backend
// results that come back as a plain downloadable URL rather than a blob-store
// key.
func downloadToFile(ctx context.Context, url, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := downloadClient.Do(req)
	if err != nil {
		return errs.Backend(fmt.Errorf("download request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.Backend(fmt.Errorf("download returned status %d", resp.StatusCode))
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create download target: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write downloaded file: %w", err)
	}
	return nil
}
