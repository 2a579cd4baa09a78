// Package clients holds the stateless polymorphic capability wrappers the
// orchestrator and edit operations call through: segmentation, generative
// video edit (two backend shapes), text-to-speech (two providers), and the
// compliance analyzer. None of these hold job state — they are safe to
// share across every in-flight job.
package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/bobarin/vidguard/internal/errs"
)

// SegmentationResult is what segment() returns: a frame-aligned mask video
// and whether it is a strict binary maskOnly render.
type SegmentationResult struct {
	MaskVideoURL string
	MaskOnly     bool
}

// SegmentationClient locates the region described by prompt inside a video
// and returns a mask video aligned frame-for-frame to the input.
type SegmentationClient interface {
	Segment(ctx context.Context, videoRef, prompt string, maskOnly bool, overlayColor string, overlayOpacity float64) (SegmentationResult, error)
}

const (
	geminiSegmentationModel = "gemini-3-pro-image-preview"
	segmentationTimeout     = 300 * time.Second
)

// GeminiSegmentationClient drives segmentation through Gemini's image
// generation endpoint: the model is asked to emit a binary (or
// overlay-tinted) mask image given the source frame and the prompt, the
// same inline-data REST shape the reference image-generation client uses.
type GeminiSegmentationClient struct {
	apiKey string
	client *http.Client
}

var _ SegmentationClient = (*GeminiSegmentationClient)(nil)

func NewGeminiSegmentationClient(apiKey string) *GeminiSegmentationClient {
	return &GeminiSegmentationClient{
		apiKey: apiKey,
		client: &http.Client{Timeout: segmentationTimeout},
	}
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string           `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Segment sends the image at videoRef as the source frame (a local path is
// read directly; a URL is downloaded first) and asks Gemini to localize
// prompt, returning one still mask image encoded as a data URI in
// MaskVideoURL. The bytes are sent as-is, so videoRef names an image, not a
// video; Blur extracts a frame from its clip first and holds the returned
// still over the clip with mediatoolbox.BuildStillMask.
func (c *GeminiSegmentationClient) Segment(ctx context.Context, videoRef, prompt string, maskOnly bool, overlayColor string, overlayOpacity float64) (SegmentationResult, error) {
	frameData, mimeType, err := c.loadFrame(ctx, videoRef)
	if err != nil {
		return SegmentationResult{}, errs.InputError("segmentation: could not load source frame: %v", err)
	}

	promptText := buildSegmentationPrompt(prompt, maskOnly, overlayColor, overlayOpacity)

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{
				Role: "user",
				Parts: []geminiPart{
					{Text: promptText},
					{InlineData: &geminiInlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(frameData)}},
				},
			},
		},
		GenerationConfig: &geminiGenerationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return SegmentationResult{}, fmt.Errorf("marshal segmentation request: %w", err)
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", geminiSegmentationModel, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return SegmentationResult{}, fmt.Errorf("build segmentation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return SegmentationResult{}, errs.Backend(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return SegmentationResult{}, errs.RateLimited(fmt.Errorf("segmentation rate limited: %s", truncate(string(body), 200)))
	}
	if resp.StatusCode != http.StatusOK {
		return SegmentationResult{}, errs.Backend(fmt.Errorf("segmentation returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return SegmentationResult{}, fmt.Errorf("decode segmentation response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return SegmentationResult{}, errs.Backend(fmt.Errorf("segmentation returned no candidates"))
	}

	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			dataURI := "data:" + part.InlineData.MimeType + ";base64," + part.InlineData.Data
			return SegmentationResult{MaskVideoURL: dataURI, MaskOnly: maskOnly}, nil
		}
	}
	return SegmentationResult{}, errs.Backend(fmt.Errorf("segmentation response had no image data"))
}

func (c *GeminiSegmentationClient) loadFrame(ctx context.Context, ref string) ([]byte, string, error) {
	if len(ref) > 4 && (ref[:4] == "http") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, "", err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", err
		}
		mimeType := resp.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "image/png"
		}
		return data, mimeType, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, "", err
	}
	return data, "image/png", nil
}

func buildSegmentationPrompt(prompt string, maskOnly bool, overlayColor string, overlayOpacity float64) string {
	if maskOnly {
		return fmt.Sprintf("Produce a strict binary segmentation mask for: %q. White pixels mark the described region, black pixels mark everything else. No gray, no gradients, no annotations — pure black-and-white mask, same resolution and framing as the input image.", prompt)
	}
	return fmt.Sprintf("Highlight the region described by %q with a %s overlay at %.0f%% opacity, preserving the rest of the image exactly as-is.", prompt, overlayColor, overlayOpacity*100)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
