package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bobarin/vidguard/internal/errs"
	"google.golang.org/genai"
)

// GenerativeEditResult is edit()'s return value: the URL of the produced
// video, downloadable by the orchestrator.
type GenerativeEditResult struct {
	OutputVideoURL string
}

// GenerativeEditClient submits a generative video edit (object replace,
// inpaint-style edit guided by a mask, etc.) and polls until the backend
// reports success or failure. Implementations MUST NOT enforce a chunk
// length themselves — the orchestrator slices long requests before calling
// edit, per the chunk constraint in the interface contract.
type GenerativeEditClient interface {
	Edit(ctx context.Context, videoURL, prompt, maskVideoURL, referenceImageURL string, seconds float64, aspectRatio string) (GenerativeEditResult, error)
}

// --- Veo backend: async-operation SDK style (submit, poll a typed handle, download) ---

const (
	veoPollInterval    = 10 * time.Second
	veoMaxPollDuration = 5 * time.Minute
)

type VeoGenerativeClient struct {
	apiKey string
	model  string
}

var _ GenerativeEditClient = (*VeoGenerativeClient)(nil)

func NewVeoGenerativeClient(apiKey, model string) *VeoGenerativeClient {
	if model == "" {
		model = "veo-3.1-generate-preview"
	}
	return &VeoGenerativeClient{apiKey: apiKey, model: model}
}

func (c *VeoGenerativeClient) Edit(ctx context.Context, videoURL, prompt, maskVideoURL, referenceImageURL string, seconds float64, aspectRatio string) (GenerativeEditResult, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return GenerativeEditResult{}, fmt.Errorf("create genai client: %w", err)
	}

	enhancedPrompt := buildEditPrompt(prompt, maskVideoURL != "")

	var firstFrame *genai.Image
	if referenceImageURL != "" {
		data, mimeType, err := downloadBytes(ctx, referenceImageURL)
		if err != nil {
			return GenerativeEditResult{}, errs.InputError("could not fetch reference image: %v", err)
		}
		firstFrame = &genai.Image{ImageBytes: data, MIMEType: mimeType}
	}

	if aspectRatio == "" {
		aspectRatio = "9:16"
	}
	config := &genai.GenerateVideosConfig{
		AspectRatio:      aspectRatio,
		Resolution:       "1080p",
		PersonGeneration: "allow_adult",
		NumberOfVideos:   1,
	}

	operation, err := client.Models.GenerateVideos(ctx, c.model, enhancedPrompt, firstFrame, config)
	if err != nil {
		return GenerativeEditResult{}, errs.Backend(fmt.Errorf("start video generation: %w", err))
	}

	deadline := time.Now().Add(veoMaxPollDuration)
	for !operation.Done {
		if time.Now().After(deadline) {
			return GenerativeEditResult{}, errs.Timeout("generative edit timed out after %v", veoMaxPollDuration)
		}
		select {
		case <-ctx.Done():
			return GenerativeEditResult{}, ctx.Err()
		case <-time.After(veoPollInterval):
		}
		operation, err = client.Operations.GetVideosOperation(ctx, operation, nil)
		if err != nil {
			return GenerativeEditResult{}, errs.Backend(fmt.Errorf("poll operation: %w", err))
		}
	}

	if operation.Error != nil && len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return GenerativeEditResult{}, errs.Backend(fmt.Errorf("generation failed: %s", errJSON))
	}
	if operation.Response == nil || len(operation.Response.GeneratedVideos) == 0 {
		return GenerativeEditResult{}, errs.Backend(fmt.Errorf("no video in completed operation"))
	}

	video := operation.Response.GeneratedVideos[0]
	if video.Video == nil {
		return GenerativeEditResult{}, errs.Backend(fmt.Errorf("generated video object is nil"))
	}

	downloadURI := genai.NewDownloadURIFromVideo(video.Video)
	return GenerativeEditResult{OutputVideoURL: downloadURI}, nil
}

func buildEditPrompt(rawPrompt string, hasMask bool) string {
	if hasMask {
		return fmt.Sprintf("%s\n\nApply this edit only within the masked region of the provided video; everything outside the mask must remain pixel-identical to the source.", rawPrompt)
	}
	return rawPrompt
}

func downloadBytes(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := http.DefaultClient.Do(req)
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

// --- xAI backend: bespoke-REST submit/poll, response shape changes across polls ---

const (
	xaiBaseURL           = "https://api.x.ai/v1"
	xaiVideoModel        = "grok-imagine-video"
	xaiInitialDelay      = 15 * time.Second
	xaiPollMinInterval   = 5 * time.Second
	xaiPollMaxInterval   = 20 * time.Second
	xaiPollBackoffFactor = 1.5
	xaiMaxPollDuration   = 5 * time.Minute
)

type XAIGenerativeClient struct {
	apiKey     string
	httpClient *http.Client
}

var _ GenerativeEditClient = (*XAIGenerativeClient)(nil)

func NewXAIGenerativeClient(apiKey string) *XAIGenerativeClient {
	return &XAIGenerativeClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type xaiEditRequest struct {
	Prompt      string          `json:"prompt"`
	Model       string          `json:"model"`
	Video       *xaiVideoInput  `json:"video,omitempty"`
	Image       *xaiImageInput  `json:"image,omitempty"`
	Mask        *xaiVideoInput  `json:"mask,omitempty"`
	Duration    int             `json:"duration,omitempty"`
	AspectRatio string          `json:"aspect_ratio,omitempty"`
}

type xaiVideoInput struct {
	URL string `json:"url"`
}

type xaiImageInput struct {
	URL string `json:"url"`
}

type xaiSubmitResponse struct {
	RequestID string `json:"request_id"`
}

// xaiPollResult models xAI's shape-shifting poll response: a "status" field
// present only while pending/failed, and a "video" object present only once
// complete — never both, and neither guaranteed present on every poll.
type xaiPollResult struct {
	Status string `json:"status"`
	Video  *struct {
		URL      string `json:"url"`
		Duration int    `json:"duration"`
	} `json:"video,omitempty"`
	Error string `json:"error"`
}

func (c *XAIGenerativeClient) Edit(ctx context.Context, videoURL, prompt, maskVideoURL, referenceImageURL string, seconds float64, aspectRatio string) (GenerativeEditResult, error) {
	if aspectRatio == "" {
		aspectRatio = "9:16"
	}
	durationSec := int(seconds + 0.5)
	if durationSec < 1 {
		durationSec = 1
	}
	if durationSec > 15 {
		durationSec = 15
	}

	reqBody := xaiEditRequest{
		Prompt:      prompt,
		Model:       xaiVideoModel,
		Video:       &xaiVideoInput{URL: videoURL},
		Duration:    durationSec,
		AspectRatio: aspectRatio,
	}
	if maskVideoURL != "" {
		reqBody.Mask = &xaiVideoInput{URL: maskVideoURL}
	}
	if referenceImageURL != "" {
		reqBody.Image = &xaiImageInput{URL: referenceImageURL}
	}

	requestID, err := c.submit(ctx, reqBody)
	if err != nil {
		return GenerativeEditResult{}, err
	}

	result, err := c.poll(ctx, requestID)
	if err != nil {
		return GenerativeEditResult{}, err
	}

	return GenerativeEditResult{OutputVideoURL: result.Video.URL}, nil
}

func (c *XAIGenerativeClient) submit(ctx context.Context, reqBody xaiEditRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal xai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, xaiBaseURL+"/videos/edits", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("build xai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errs.Backend(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errs.RateLimited(fmt.Errorf("xai submit rate limited"))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", errs.Backend(fmt.Errorf("xai submit returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var submitResp xaiSubmitResponse
	if err := json.Unmarshal(body, &submitResp); err != nil {
		return "", fmt.Errorf("decode xai submit response: %w", err)
	}
	if submitResp.RequestID == "" {
		return "", errs.Backend(fmt.Errorf("xai submit response had no request_id"))
	}
	return submitResp.RequestID, nil
}

func (c *XAIGenerativeClient) poll(ctx context.Context, requestID string) (*xaiPollResult, error) {
	deadline := time.Now().Add(xaiMaxPollDuration)
	currentInterval := xaiPollMinInterval

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(xaiInitialDelay):
	}

	for {
		if time.Now().After(deadline) {
			return nil, errs.Timeout("xai video edit timed out after %v (request_id=%s)", xaiMaxPollDuration, requestID)
		}

		result, err := c.fetchStatus(ctx, requestID)
		if err != nil {
			return nil, err
		}

		// Completion is detected structurally: a populated video.url, not a
		// status field — xAI drops "status" entirely once done.
		if result.Video != nil && result.Video.URL != "" {
			return result, nil
		}

		if result.Status == "failed" {
			msg := result.Error
			if msg == "" {
				msg = "unknown error"
			}
			return nil, errs.Backend(fmt.Errorf("xai video edit failed: %s (request_id=%s)", msg, requestID))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(currentInterval):
		}

		next := time.Duration(float64(currentInterval) * xaiPollBackoffFactor)
		if next > xaiPollMaxInterval {
			next = xaiPollMaxInterval
		}
		currentInterval = next
	}
}

func (c *XAIGenerativeClient) fetchStatus(ctx context.Context, requestID string) (*xaiPollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/videos/%s", xaiBaseURL, requestID), nil)
	if err != nil {
		return nil, fmt.Errorf("build xai poll request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Backend(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read xai poll response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, errs.Backend(fmt.Errorf("xai poll returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var result xaiPollResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode xai poll response: %w", err)
	}
	return &result, nil
}
