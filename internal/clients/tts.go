package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/bobarin/vidguard/internal/errs"
)

// TTSClient is the common surface every text-to-speech provider implements.
// The orchestrator selects one implementation at startup based on
// configuration and never branches on provider identity afterward.
type TTSClient interface {
	Speak(ctx context.Context, text, voiceID, outPath string) error
	CloneVoice(ctx context.Context, sampleAudioPath, name string) (voiceID string, err error)
	DeleteVoice(ctx context.Context, voiceID string) error
}

// --- ElevenLabs: primary provider ---

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_flash_v2_5"
	elevenLabsOutputFormat = "mp3_44100_128"
)

type ElevenLabsTTSClient struct {
	apiKey  string
	modelID string
	client  *http.Client
}

var _ TTSClient = (*ElevenLabsTTSClient)(nil)

func NewElevenLabsTTSClient(apiKey string) *ElevenLabsTTSClient {
	return &ElevenLabsTTSClient{
		apiKey:  apiKey,
		modelID: elevenLabsDefaultModel,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type elevenLabsSpeechRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
	Speed         *float64                 `json:"speed,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

func (c *ElevenLabsTTSClient) Speak(ctx context.Context, text, voiceID, outPath string) error {
	if voiceID == "" {
		return errs.InputError("elevenlabs speak: voiceID is required")
	}

	speed := 0.85
	reqBody := elevenLabsSpeechRequest{
		Text:    text,
		ModelID: c.modelID,
		Speed:   &speed,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       0.60,
			SimilarityBoost: 0.80,
			Style:           0.35,
			UseSpeakerBoost: true,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal elevenlabs request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", elevenLabsBaseURL, voiceID, elevenLabsOutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("build elevenlabs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return errs.Backend(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return errs.RateLimited(fmt.Errorf("elevenlabs speak rate limited"))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errs.Backend(fmt.Errorf("elevenlabs returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read elevenlabs audio: %w", err)
	}
	if len(audioData) == 0 {
		return errs.Backend(fmt.Errorf("elevenlabs returned empty audio"))
	}

	return os.WriteFile(outPath, audioData, 0644)
}

// CloneVoice uploads a voice sample to ElevenLabs' voice-add endpoint and
// returns the new voice id.
func (c *ElevenLabsTTSClient) CloneVoice(ctx context.Context, sampleAudioPath, name string) (string, error) {
	sampleData, err := os.ReadFile(sampleAudioPath)
	if err != nil {
		return "", fmt.Errorf("read voice sample: %w", err)
	}

	var buf bytes.Buffer
	boundary := "vidguard-voice-clone-boundary"
	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString(`Content-Disposition: form-data; name="name"` + "\r\n\r\n")
	buf.WriteString(name + "\r\n")
	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString(`Content-Disposition: form-data; name="files"; filename="sample.wav"` + "\r\n")
	buf.WriteString("Content-Type: audio/wav\r\n\r\n")
	buf.Write(sampleData)
	buf.WriteString("\r\n--" + boundary + "--\r\n")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, elevenLabsBaseURL+"/v1/voices/add", &buf)
	if err != nil {
		return "", fmt.Errorf("build clone_voice request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errs.Backend(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", errs.Backend(fmt.Errorf("clone_voice returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var result struct {
		VoiceID string `json:"voice_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode clone_voice response: %w", err)
	}
	if result.VoiceID == "" {
		return "", errs.Backend(fmt.Errorf("clone_voice response had no voice_id"))
	}
	return result.VoiceID, nil
}

func (c *ElevenLabsTTSClient) DeleteVoice(ctx context.Context, voiceID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, elevenLabsBaseURL+"/v1/voices/"+voiceID, nil)
	if err != nil {
		return fmt.Errorf("build delete_voice request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return errs.Backend(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errs.Backend(fmt.Errorf("delete_voice returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}
	return nil
}

// --- Cartesia: fallback provider (speak only — cloning unsupported) ---

const cartesiaDefaultModel = "sonic-english"

type CartesiaTTSClient struct {
	apiKey     string
	apiURL     string
	apiVersion string
	client     *http.Client
}

var _ TTSClient = (*CartesiaTTSClient)(nil)

func NewCartesiaTTSClient(apiKey, apiURL string) *CartesiaTTSClient {
	if apiURL == "" {
		apiURL = "https://api.cartesia.ai"
	}
	return &CartesiaTTSClient{
		apiKey:     apiKey,
		apiURL:     apiURL,
		apiVersion: "2024-06-10",
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

type cartesiaRequest struct {
	ModelID      string                 `json:"model_id"`
	Transcript   string                 `json:"transcript"`
	Voice        cartesiaVoiceSpecifier `json:"voice"`
	Language     *string                `json:"language,omitempty"`
	OutputFormat cartesiaOutputFormat   `json:"output_format"`
}

type cartesiaVoiceSpecifier struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

func (c *CartesiaTTSClient) Speak(ctx context.Context, text, voiceID, outPath string) error {
	if voiceID == "" {
		return errs.InputError("cartesia speak: voiceID is required")
	}

	lang := "en"
	reqBody := cartesiaRequest{
		ModelID:    cartesiaDefaultModel,
		Transcript: text,
		Voice:      cartesiaVoiceSpecifier{Mode: "id", ID: voiceID},
		Language:   &lang,
		OutputFormat: cartesiaOutputFormat{
			Container:  "mp3",
			SampleRate: 44100,
			BitRate:    192000,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal cartesia request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/tts/bytes", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("build cartesia request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cartesia-Version", c.apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return errs.Backend(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return errs.RateLimited(fmt.Errorf("cartesia speak rate limited"))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errs.Backend(fmt.Errorf("cartesia returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read cartesia audio: %w", err)
	}
	return os.WriteFile(outPath, audioData, 0644)
}

// CloneVoice is unsupported — Cartesia is wired in only as the speak-only
// fallback provider; dub operations that request voice=clone require the
// primary (ElevenLabs) provider.
func (c *CartesiaTTSClient) CloneVoice(ctx context.Context, sampleAudioPath, name string) (string, error) {
	return "", errs.Backend(fmt.Errorf("voice cloning is not supported by the cartesia provider"))
}

func (c *CartesiaTTSClient) DeleteVoice(ctx context.Context, voiceID string) error {
	return errs.Backend(fmt.Errorf("voice cloning is not supported by the cartesia provider"))
}
