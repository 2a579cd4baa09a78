package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bobarin/vidguard/internal/errs"
	"github.com/bobarin/vidguard/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// AnalyzerResult is analyze_video's return value.
type AnalyzerResult struct {
	Findings           []models.Finding
	Summary            string
	RiskLevel          string
	PredictedAgeRating string
}

// RegionAnalysis is analyze_region's return value.
type RegionAnalysis struct {
	ItemName         string
	Reasoning        string
	Confidence       models.Confidence
	SuggestedActions []string
}

// AnalyzerClient is the compliance-analysis surface: full-video findings,
// phrase-level profanity timing, single-region classification, dub-word
// alternatives, and prompt simplification for the segmentation model.
type AnalyzerClient interface {
	AnalyzeVideo(ctx context.Context, videoPath string) (AnalyzerResult, error)
	AnalyzeAudio(ctx context.Context, videoPath string, customWords []string) ([]models.ProfanityMatch, error)
	AnalyzeRegion(ctx context.Context, framePath string, box models.Box) (RegionAnalysis, error)
	SuggestAlternatives(ctx context.Context, word string, approxDurationSec float64, n int) ([]string, error)
	SimplifyPrompt(ctx context.Context, complex string) (string, error)
}

// OpenAIAnalyzerClient implements AnalyzerClient on top of go-openai: JSON-mode
// chat completions for classification/generation tasks, Whisper for
// word-level audio timing.
type OpenAIAnalyzerClient struct {
	client *openai.Client
}

var _ AnalyzerClient = (*OpenAIAnalyzerClient)(nil)

func NewOpenAIAnalyzerClient(apiKey string) *OpenAIAnalyzerClient {
	return &OpenAIAnalyzerClient{client: openai.NewClient(apiKey)}
}

func (a *OpenAIAnalyzerClient) chatJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.GPT4oMini,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.2,
	})
	if err != nil {
		if strings.Contains(err.Error(), "429") {
			return errs.RateLimited(err)
		}
		return errs.Backend(err)
	}
	if len(resp.Choices) == 0 {
		return errs.Backend(fmt.Errorf("analyzer: empty response from model"))
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), out); err != nil {
		return fmt.Errorf("decode analyzer response: %w", err)
	}
	return nil
}

func (a *OpenAIAnalyzerClient) AnalyzeVideo(ctx context.Context, videoPath string) (AnalyzerResult, error) {
	systemPrompt := `You are a broadcast-standards compliance analyst. Given a description of a video's visual and audio content, identify concerns in these categories: alcohol, logo, violence, language, other. Respond as JSON: {"findings":[{"category":"...","content":"...","startTime":0,"endTime":0,"status":"warning|critical","confidence":"Low|Medium|High","suggestedAction":"..."}],"summary":"...","riskLevel":"low|medium|high","predictedAgeRating":"..."}`
	userPrompt := fmt.Sprintf("Analyze the video at %s for compliance concerns.", videoPath)

	var parsed struct {
		Findings []struct {
			Category        string  `json:"category"`
			Content         string  `json:"content"`
			StartTime       float64 `json:"startTime"`
			EndTime         float64 `json:"endTime"`
			Status          string  `json:"status"`
			Confidence      string  `json:"confidence"`
			SuggestedAction string  `json:"suggestedAction"`
		} `json:"findings"`
		Summary            string `json:"summary"`
		RiskLevel          string `json:"riskLevel"`
		PredictedAgeRating string `json:"predictedAgeRating"`
	}

	if err := a.chatJSON(ctx, systemPrompt, userPrompt, &parsed); err != nil {
		return AnalyzerResult{}, err
	}

	findings := make([]models.Finding, 0, len(parsed.Findings))
	for _, f := range parsed.Findings {
		findings = append(findings, models.Finding{
			Category:        models.FindingCategory(f.Category),
			Content:         f.Content,
			StartTime:       f.StartTime,
			EndTime:         f.EndTime,
			Status:          models.FindingStatus(f.Status),
			Confidence:      models.Confidence(f.Confidence),
			SuggestedAction: f.SuggestedAction,
		})
	}

	return AnalyzerResult{
		Findings:           findings,
		Summary:            parsed.Summary,
		RiskLevel:          parsed.RiskLevel,
		PredictedAgeRating: parsed.PredictedAgeRating,
	}, nil
}

// AnalyzeAudio transcribes videoPath's audio track via Whisper with
// word-level timestamps, then flags any word matching the built-in
// profanity list or customWords, returned ordered by startTime.
func (a *OpenAIAnalyzerClient) AnalyzeAudio(ctx context.Context, videoPath string, customWords []string) ([]models.ProfanityMatch, error) {
	audioData, err := os.ReadFile(videoPath)
	if err != nil {
		return nil, errs.InputError("analyze_audio: could not read %s: %v", videoPath, err)
	}

	resp, err := a.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audioData),
		FilePath: "audio.mp3",
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: "en",
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "429") {
			return nil, errs.RateLimited(err)
		}
		return nil, errs.Backend(err)
	}

	flagged := flaggedWordSet(customWords)

	var matches []models.ProfanityMatch
	for _, w := range resp.Words {
		word := strings.ToLower(strings.Trim(w.Word, ".,!?;:\"'"))
		if !flagged[word] {
			continue
		}
		matches = append(matches, models.ProfanityMatch{
			Word:       strings.TrimSpace(w.Word),
			StartTime:  w.Start,
			EndTime:    w.End,
			Confidence: models.ConfidenceHigh,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].StartTime < matches[j].StartTime })
	return matches, nil
}

var builtinProfanityList = []string{
	"damn", "hell", "crap", "shit", "fuck", "bitch", "ass", "bastard", "asshole",
}

func flaggedWordSet(customWords []string) map[string]bool {
	set := make(map[string]bool, len(builtinProfanityList)+len(customWords))
	for _, w := range builtinProfanityList {
		set[w] = true
	}
	for _, w := range customWords {
		set[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return set
}

func (a *OpenAIAnalyzerClient) AnalyzeRegion(ctx context.Context, framePath string, box models.Box) (RegionAnalysis, error) {
	systemPrompt := `You identify what occupies a specific region of an image for compliance review. Respond as JSON: {"itemName":"...","reasoning":"...","confidence":"Low|Medium|High","suggestedActions":["..."]}`
	userPrompt := fmt.Sprintf("Frame: %s. Region (percentage box): top=%.1f left=%.1f width=%.1f height=%.1f. What is in this region and what compliance actions would apply?", framePath, box.Top, box.Left, box.Width, box.Height)

	var parsed struct {
		ItemName         string   `json:"itemName"`
		Reasoning        string   `json:"reasoning"`
		Confidence       string   `json:"confidence"`
		SuggestedActions []string `json:"suggestedActions"`
	}
	if err := a.chatJSON(ctx, systemPrompt, userPrompt, &parsed); err != nil {
		return RegionAnalysis{}, err
	}

	return RegionAnalysis{
		ItemName:         parsed.ItemName,
		Reasoning:        parsed.Reasoning,
		Confidence:       models.Confidence(parsed.Confidence),
		SuggestedActions: parsed.SuggestedActions,
	}, nil
}

func (a *OpenAIAnalyzerClient) SuggestAlternatives(ctx context.Context, word string, approxDurationSec float64, n int) ([]string, error) {
	if n <= 0 {
		n = 3
	}
	systemPrompt := `You suggest clean-language alternatives for dubbing over profanity, matched to approximately the same spoken duration. Respond as JSON: {"alternatives":["...", "..."]}`
	userPrompt := fmt.Sprintf("Word to replace: %q. Target spoken duration: ~%.2fs. Suggest %d alternatives, ordinary words or short phrases a voice actor could speak in about that time.", word, approxDurationSec, n)

	var parsed struct {
		Alternatives []string `json:"alternatives"`
	}
	if err := a.chatJSON(ctx, systemPrompt, userPrompt, &parsed); err != nil {
		return nil, err
	}
	return parsed.Alternatives, nil
}

func (a *OpenAIAnalyzerClient) SimplifyPrompt(ctx context.Context, complex string) (string, error) {
	systemPrompt := `You distill a compliance description into the single concrete noun phrase (2-4 words) a segmentation model should search for in a video frame. Respond as JSON: {"noun":"..."}`
	userPrompt := fmt.Sprintf("Compliance phrase: %q", complex)

	var parsed struct {
		Noun string `json:"noun"`
	}
	if err := a.chatJSON(ctx, systemPrompt, userPrompt, &parsed); err != nil {
		return "", err
	}
	if parsed.Noun == "" {
		return "", errs.Backend(fmt.Errorf("simplify_prompt: model returned an empty noun"))
	}
	return parsed.Noun, nil
}
