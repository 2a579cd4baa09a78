package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is a single immutable value constructed at startup and threaded
// into every component constructor — there is no module-level mutable
// config singleton.
type Config struct {
	// Server
	APIPort            string
	BackendAPIKey      string // empty = no auth, dev mode
	CorsAllowedOrigins string // comma-separated; empty = "*"

	// Redis — backs the single-purpose background frame-extraction queue.
	RedisURL string

	// Blob store (Supabase-storage-compatible REST object store)
	StorageURL        string
	StorageServiceKey string
	StorageBucket     string
	// Impersonated-signing fallback, used when StorageServiceKey cannot sign directly.
	ImpersonateServiceIdentity string
	SignBlobURL                string

	// OpenAI — backs AnalyzerClient (chat-completion JSON mode + Whisper).
	OpenAIKey string

	// Gemini — backs SegmentationClient and the Veo generative backend.
	GeminiKey string

	// Veo — one GenerativeEditClient backend (async-SDK poll style).
	VeoEnabled bool
	VeoModel   string

	// xAI — the other GenerativeEditClient backend (submit/poll REST style).
	XAIEnabled bool
	XAIAPIKey  string

	// ElevenLabs — primary TTSClient (speak + clone_voice + delete_voice).
	ElevenLabsKey           string
	ElevenLabsVoiceIDFemale string
	ElevenLabsVoiceIDMale   string

	// Cartesia — fallback TTSClient (speak only).
	CartesiaKey     string
	CartesiaURL     string
	CartesiaVoiceID string

	// Pipeline tunables
	ProfanityMergeGapSec   float64 // default 0.5s — adjacent ProfanityMatch merge window
	DubPhraseGapSec        float64 // default 1.0s — DubPhrase clustering window
	GenerativeChunkSeconds float64 // default 5s — safe chunk length for generative-replace
	ClipBufferSec          float64 // default buffer around a smart-clip window
	DubOverlayGain         float64 // default ~1.5 — overlay volume multiplier for dubbed speech
	MutePaddingSec         float64 // default 0.05s (50ms) — silence padding around a beep mute window
	MaxUploadSeconds       int     // reject uploads longer than this

	// Per-concern bounded concurrency (Section 10.5)
	SegmentationConcurrency int
	GenerativeConcurrency   int
	TTSConcurrency          int
	AnalyzerConcurrency     int
	UploadConcurrency       int

	// Job store
	JobsBaseDir      string
	MaskCacheDirName string

	FFmpegPath  string
	FFprobePath string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		StorageURL:                 getEnv("STORAGE_URL", ""),
		StorageServiceKey:          getEnv("STORAGE_SERVICE_KEY", ""),
		StorageBucket:              getEnv("STORAGE_BUCKET", "vidguard-jobs"),
		ImpersonateServiceIdentity: getEnv("IMPERSONATE_SERVICE_IDENTITY", ""),
		SignBlobURL:                getEnv("SIGN_BLOB_URL", ""),

		OpenAIKey: getEnv("OPENAI_API_KEY", ""),
		GeminiKey: getEnv("GEMINI_API_KEY", ""),

		VeoEnabled: getEnvBool("VEO_ENABLED", false),
		VeoModel:   getEnv("VEO_MODEL", "veo-3.1-generate-preview"),

		XAIEnabled: getEnvBool("XAI_VIDEO_ENABLED", false),
		XAIAPIKey:  getEnv("XAI_API_KEY", ""),

		ElevenLabsKey:           getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceIDFemale: getEnv("ELEVENLABS_VOICE_ID_FEMALE", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsVoiceIDMale:   getEnv("ELEVENLABS_VOICE_ID_MALE", "pNInz6obpgDQGcFmaJgB"),

		CartesiaKey:     getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:     getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID: getEnv("CARTESIA_VOICE_ID", ""),

		ProfanityMergeGapSec:   getEnvFloat("PROFANITY_MERGE_GAP_SEC", 0.5),
		DubPhraseGapSec:        getEnvFloat("DUB_PHRASE_GAP_SEC", 1.0),
		GenerativeChunkSeconds: getEnvFloat("GENERATIVE_CHUNK_SECONDS", 5.0),
		ClipBufferSec:          getEnvFloat("CLIP_BUFFER_SEC", 0.0),
		DubOverlayGain:         getEnvFloat("DUB_OVERLAY_GAIN", 1.5),
		MutePaddingSec:         getEnvFloat("MUTE_PADDING_SEC", 0.05),
		MaxUploadSeconds:       getEnvInt("MAX_UPLOAD_SECONDS", 600),

		SegmentationConcurrency: getEnvInt("SEGMENTATION_CONCURRENCY", 2),
		GenerativeConcurrency:   getEnvInt("GENERATIVE_CONCURRENCY", 2),
		TTSConcurrency:          getEnvInt("TTS_CONCURRENCY", 4),
		AnalyzerConcurrency:     getEnvInt("ANALYZER_CONCURRENCY", 3),
		UploadConcurrency:       getEnvInt("UPLOAD_CONCURRENCY", 3),

		JobsBaseDir:      getEnv("JOBS_BASE_DIR", "./data/jobs"),
		MaskCacheDirName: getEnv("MASK_CACHE_DIR_NAME", "masks"),

		FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),
	}

	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	if cfg.GeminiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	if cfg.ElevenLabsKey == "" && cfg.CartesiaKey == "" {
		return nil, fmt.Errorf("either ELEVENLABS_API_KEY or CARTESIA_API_KEY is required for TTS")
	}

	if cfg.StorageURL == "" || cfg.StorageServiceKey == "" {
		return nil, fmt.Errorf("STORAGE_URL and STORAGE_SERVICE_KEY are required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
