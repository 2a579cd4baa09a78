// Package models holds the job-state-machine types shared across the
// pipeline: Job, Stage, VideoInfo, analyzer Findings, ProfanityMatch and the
// DubPhrase clusters derived from it.
package models

import "sync"

// Stage is the ordered job lifecycle. A job may revisit the
// SEGMENTING -> EDITING -> RECONSTRUCTING -> COMPLETED sub-cycle once per
// chained edit.
type Stage string

const (
	StageInitialized      Stage = "initialized"
	StageExtractingFrames Stage = "extracting_frames"
	StageAnalyzing        Stage = "analyzing"
	StageSegmenting       Stage = "segmenting"
	StageEditing          Stage = "editing"
	StageReconstructing   Stage = "reconstructing"
	StageCompleted        Stage = "completed"
	StageFailed           Stage = "failed"
)

// VideoInfo describes the probed properties of a video file.
type VideoInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FPS         float64 `json:"fps"`
	Duration    float64 `json:"durationSec"`
	Codec       string  `json:"codec"`
	HasAudio    bool    `json:"hasAudio"`
	TotalFrames int     `json:"totalFrames"`
}

// FindingCategory enumerates the compliance concerns the analyzer surfaces.
type FindingCategory string

const (
	CategoryAlcohol  FindingCategory = "alcohol"
	CategoryLogo     FindingCategory = "logo"
	CategoryViolence FindingCategory = "violence"
	CategoryLanguage FindingCategory = "language"
	CategoryOther    FindingCategory = "other"
)

// FindingStatus is the severity bucket attached to a Finding.
type FindingStatus string

const (
	FindingWarning  FindingStatus = "warning"
	FindingCritical FindingStatus = "critical"
)

// Confidence is a coarse, human-readable confidence band — analyzers are not
// asked for a numeric score, only Low/Medium/High, to keep prompts simple and
// comparable across providers.
type Confidence string

const (
	ConfidenceLow    Confidence = "Low"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceHigh   Confidence = "High"
)

// Box is a percentage-based bounding box (0-100), not pixels, so it survives
// resizing between the analyzer's working resolution and the source video.
type Box struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Finding is one flagged segment returned by AnalyzerClient.AnalyzeVideo.
type Finding struct {
	Category        FindingCategory `json:"category"`
	Content         string          `json:"content"`
	StartTime       float64         `json:"startTime"`
	EndTime         float64         `json:"endTime"`
	Status          FindingStatus   `json:"status"`
	Confidence      Confidence      `json:"confidence"`
	Box             *Box            `json:"box,omitempty"`
	SuggestedAction string          `json:"suggestedAction"`
}

// ProfanityMatch is one detected profane word or phrase with its timing.
// Invariant: EndTime > StartTime.
type ProfanityMatch struct {
	Word        string     `json:"word"`
	StartTime   float64    `json:"startTime"`
	EndTime     float64    `json:"endTime"`
	Replacement string     `json:"replacement"`
	Confidence  Confidence `json:"confidence"`
	Context     string     `json:"context"`
	SpeakerID   string     `json:"speakerId,omitempty"`
}

// DubPhrase is a cluster of consecutive same-speaker ProfanityMatches within
// the phrase-gap threshold, ready for a single TTS call.
type DubPhrase struct {
	SpeakerID string  `json:"speakerId"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Phrase    string  `json:"phrase"`
}

// MaskRef identifies a cached mask video on disk by its path and prompt
// hash. It has no clip-range field; a per-clip mask differs from a
// full-video one only through its path.
type MaskRef struct {
	Path       string
	PromptHash string
}

// Job is the unit of work the orchestrator and edit operations mutate. Every
// Job owns exactly one on-disk directory and two locks with distinct scopes:
//
//   - OpMu serializes entire mutating operations (RunOperation, ExtractFrames)
//     end-to-end, including the suspension points inside them. At most one
//     goroutine ever holds a given job's OpMu at a time — this is what
//     actually enforces the "only one operation mutates a job's state at
//     once" rule, equivalent to routing the job through a single-consumer
//     queue.
//   - Mu guards brief field-level reads/writes (Stage, OutputPath, Progress,
//     ...) and must never be held across a subprocess/network call —
//     read-then-release, do the I/O, then re-acquire to write.
type Job struct {
	OpMu sync.Mutex `json:"-"`
	Mu   sync.Mutex `json:"-"`

	ID               string           `json:"jobId"`
	SourceVideoPath  string           `json:"-"`
	SourceURL        string           `json:"sourceUrl,omitempty"`
	OutputPath       string           `json:"-"`
	OutputFilename   string           `json:"outputFilename,omitempty"`
	FramesDir        string           `json:"-"`
	AudioPath        string           `json:"-"`
	FramePaths       []string         `json:"frameFilenames,omitempty"`
	VideoInfo        VideoInfo        `json:"videoInfo"`
	Stage            Stage            `json:"stage"`
	Progress         float64          `json:"progress"`
	Error            string           `json:"error,omitempty"`
	ProfanityMatches []ProfanityMatch `json:"profanityMatches,omitempty"`
}

// Snapshot is the JSON-serializable projection of a Job persisted to
// blob://jobs/{id}/state.json. Paths are filenames only — the reader
// reconstructs absolute paths relative to the local job directory, so a
// restored job tolerates a different base directory or host.
type Snapshot struct {
	JobID            string           `json:"jobId"`
	Stage            Stage            `json:"stage"`
	Progress         float64          `json:"progress"`
	VideoInfo        VideoInfo        `json:"videoInfo"`
	SourceURL        string           `json:"sourceUrl,omitempty"`
	OutputFilename   string           `json:"outputFilename,omitempty"`
	FrameFilenames   []string         `json:"frameFilenames,omitempty"`
	Error            string           `json:"error,omitempty"`
	ProfanityMatches []ProfanityMatch `json:"profanityMatches,omitempty"`
}

// ToSnapshot builds the persisted projection. Caller must hold j.Mu.
func (j *Job) ToSnapshot() Snapshot {
	return Snapshot{
		JobID:            j.ID,
		Stage:            j.Stage,
		Progress:         j.Progress,
		VideoInfo:        j.VideoInfo,
		SourceURL:        j.SourceURL,
		OutputFilename:   j.OutputFilename,
		FrameFilenames:   j.FramePaths,
		Error:            j.Error,
		ProfanityMatches: j.ProfanityMatches,
	}
}
