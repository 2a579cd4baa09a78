// Package orchestrator is the Pipeline Orchestrator: the public façade every
// HTTP handler calls through. It owns no state of its own beyond its
// collaborators and per-concern semaphores; per-job-id serialization comes
// from each Job's OpMu, which RunOperation and ExtractFrames hold for their
// whole run.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/bobarin/vidguard/internal/blobstore"
	"github.com/bobarin/vidguard/internal/clients"
	"github.com/bobarin/vidguard/internal/config"
	"github.com/bobarin/vidguard/internal/editops"
	"github.com/bobarin/vidguard/internal/errs"
	"github.com/bobarin/vidguard/internal/jobqueue"
	"github.com/bobarin/vidguard/internal/jobstore"
	"github.com/bobarin/vidguard/internal/mediatoolbox"
	"github.com/bobarin/vidguard/internal/models"
)

// Orchestrator wires every collaborator together behind the operations the
// HTTP layer needs. Per-concern semaphores bound concurrent calls into each
// external client so one job's chunked generative-replace or fan-out dub
// cannot starve another job's segmentation or analysis call.
type Orchestrator struct {
	cfg     *config.Config
	jobs    *jobstore.Store
	blobs   *blobstore.Store
	queue   *jobqueue.Queue
	media   *mediatoolbox.Toolbox
	seg     clients.SegmentationClient
	gen     clients.GenerativeEditClient
	tts     clients.TTSClient
	analyze clients.AnalyzerClient

	segmentationSem chan struct{}
	generativeSem   chan struct{}
	ttsSem          chan struct{}
	analyzerSem     chan struct{}
	uploadSem       chan struct{}
}

func New(
	cfg *config.Config,
	jobs *jobstore.Store,
	blobs *blobstore.Store,
	queue *jobqueue.Queue,
	media *mediatoolbox.Toolbox,
	seg clients.SegmentationClient,
	gen clients.GenerativeEditClient,
	tts clients.TTSClient,
	analyze clients.AnalyzerClient,
) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		jobs:    jobs,
		blobs:   blobs,
		queue:   queue,
		media:   media,
		seg:     seg,
		gen:     gen,
		tts:     tts,
		analyze: analyze,

		segmentationSem: make(chan struct{}, cfg.SegmentationConcurrency),
		generativeSem:   make(chan struct{}, cfg.GenerativeConcurrency),
		ttsSem:          make(chan struct{}, cfg.TTSConcurrency),
		analyzerSem:     make(chan struct{}, cfg.AnalyzerConcurrency),
		uploadSem:       make(chan struct{}, cfg.UploadConcurrency),
	}
}

const (
	rateLimitAttempts  = 3
	rateLimitBaseDelay = 15 * time.Second
)

// withSemaphore bounds fn's concurrency to sem's capacity, releasing the
// slot once fn returns regardless of outcome. A RateLimited error from fn is
// retried with exponential backoff (15s, then 30s), for at most
// rateLimitAttempts calls in total.
func withSemaphore(ctx context.Context, sem chan struct{}, fn func() error) error {
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sem }()
	delay := rateLimitBaseDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || attempt >= rateLimitAttempts || !errs.Is(err, errs.KindRateLimited) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// UploadResult is what Upload returns to the HTTP layer immediately, before
// full frame extraction has finished in the background.
type UploadResult struct {
	JobID       string
	PreviewPath string
	VideoInfo   models.VideoInfo
}

// Upload writes videoBytes to a new job's directory, synchronously probes it
// and extracts a single preview frame, then schedules full frame extraction
// in the background via the queue and returns immediately.
func (o *Orchestrator) Upload(ctx context.Context, videoBytes []byte, filenameHint string) (UploadResult, error) {
	tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("upload-%d%s", time.Now().UnixNano(), filepath.Ext(filenameHint)))
	if err := os.WriteFile(tmpPath, videoBytes, 0644); err != nil {
		return UploadResult{}, fmt.Errorf("write uploaded bytes: %w", err)
	}
	defer os.Remove(tmpPath)

	duration, err := o.media.ProbeDuration(ctx, tmpPath)
	if err == nil && o.cfg.MaxUploadSeconds > 0 && duration > float64(o.cfg.MaxUploadSeconds) {
		return UploadResult{}, errs.InputError("upload exceeds maximum duration of %ds", o.cfg.MaxUploadSeconds)
	}

	job, err := o.jobs.Create(ctx, "", true)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create job: %w", err)
	}

	ext := filepath.Ext(filenameHint)
	if ext == "" {
		ext = ".mp4"
	}
	inputPath := filepath.Join(o.jobs.JobDir(job.ID), "input"+ext)
	if err := os.WriteFile(inputPath, videoBytes, 0644); err != nil {
		return UploadResult{}, fmt.Errorf("write input file: %w", err)
	}

	job.Mu.Lock()
	job.SourceVideoPath = inputPath
	job.Mu.Unlock()

	info, err := o.media.Probe(ctx, inputPath)
	if err != nil {
		return UploadResult{}, fmt.Errorf("probe uploaded video: %w", err)
	}

	previewPath := filepath.Join(o.jobs.JobDir(job.ID), "preview.png")
	if err := o.media.ExtractFrame(ctx, inputPath, 0, previewPath); err != nil {
		return UploadResult{}, fmt.Errorf("extract preview frame: %w", err)
	}

	job.Mu.Lock()
	job.VideoInfo = info
	job.Stage = models.StageExtractingFrames
	job.Mu.Unlock()
	if err := o.jobs.Update(ctx, job); err != nil {
		return UploadResult{}, fmt.Errorf("persist job: %w", err)
	}

	if o.queue != nil {
		framesDir := filepath.Join(o.jobs.JobDir(job.ID), "frames")
		if err := o.queue.Enqueue(ctx, jobqueue.Task{JobID: job.ID, VideoPath: inputPath, FramesDir: framesDir}); err != nil {
			log.Printf("orchestrator: failed to enqueue frame extraction for job %s: %v", job.ID, err)
		}
	}

	return UploadResult{JobID: job.ID, PreviewPath: previewPath, VideoInfo: info}, nil
}

// UseExistingVideo reuses a job whose local files already exist if sourceURL
// encodes a recognizable job id, else allocates a new job and lazily
// downloads sourceURL on first need.
func (o *Orchestrator) UseExistingVideo(ctx context.Context, sourceURL string) (string, error) {
	if id := jobIDFromURL(sourceURL); id != "" {
		if job, err := o.jobs.Get(ctx, id); err == nil {
			return job.ID, nil
		}
	}

	job, err := o.jobs.Create(ctx, "", false)
	if err != nil {
		return "", fmt.Errorf("create job for existing video: %w", err)
	}
	job.Mu.Lock()
	job.SourceURL = sourceURL
	job.Mu.Unlock()
	if err := o.jobs.Update(ctx, job); err != nil {
		return "", fmt.Errorf("persist job: %w", err)
	}
	return job.ID, nil
}

// OperationResult is runOperation's return value.
type OperationResult struct {
	DownloadPath string
	Message      string
}

// RunOperation dispatches a single named Edit Operation against jobID,
// chaining on the job's current output_path and persisting on transition.
func (o *Orchestrator) RunOperation(ctx context.Context, jobID string, op string, params map[string]any) (OperationResult, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return OperationResult{}, err
	}

	// OpMu is held for the entire operation, including the suspension points
	// inside it, so at most one operation mutates this job at a time — the
	// per-job-lock half of the serialization rule. job.Mu below is only ever
	// taken for brief field bracketing and is always released before I/O.
	job.OpMu.Lock()
	defer job.OpMu.Unlock()

	if job.SourceVideoPath == "" {
		if err := o.ensureSourceDownloaded(ctx, job); err != nil {
			return OperationResult{}, err
		}
	}

	job.Mu.Lock()
	job.Stage = models.StageEditing
	job.Mu.Unlock()
	if err := o.jobs.Update(ctx, job); err != nil {
		return OperationResult{}, err
	}

	workDir := filepath.Join(o.jobs.JobDir(job.ID), "work")
	if err := editops.EnsureWorkDir(workDir); err != nil {
		return OperationResult{}, err
	}
	deps := editops.Deps{Media: o.media, WorkDir: workDir}
	cacheDir := filepath.Join(o.jobs.JobDir(job.ID), o.cfg.MaskCacheDirName)

	var outPath string
	var opErr error

	switch op {
	case "blur-object":
		err := withSemaphore(ctx, o.segmentationSem, func() error {
			var innerErr error
			outPath, innerErr = editops.Blur(ctx, deps, o.seg, o.analyze, cacheDir, job, blurRequestFrom(params), o.cfg.ClipBufferSec)
			return innerErr
		})
		opErr = err
	case "replace-generative":
		err := withSemaphore(ctx, o.generativeSem, func() error {
			var innerErr error
			outPath, innerErr = editops.GenerativeReplace(ctx, deps, o.gen, o.blobs, job, generativeRequestFrom(params), o.cfg.ClipBufferSec, o.cfg.GenerativeChunkSeconds)
			return innerErr
		})
		opErr = err
	case "beep-profanity":
		err := withSemaphore(ctx, o.analyzerSem, func() error {
			var innerErr error
			outPath, innerErr = editops.Beep(ctx, deps, o.analyze, job, beepRequestFrom(params), o.cfg.ProfanityMergeGapSec, o.cfg.MutePaddingSec)
			return innerErr
		})
		opErr = err
	case "dub-profanity":
		// Dub phrase windows are muted with 0.1s of padding on each side,
		// wider than the MutePaddingSec the beep path uses.
		const dubMutePaddingSec = 0.1
		err := withSemaphore(ctx, o.ttsSem, func() error {
			var innerErr error
			outPath, innerErr = editops.Dub(ctx, deps, o.analyze, o.tts, job, dubRequestFrom(params), o.cfg.DubPhraseGapSec, o.cfg.DubOverlayGain, dubMutePaddingSec)
			return innerErr
		})
		opErr = err
	default:
		opErr = errs.InputError("unknown operation %q", op)
	}

	if opErr != nil {
		job.Mu.Lock()
		job.Stage = models.StageFailed
		job.Error = opErr.Error()
		job.Mu.Unlock()
		_ = o.jobs.Update(ctx, job)
		return OperationResult{}, opErr
	}

	finalPath := filepath.Join(o.jobs.JobDir(job.ID), "output.mp4")
	if outPath != finalPath {
		if err := os.Rename(outPath, finalPath); err != nil {
			return OperationResult{}, fmt.Errorf("finalize operation output: %w", err)
		}
	}

	job.Mu.Lock()
	job.OutputPath = finalPath
	job.OutputFilename = "output.mp4"
	job.Stage = models.StageCompleted
	job.Error = ""
	job.Mu.Unlock()
	if err := o.jobs.Update(ctx, job); err != nil {
		return OperationResult{}, err
	}

	return OperationResult{DownloadPath: finalPath, Message: fmt.Sprintf("%s completed", op)}, nil
}

// StatusResult is getStatus's return value.
type StatusResult struct {
	Stage    models.Stage
	Progress float64
	Error    string
}

func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (StatusResult, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return StatusResult{}, err
	}
	job.Mu.Lock()
	defer job.Mu.Unlock()
	return StatusResult{Stage: job.Stage, Progress: job.Progress, Error: job.Error}, nil
}

// Download returns the path to serve: output_path if present, else source.
func (o *Orchestrator) Download(ctx context.Context, jobID string) (string, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	job.Mu.Lock()
	defer job.Mu.Unlock()
	if job.OutputPath != "" {
		return job.OutputPath, nil
	}
	if job.SourceVideoPath == "" {
		return "", errs.NotFound("job %s has no downloadable file yet", jobID)
	}
	return job.SourceVideoPath, nil
}

func (o *Orchestrator) DeleteJob(ctx context.Context, jobID string) error {
	return o.jobs.Delete(ctx, jobID)
}

// AnalyzeVideo runs a full compliance pass over jobID's current video.
func (o *Orchestrator) AnalyzeVideo(ctx context.Context, jobID string) (clients.AnalyzerResult, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return clients.AnalyzerResult{}, err
	}
	source := currentOutput(job)

	var result clients.AnalyzerResult
	err = withSemaphore(ctx, o.analyzerSem, func() error {
		var innerErr error
		result, innerErr = o.analyze.AnalyzeVideo(ctx, source)
		return innerErr
	})
	return result, err
}

// AnalyzeAudio runs word-level profanity detection over jobID's current audio.
func (o *Orchestrator) AnalyzeAudio(ctx context.Context, jobID string, customWords []string) ([]models.ProfanityMatch, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	source := currentOutput(job)

	var matches []models.ProfanityMatch
	err = withSemaphore(ctx, o.analyzerSem, func() error {
		var innerErr error
		matches, innerErr = o.analyze.AnalyzeAudio(ctx, source, customWords)
		return innerErr
	})
	if err == nil {
		job.Mu.Lock()
		job.ProfanityMatches = matches
		job.Mu.Unlock()
		_ = o.jobs.Update(ctx, job)
	}
	return matches, err
}

// SuggestAlternatives proposes clean-language alternatives for each word,
// matched to approximately the same spoken duration.
func (o *Orchestrator) SuggestAlternatives(ctx context.Context, words []string, approxDurationSec float64) (map[string][]string, error) {
	out := make(map[string][]string, len(words))
	for _, word := range words {
		var alts []string
		err := withSemaphore(ctx, o.analyzerSem, func() error {
			var innerErr error
			alts, innerErr = o.analyze.SuggestAlternatives(ctx, word, approxDurationSec, 3)
			return innerErr
		})
		if err != nil {
			return nil, fmt.Errorf("suggest alternatives for %q: %w", word, err)
		}
		out[word] = alts
	}
	return out, nil
}

// PreviewFramePath resolves the on-disk path of jobID's i-th extracted
// frame, falling back to the single synchronous preview frame (index 0)
// taken at upload time if background extraction hasn't reached it yet.
func (o *Orchestrator) PreviewFramePath(ctx context.Context, jobID string, index int) (string, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	job.Mu.Lock()
	defer job.Mu.Unlock()
	if index == 0 {
		preview := filepath.Join(o.jobs.JobDir(job.ID), "preview.png")
		if _, statErr := os.Stat(preview); statErr == nil {
			return preview, nil
		}
	}
	if index < 0 || index >= len(job.FramePaths) {
		return "", errs.NotFound("frame %d not available for job %s", index, jobID)
	}
	return filepath.Join(job.FramesDir, job.FramePaths[index]), nil
}

func currentOutput(job *models.Job) string {
	job.Mu.Lock()
	defer job.Mu.Unlock()
	if job.OutputPath != "" {
		return job.OutputPath
	}
	return job.SourceVideoPath
}

// ExtractFrames is the background task the frame-extraction queue consumer
// runs. It sets the stage when it starts and the frame list, progress and
// stage once extraction finishes, each under job.Mu, so concurrent status
// polls always see a consistent job.
func (o *Orchestrator) ExtractFrames(ctx context.Context, task jobqueue.Task) error {
	job, err := o.jobs.Get(ctx, task.JobID)
	if err != nil {
		return err
	}

	job.OpMu.Lock()
	defer job.OpMu.Unlock()

	job.Mu.Lock()
	job.Stage = models.StageExtractingFrames
	job.Mu.Unlock()

	names, err := o.media.ExtractFrames(ctx, task.VideoPath, task.FramesDir)
	if err != nil {
		job.Mu.Lock()
		job.Stage = models.StageFailed
		job.Error = err.Error()
		job.Mu.Unlock()
		_ = o.jobs.Update(ctx, job)
		return err
	}

	job.Mu.Lock()
	job.FramesDir = task.FramesDir
	job.FramePaths = names
	job.Progress = 100
	job.Stage = models.StageAnalyzing
	job.Mu.Unlock()
	return o.jobs.Update(ctx, job)
}

func (o *Orchestrator) ensureSourceDownloaded(ctx context.Context, job *models.Job) error {
	job.Mu.Lock()
	sourceURL := job.SourceURL
	job.Mu.Unlock()
	if sourceURL == "" {
		return errs.MissingPrerequisite("job %s has no source video or source url", job.ID)
	}

	return withSemaphore(ctx, o.uploadSem, func() error {
		data, err := downloadURL(ctx, sourceURL)
		if err != nil {
			return fmt.Errorf("download source video: %w", err)
		}
		inputPath := filepath.Join(o.jobs.JobDir(job.ID), "input.mp4")
		if err := os.WriteFile(inputPath, data, 0644); err != nil {
			return fmt.Errorf("write downloaded source: %w", err)
		}
		job.Mu.Lock()
		job.SourceVideoPath = inputPath
		job.Mu.Unlock()
		return o.jobs.Update(ctx, job)
	})
}

// jobIDFromURL extracts a job id from a URL of the form .../jobs/{id}/... —
// the shape of this service's blob keys (jobs/{id}/...) — or returns ""
// if sourceURL doesn't look like one of ours.
func jobIDFromURL(sourceURL string) string {
	const marker = "/jobs/"
	idx := indexOf(sourceURL, marker)
	if idx < 0 {
		return ""
	}
	rest := sourceURL[idx+len(marker):]
	for i, c := range rest {
		if c == '/' {
			return rest[:i]
		}
	}
	return rest
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
