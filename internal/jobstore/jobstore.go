// Package jobstore is the Job Store component: a single owned in-process
// registry (a mutex-guarded map) with the blob store as its only durable
// side-channel. There is deliberately no relational schema or DB driver
// here — disk and the in-memory map are the source of truth, and blob
// storage exists only so a job survives a process restart or a move to a
// different host.
package jobstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bobarin/vidguard/internal/blobstore"
	"github.com/bobarin/vidguard/internal/errs"
	"github.com/bobarin/vidguard/internal/models"
)

// Store holds every in-flight job plus the local base directory each job's
// files live under and the blob store used for durable snapshots.
type Store struct {
	mu      sync.Mutex
	jobs    map[string]*models.Job
	baseDir string
	blobs   *blobstore.Store
}

func New(baseDir string, blobs *blobstore.Store) *Store {
	return &Store{
		jobs:    make(map[string]*models.Job),
		baseDir: baseDir,
		blobs:   blobs,
	}
}

func newJobID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (s *Store) jobDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

// Create allocates a new job rooted at sourcePath. With cleanupPrior=true
// (the default for a fresh upload) every existing job directory AND the
// in-memory map are cleared first, since local disk is the scarce resource
// this service runs on — at most one job's media lives on disk at a time.
func (s *Store) Create(ctx context.Context, sourcePath string, cleanupPrior bool) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cleanupPrior {
		if entries, err := os.ReadDir(s.baseDir); err == nil {
			for _, e := range entries {
				if e.IsDir() {
					os.RemoveAll(filepath.Join(s.baseDir, e.Name()))
				}
			}
		}
		s.jobs = make(map[string]*models.Job)
	}

	id := newJobID()
	dir := s.jobDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create job directory: %w", err)
	}

	job := &models.Job{
		ID:              id,
		SourceVideoPath: sourcePath,
		Stage:           models.StageInitialized,
	}
	s.jobs[id] = job
	return job, nil
}

// Get retrieves a job by id, attempting in order: in-memory, local
// directory recovery, blob-store JSON recovery.
func (s *Store) Get(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	if job, ok := s.jobs[id]; ok {
		s.mu.Unlock()
		return job, nil
	}
	s.mu.Unlock()

	if job, err := s.restoreFromDisk(id); err == nil {
		s.mu.Lock()
		s.jobs[id] = job
		s.mu.Unlock()
		return job, nil
	}

	job, err := s.restoreFromBlob(ctx, id)
	if err != nil {
		return nil, errs.NotFound("job %s not found", id)
	}
	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()
	return job, nil
}

// restoreFromDisk reconstructs a Job from its on-disk directory when the
// process restarted but local files survived (e.g. same host, new
// process). It looks for an input.* file and any frames/ directory already
// extracted.
func (s *Store) restoreFromDisk(id string) (*models.Job, error) {
	dir := s.jobDir(id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	job := &models.Job{ID: id, Stage: models.StageInitialized}
	found := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "input.") {
			job.SourceVideoPath = filepath.Join(dir, e.Name())
			found = true
		}
		if strings.HasPrefix(e.Name(), "output.") {
			job.OutputPath = filepath.Join(dir, e.Name())
			job.OutputFilename = e.Name()
			job.Stage = models.StageCompleted
		}
	}
	if !found {
		return nil, fmt.Errorf("no input file found in %s", dir)
	}

	framesDir := filepath.Join(dir, "frames")
	if frameEntries, err := os.ReadDir(framesDir); err == nil {
		job.FramesDir = framesDir
		var frames []string
		for _, fe := range frameEntries {
			frames = append(frames, fe.Name())
		}
		sort.Strings(frames)
		job.FramePaths = frames
	}

	return job, nil
}

// restoreFromBlob recovers a job from its persisted snapshot, re-downloading
// the source video if only a source_url remains (no local copy survived).
func (s *Store) restoreFromBlob(ctx context.Context, id string) (*models.Job, error) {
	var snap models.Snapshot
	if err := s.blobs.GetJSON(ctx, snapshotKey(id), &snap); err != nil {
		return nil, err
	}

	dir := s.jobDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("recreate job directory: %w", err)
	}

	job := &models.Job{
		ID:               id,
		SourceURL:        snap.SourceURL,
		OutputFilename:   snap.OutputFilename,
		VideoInfo:        snap.VideoInfo,
		Stage:            snap.Stage,
		Progress:         snap.Progress,
		Error:            snap.Error,
		FramePaths:       snap.FrameFilenames,
		ProfanityMatches: snap.ProfanityMatches,
	}

	if job.OutputFilename != "" {
		job.OutputPath = filepath.Join(dir, job.OutputFilename)
	}
	if job.FramePaths != nil {
		job.FramesDir = filepath.Join(dir, "frames")
	}

	if job.SourceURL != "" {
		if _, err := os.Stat(filepath.Join(dir, "input.mp4")); os.IsNotExist(err) {
			data, err := s.blobs.Get(ctx, sourceKey(id))
			if err == nil {
				inputPath := filepath.Join(dir, "input.mp4")
				if writeErr := os.WriteFile(inputPath, data, 0644); writeErr == nil {
					job.SourceVideoPath = inputPath
				}
			}
		}
	}

	return job, nil
}

// Update persists job's current state, writing a blob snapshot since stage
// or output_path changed on every call site that calls Update — the
// snapshot write itself is unconditional here because detecting "did stage
// change" would require diffing against the previous snapshot, which is
// exactly what holding the per-job lock across a mutation already prevents
// races on.
func (s *Store) Update(ctx context.Context, job *models.Job) error {
	job.Mu.Lock()
	snap := job.ToSnapshot()
	job.Mu.Unlock()

	return s.blobs.PutJSON(ctx, snapshotKey(job.ID), snap)
}

// Delete removes a job from the registry and its on-disk directory.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()

	return os.RemoveAll(s.jobDir(id))
}

// List returns every job currently tracked in memory.
func (s *Store) List(ctx context.Context) []*models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID < jobs[k].ID })
	return jobs
}

// Restore forces a reload of id from disk/blob storage even if an
// in-memory entry exists, used after an external process touched job
// files directly.
func (s *Store) Restore(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	return s.Get(ctx, id)
}

// JobDir exposes the local directory a job's files live under, for callers
// that need to place new files (frames, clips, output) alongside it.
func (s *Store) JobDir(id string) string {
	return s.jobDir(id)
}

func snapshotKey(id string) string {
	return fmt.Sprintf("jobs/%s/state.json", id)
}

func sourceKey(id string) string {
	return fmt.Sprintf("jobs/%s/source.mp4", id)
}
