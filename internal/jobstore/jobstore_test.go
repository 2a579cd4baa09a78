package jobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bobarin/vidguard/internal/blobstore"
	"github.com/bobarin/vidguard/internal/models"
)

func TestCreateCleansPriorJobDirectories(t *testing.T) {
	dir := t.TempDir()
	blobs := blobstore.New("https://example.com", "key", "bucket", "", "")
	store := New(dir, blobs)

	ctx := context.Background()
	first, err := store.Create(ctx, "/tmp/input1.mp4", true)
	if err != nil {
		t.Fatalf("create first job: %v", err)
	}
	firstDir := store.JobDir(first.ID)
	if _, err := os.Stat(firstDir); err != nil {
		t.Fatalf("expected first job dir to exist: %v", err)
	}

	second, err := store.Create(ctx, "/tmp/input2.mp4", true)
	if err != nil {
		t.Fatalf("create second job: %v", err)
	}

	if _, err := os.Stat(firstDir); !os.IsNotExist(err) {
		t.Errorf("expected cleanupPrior to remove first job directory, stat err=%v", err)
	}
	if len(store.List(ctx)) != 1 {
		t.Errorf("expected exactly one job tracked after cleanupPrior create, got %d", len(store.List(ctx)))
	}
	if second.Stage != models.StageInitialized {
		t.Errorf("expected new job to start initialized, got %s", second.Stage)
	}
}

func TestRestoreFromDiskFindsInputAndFrames(t *testing.T) {
	dir := t.TempDir()
	blobs := blobstore.New("https://example.com", "key", "bucket", "", "")
	store := New(dir, blobs)

	jobDir := filepath.Join(dir, "deadbeef")
	framesDir := filepath.Join(jobDir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(jobDir, "input.mp4"), []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(framesDir, "frame_000000.png"), []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	job, err := store.restoreFromDisk("deadbeef")
	if err != nil {
		t.Fatalf("restoreFromDisk: %v", err)
	}
	if job.SourceVideoPath == "" {
		t.Errorf("expected source video path to be found")
	}
	if len(job.FramePaths) != 1 {
		t.Errorf("expected 1 frame path, got %d", len(job.FramePaths))
	}
}

func TestDeleteRemovesJobDirectory(t *testing.T) {
	dir := t.TempDir()
	blobs := blobstore.New("https://example.com", "key", "bucket", "", "")
	store := New(dir, blobs)
	ctx := context.Background()

	job, err := store.Create(ctx, "/tmp/input.mp4", false)
	if err != nil {
		t.Fatal(err)
	}
	jobDir := store.JobDir(job.ID)

	if err := store.Delete(ctx, job.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(jobDir); !os.IsNotExist(err) {
		t.Errorf("expected job directory removed after delete")
	}
}
