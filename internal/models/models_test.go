package models

import "testing"

func TestStageValues(t *testing.T) {
	stages := []Stage{
		StageInitialized,
		StageExtractingFrames,
		StageAnalyzing,
		StageSegmenting,
		StageEditing,
		StageReconstructing,
		StageCompleted,
		StageFailed,
	}

	for _, s := range stages {
		if s == "" {
			t.Errorf("empty stage found")
		}
	}
}

func TestProfanityMatchInvariant(t *testing.T) {
	m := ProfanityMatch{Word: "darn", StartTime: 1.2, EndTime: 1.5}
	if !(m.EndTime > m.StartTime) {
		t.Fatalf("expected EndTime > StartTime, got start=%v end=%v", m.StartTime, m.EndTime)
	}
}

func TestJobToSnapshotPreservesFields(t *testing.T) {
	j := &Job{
		ID:             "abcd1234",
		Stage:          StageCompleted,
		Progress:       100,
		OutputFilename: "output.mp4",
		FramePaths:     []string{"frame_000000.png", "frame_000001.png"},
	}

	snap := j.ToSnapshot()

	if snap.JobID != j.ID {
		t.Errorf("expected JobID=%s, got %s", j.ID, snap.JobID)
	}
	if snap.Stage != StageCompleted {
		t.Errorf("expected stage=completed, got %s", snap.Stage)
	}
	if len(snap.FrameFilenames) != 2 {
		t.Errorf("expected 2 frame filenames, got %d", len(snap.FrameFilenames))
	}
}
