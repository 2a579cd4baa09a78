package editops

import (
	"testing"

	"github.com/bobarin/vidguard/internal/models"
)

func TestMergeAdjacentMatchesCombinesWithinGap(t *testing.T) {
	matches := []models.ProfanityMatch{
		{Word: "a", StartTime: 1.2, EndTime: 1.5},
		{Word: "b", StartTime: 4.0, EndTime: 4.3},
		{Word: "c", StartTime: 4.5, EndTime: 4.8},
	}
	merged := mergeAdjacentMatches(matches, 0.5)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged windows, got %d: %v", len(merged), merged)
	}
	if merged[0].StartTime != 1.2 || merged[0].EndTime != 1.5 {
		t.Errorf("first window = %+v, want [1.2,1.5]", merged[0])
	}
	if merged[1].StartTime != 4.0 || merged[1].EndTime != 4.8 {
		t.Errorf("second window = %+v, want [4.0,4.8]", merged[1])
	}
}

func TestMergeAdjacentMatchesEmptyInput(t *testing.T) {
	if got := mergeAdjacentMatches(nil, 0.5); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestMergeAdjacentMatchesNoMergeBeyondGap(t *testing.T) {
	matches := []models.ProfanityMatch{
		{Word: "a", StartTime: 0, EndTime: 1},
		{Word: "b", StartTime: 5, EndTime: 6},
	}
	merged := mergeAdjacentMatches(matches, 0.5)
	if len(merged) != 2 {
		t.Errorf("expected no merge across a large gap, got %d windows", len(merged))
	}
}
