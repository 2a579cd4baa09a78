package editops

import (
	"testing"

	"github.com/bobarin/vidguard/internal/models"
)

func TestApplyCustomReplacementsOverridesAndFallsBack(t *testing.T) {
	matches := []models.ProfanityMatch{
		{Word: "Damn", StartTime: 0, EndTime: 1},
		{Word: "Hell", StartTime: 1, EndTime: 2},
	}
	applyCustomReplacements(matches, map[string]string{"damn": "darn"})

	if matches[0].Replacement != "darn" {
		t.Errorf("expected custom replacement \"darn\", got %q", matches[0].Replacement)
	}
	if matches[1].Replacement != "Hell" {
		t.Errorf("expected fallback to detected word, got %q", matches[1].Replacement)
	}
}

func TestClusterDubPhrasesGroupsBySpeakerAndGap(t *testing.T) {
	matches := []models.ProfanityMatch{
		{SpeakerID: "s1", StartTime: 0, EndTime: 0.5, Replacement: "darn"},
		{SpeakerID: "s1", StartTime: 0.8, EndTime: 1.2, Replacement: "heck"},
		{SpeakerID: "s1", StartTime: 4.0, EndTime: 4.3, Replacement: "gosh"},
		{SpeakerID: "s2", StartTime: 4.4, EndTime: 4.6, Replacement: "golly"},
	}
	phrases := clusterDubPhrases(matches, 1.0)
	if len(phrases) != 3 {
		t.Fatalf("expected 3 phrases, got %d: %+v", len(phrases), phrases)
	}
	if phrases[0].Phrase != "darn heck" {
		t.Errorf("first phrase = %q, want \"darn heck\"", phrases[0].Phrase)
	}
	if phrases[0].StartTime != 0 || phrases[0].EndTime != 1.2 {
		t.Errorf("first phrase envelope = [%v,%v], want [0,1.2]", phrases[0].StartTime, phrases[0].EndTime)
	}
	if phrases[1].Phrase != "gosh" || phrases[2].Phrase != "golly" {
		t.Errorf("expected separate speaker phrases, got %+v", phrases[1:])
	}
}

func TestClusterDubPhrasesEmptyInput(t *testing.T) {
	if got := clusterDubPhrases(nil, 1.0); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}
