package clients

import "testing"

func TestFlaggedWordSetIncludesBuiltinsAndCustom(t *testing.T) {
	set := flaggedWordSet([]string{"Heck"})
	if !set["damn"] {
		t.Errorf("expected builtin word 'damn' to be flagged")
	}
	if !set["heck"] {
		t.Errorf("expected custom word to be lowercased and flagged")
	}
	if set["hello"] {
		t.Errorf("unrelated word should not be flagged")
	}
}

func TestBuildSegmentationPromptMaskOnlyIsBinary(t *testing.T) {
	p := buildSegmentationPrompt("cigarette", true, "", 0)
	if !contains(p, "binary") {
		t.Errorf("maskOnly prompt should mention binary mask, got %q", p)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
