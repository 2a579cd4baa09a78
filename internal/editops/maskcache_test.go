package editops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSlugifyTruncatesAndLowercases(t *testing.T) {
	got := slugify("A Man In A Red Hat!!", 20)
	if got != strings.ToLower(got) {
		t.Errorf("slugify(%q) = %q, not lowercase", "A Man In A Red Hat!!", got)
	}
	if len(got) > 20 {
		t.Errorf("slugify result %q exceeds max length 20", got)
	}
}

func TestSlugifyEmptyFallsBackToMask(t *testing.T) {
	if got := slugify("!!!", 20); got != "mask" {
		t.Errorf("slugify(%q) = %q, want \"mask\"", "!!!", got)
	}
}

func TestMaskCachePathDeterministicAndClipSuffixed(t *testing.T) {
	full := MaskCachePath("/cache", "a man in a red hat", false)
	clip := MaskCachePath("/cache", "a man in a red hat", true)
	if full == clip {
		t.Errorf("expected distinct paths for full-video vs per-clip masks")
	}
	if !strings.HasSuffix(clip, "_clip.mp4") {
		t.Errorf("expected clip mask path to end in _clip.mp4, got %q", clip)
	}
	again := MaskCachePath("/cache", "a man in a red hat", false)
	if full != again {
		t.Errorf("expected MaskCachePath to be deterministic for the same prompt")
	}
}

func TestCachedMaskReturnsEmptyWhenMissing(t *testing.T) {
	dir := t.TempDir()
	if got := CachedMask(dir, "nonexistent prompt", false); got != "" {
		t.Errorf("expected empty string for uncached prompt, got %q", got)
	}
}

func TestCachedMaskReturnsPathWhenPresent(t *testing.T) {
	dir := t.TempDir()
	path := MaskCachePath(dir, "a dog", false)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := CachedMask(dir, "a dog", false); got != path {
		t.Errorf("CachedMask = %q, want %q", got, path)
	}
}
