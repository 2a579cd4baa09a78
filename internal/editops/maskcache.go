package editops

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// slugify produces a short filesystem-safe prefix from a prompt, capped at
// 20 characters, matching the cache filename convention
// mask_{promptSlug20}_{md5(promptLower)[:8]}{_clip}?.mp4.
func slugify(prompt string, maxLen int) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(prompt), "_")
	slug = strings.Trim(slug, "_")
	if len(slug) > maxLen {
		slug = slug[:maxLen]
	}
	if slug == "" {
		slug = "mask"
	}
	return slug
}

func promptHash(prompt string) string {
	sum := md5.Sum([]byte(strings.ToLower(prompt)))
	return hex.EncodeToString(sum[:])[:8]
}

// MaskCachePath returns the content-addressed path a mask for prompt would
// live at inside cacheDir. isClip marks a per-clip mask, cached separately
// from full-video masks of the same prompt so the two never collide.
func MaskCachePath(cacheDir, prompt string, isClip bool) string {
	name := fmt.Sprintf("mask_%s_%s", slugify(prompt, 20), promptHash(prompt))
	if isClip {
		name += "_clip"
	}
	return filepath.Join(cacheDir, name+".mp4")
}

// CachedMask returns the cached mask path if it already exists on disk, or
// "" if a fresh SegmentationClient call is required.
func CachedMask(cacheDir, prompt string, isClip bool) string {
	path := MaskCachePath(cacheDir, prompt, isClip)
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}
