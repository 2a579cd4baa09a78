// Package mediatoolbox wraps ffmpeg/ffprobe as the single media-manipulation
// surface every edit operation calls through. Every function shells out via
// os/exec, captures stderr for diagnostics, and maps a non-zero exit to
// errs.MediaErrorf so callers never have to special-case ffmpeg's own error
// text.
package mediatoolbox

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bobarin/vidguard/internal/errs"
	"github.com/bobarin/vidguard/internal/models"
)

// Toolbox holds the resolved ffmpeg/ffprobe binary paths. It is stateless
// beyond that — every method is safe to call concurrently from multiple
// goroutines since each invocation is its own subprocess.
type Toolbox struct {
	FFmpegPath  string
	FFprobePath string
}

func New(ffmpegPath, ffprobePath string) *Toolbox {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Toolbox{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

func (t *Toolbox) run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errs.MediaErrorf(strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (t *Toolbox) output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errs.MediaErrorf(strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// escapeFilterPath escapes a path for embedding inside an ffmpeg filtergraph
// string (colons, backslashes and quotes all have special meaning there).
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

// Probe inspects a video file and returns its VideoInfo.
func (t *Toolbox) Probe(ctx context.Context, videoPath string) (models.VideoInfo, error) {
	out, err := t.output(ctx, t.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,codec_name,nb_frames",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1",
		videoPath,
	)
	if err != nil {
		return models.VideoInfo{}, err
	}

	info := models.VideoInfo{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := kv[0], kv[1]
		switch key {
		case "width":
			info.Width, _ = strconv.Atoi(val)
		case "height":
			info.Height, _ = strconv.Atoi(val)
		case "codec_name":
			info.Codec = val
		case "nb_frames":
			info.TotalFrames, _ = strconv.Atoi(val)
		case "r_frame_rate":
			info.FPS = parseFrameRate(val)
		case "duration":
			var d float64
			fmt.Sscanf(val, "%f", &d)
			info.Duration = d
		}
	}

	hasAudioOut, err := t.output(ctx, t.FFprobePath,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		videoPath,
	)
	if err == nil {
		info.HasAudio = strings.TrimSpace(hasAudioOut) != ""
	}

	return info, nil
}

func parseFrameRate(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		var f float64
		fmt.Sscanf(s, "%f", &f)
		return f
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// ProbeDuration is a narrow helper used by callers that only need the
// duration, not a full Probe (e.g. measuring an audio-only file).
func (t *Toolbox) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := t.output(ctx, t.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	var d float64
	if _, err := fmt.Sscanf(strings.TrimSpace(out), "%f", &d); err != nil {
		return 0, errs.MediaErrorf("could not parse duration from ffprobe output")
	}
	return d, nil
}

// ExtractClip cuts [start, start+duration) out of srcPath via stream copy,
// clamped to not run past the source length. Stream copy keeps this cheap —
// it is used on the hot path of every smart-clip operation.
func (t *Toolbox) ExtractClip(ctx context.Context, srcPath string, start, duration float64, outPath string) error {
	if duration <= 0 {
		return errs.InputError("extract_clip: duration must be positive, got %v", duration)
	}
	return t.run(ctx, t.FFmpegPath,
		"-ss", formatSeconds(start),
		"-i", srcPath,
		"-t", formatSeconds(duration),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		"-y", outPath,
	)
}

// ExtractFrame grabs a single frame at timestamp t and writes it as a PNG.
func (t *Toolbox) ExtractFrame(ctx context.Context, srcPath string, at float64, outPath string) error {
	return t.run(ctx, t.FFmpegPath,
		"-ss", formatSeconds(at),
		"-i", srcPath,
		"-frames:v", "1",
		"-y", outPath,
	)
}

// ExtractFrames dumps every frame of srcPath into dir as frame_000000.png,
// frame_000001.png, ... in presentation order, returning the ordered list of
// filenames (not full paths).
func (t *Toolbox) ExtractFrames(ctx context.Context, srcPath, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}
	pattern := filepath.Join(dir, "frame_%06d.png")
	if err := t.run(ctx, t.FFmpegPath, "-i", srcPath, "-y", pattern); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "frame_") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// BuildVideo muxes an image or frame sequence with an audio track, ending
// when the shorter stream ends.
func (t *Toolbox) BuildVideo(ctx context.Context, imagePath, audioPath, outPath string, fps int) error {
	if fps <= 0 {
		fps = 30
	}
	return t.run(ctx, t.FFmpegPath,
		"-loop", "1",
		"-i", imagePath,
		"-i", audioPath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		"-shortest",
		"-y", outPath,
	)
}

// Concat joins clips end-to-end via the concat demuxer (stream copy, no
// re-encode). All clips must already share codec/fps/resolution — callers
// normalize_fps first when that isn't guaranteed.
func (t *Toolbox) Concat(ctx context.Context, clipPaths []string, outPath string) error {
	if len(clipPaths) == 0 {
		return errs.InputError("concat: no clips given")
	}
	if len(clipPaths) == 1 {
		return t.run(ctx, t.FFmpegPath, "-i", clipPaths[0], "-c", "copy", "-y", outPath)
	}

	listPath := outPath + ".concat.txt"
	var sb strings.Builder
	for _, p := range clipPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		fmt.Fprintf(&sb, "file '%s'\n", escapeFilterPath(abs))
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listPath)

	return t.run(ctx, t.FFmpegPath,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y", outPath,
	)
}

// NormalizeFPS re-encodes srcPath to targetFPS unless its current fps is
// already within 0.5fps of the target, in which case it is copied through
// untouched — this keeps the common case (clips already matching the
// source's native fps) cheap.
func (t *Toolbox) NormalizeFPS(ctx context.Context, srcPath string, targetFPS float64, outPath string) error {
	info, err := t.Probe(ctx, srcPath)
	if err != nil {
		return err
	}
	if math.Abs(info.FPS-targetFPS) <= 0.5 {
		return t.run(ctx, t.FFmpegPath, "-i", srcPath, "-c", "copy", "-y", outPath)
	}
	return t.run(ctx, t.FFmpegPath,
		"-i", srcPath,
		"-r", formatSeconds(targetFPS),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-y", outPath,
	)
}

// BuildStillMask holds a single mask image for duration seconds, producing a
// per-frame mask video ApplyMaskEffect can composite against a clip — used
// when a segmentation backend returns one still frame rather than a video.
func (t *Toolbox) BuildStillMask(ctx context.Context, imagePath string, duration float64, fps float64, outPath string) error {
	if duration <= 0 {
		return errs.InputError("build_still_mask: duration must be positive, got %v", duration)
	}
	if fps <= 0 {
		fps = 30
	}
	return t.run(ctx, t.FFmpegPath,
		"-loop", "1",
		"-i", imagePath,
		"-t", formatSeconds(duration),
		"-r", formatSeconds(fps),
		"-pix_fmt", "yuv420p",
		"-y", outPath,
	)
}

// MaskEffectKind selects the visual treatment ApplyMaskEffect applies inside
// the masked region.
type MaskEffectKind string

const (
	MaskEffectBlur     MaskEffectKind = "blur"
	MaskEffectPixelate MaskEffectKind = "pixelate"
)

// strengthToBoxBlur passes strength straight through as the boxblur luma
// radius, clamped to [10, 100] — a radius of 100 fully obscures a
// face-sized region.
func strengthToBoxBlur(strength int) int {
	if strength < 10 {
		strength = 10
	}
	if strength > 100 {
		strength = 100
	}
	return strength
}

// strengthToPixelScale maps strength to the pixelation block size, a
// monotonically decreasing function of strength (stronger = blockier).
func strengthToPixelScale(strength int) int {
	if strength < 1 {
		strength = 1
	}
	size := 64 / (strength/10 + 1)
	if size < 8 {
		size = 8
	}
	return size
}

// ApplyMaskEffect composites a blurred/pixelated copy of srcPath into
// srcPath wherever maskPath is white, leaving black-masked pixels as in the
// source (up to the output re-encode). maskPath is a per-frame video
// matching srcPath's duration/fps, white = affected region.
func (t *Toolbox) ApplyMaskEffect(ctx context.Context, srcPath, maskPath string, kind MaskEffectKind, strength int, outPath string) error {
	var fxFilter string
	switch kind {
	case MaskEffectPixelate:
		scale := strengthToPixelScale(strength)
		fxFilter = fmt.Sprintf("[tofx]scale=iw/%d:ih/%d:flags=neighbor,scale=iw*%d:ih*%d:flags=neighbor[fx]", scale, scale, scale, scale)
	default:
		radius := strengthToBoxBlur(strength)
		fxFilter = fmt.Sprintf("[tofx]boxblur=%d:%d[fx]", radius, radius/2)
	}

	// The mask is produced independently of srcPath (segmentation runs on a
	// single frame or clip) and is rarely the same resolution, so scale2ref
	// rescales it to srcPath's exact dimensions before maskedmerge — a
	// mismatched mask would otherwise misalign or fail to merge at all.
	// maskedmerge takes its first input where the mask is black and its
	// second where it is white, so the effect stream goes second.
	filter := strings.Join([]string{
		"[0:v]split[torig][tofx]",
		fxFilter,
		"[1:v][torig]scale2ref[maskraw][original]",
		"[maskraw]format=gray[mask]",
		"[original][fx][mask]maskedmerge[outv]",
	}, ";")

	args := []string{
		"-i", srcPath,
		"-i", maskPath,
		"-filter_complex", filter,
		"-map", "[outv]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-y", outPath,
	}
	return t.run(ctx, t.FFmpegPath, args...)
}

// InsertSegment replaces [start, end) of srcPath with replacementPath,
// splitting the source into a pre-roll and post-roll clip via ExtractClip,
// fps-normalizing the replacement to the source's native fps, and
// concatenating pre + replacement + post back into one timeline.
func (t *Toolbox) InsertSegment(ctx context.Context, srcPath string, start, end float64, replacementPath, outPath, workDir string) error {
	info, err := t.Probe(ctx, srcPath)
	if err != nil {
		return err
	}

	var segments []string

	if start > 0 {
		pre := filepath.Join(workDir, "pre.mp4")
		if err := t.ExtractClip(ctx, srcPath, 0, start, pre); err != nil {
			return fmt.Errorf("extract pre-roll: %w", err)
		}
		segments = append(segments, pre)
	}

	normalized := filepath.Join(workDir, "replacement_normalized.mp4")
	if err := t.NormalizeFPS(ctx, replacementPath, info.FPS, normalized); err != nil {
		return fmt.Errorf("normalize replacement fps: %w", err)
	}
	segments = append(segments, normalized)

	if end < info.Duration {
		post := filepath.Join(workDir, "post.mp4")
		if err := t.ExtractClip(ctx, srcPath, end, info.Duration-end, post); err != nil {
			return fmt.Errorf("extract post-roll: %w", err)
		}
		segments = append(segments, post)
	}

	return t.Concat(ctx, segments, outPath)
}

// ExtractAudio pulls just the audio track of [start, start+duration) out of
// srcPath into a standalone wav file, used to build a voice-clone sample.
func (t *Toolbox) ExtractAudio(ctx context.Context, srcPath string, start, duration float64, outPath string) error {
	if duration <= 0 {
		return errs.InputError("extract_audio: duration must be positive, got %v", duration)
	}
	return t.run(ctx, t.FFmpegPath,
		"-ss", formatSeconds(start),
		"-i", srcPath,
		"-t", formatSeconds(duration),
		"-vn",
		"-acodec", "pcm_s16le",
		"-y", outPath,
	)
}

// GenerateTone renders a pure sine-wave tone of duration seconds at
// frequencyHz into outPath, used to build beep overlays for censored
// profanity windows.
func (t *Toolbox) GenerateTone(ctx context.Context, duration float64, frequencyHz int, outPath string) error {
	if duration <= 0 {
		return errs.InputError("generate_tone: duration must be positive, got %v", duration)
	}
	if frequencyHz <= 0 {
		frequencyHz = 1000
	}
	return t.run(ctx, t.FFmpegPath,
		"-f", "lavfi",
		"-i", fmt.Sprintf("sine=frequency=%d:duration=%s", frequencyHz, formatSeconds(duration)),
		"-af", "volume=0.9",
		"-y", outPath,
	)
}

// MuteWindow is one [start, end) range (in source-timeline seconds) to
// silence, already padded by the caller's mute-padding tunable.
type MuteWindow struct {
	Start float64
	End   float64
}

// DubOverlay is one synthesized replacement line to mix in at a delay,
// already trimmed/time-stretched to fit its target window.
type DubOverlay struct {
	AudioPath string
	DelayMs   int
}

// overlayFadeSeconds is the fade-in/fade-out applied to each dub/beep
// overlay so it doesn't click in or out against the muted original track.
const overlayFadeSeconds = 0.03

// MixAudio mutes every window in mutes (already padded by the caller), then
// mixes in each dub overlay delayed to its target start, boosted by gain and
// faded in/out at its edges, and re-muxes the result against the original
// video stream untouched.
func (t *Toolbox) MixAudio(ctx context.Context, srcVideoPath string, mutes []MuteWindow, dubs []DubOverlay, gain float64, outPath string) error {
	if gain <= 0 {
		gain = 1.5
	}

	var muteConditions []string
	for _, m := range mutes {
		muteConditions = append(muteConditions, fmt.Sprintf("between(t,%s,%s)", formatSeconds(m.Start), formatSeconds(m.End)))
	}

	args := []string{"-i", srcVideoPath}
	for _, d := range dubs {
		args = append(args, "-i", d.AudioPath)
	}

	var filterParts []string
	baseAudio := "0:a"
	if len(muteConditions) > 0 {
		muteFilter := fmt.Sprintf("volume=enable='%s':volume=0", strings.Join(muteConditions, "|"))
		filterParts = append(filterParts, fmt.Sprintf("[0:a]%s[muted]", muteFilter))
		baseAudio = "muted"
	}

	mixInputs := fmt.Sprintf("[%s]", baseAudio)
	for i, d := range dubs {
		label := fmt.Sprintf("dub%d", i)
		fadeOutStart := 0.0
		if dur, err := t.ProbeDuration(ctx, d.AudioPath); err == nil && dur > overlayFadeSeconds {
			fadeOutStart = dur - overlayFadeSeconds
		}
		filterParts = append(filterParts, fmt.Sprintf(
			"[%d:a]volume=%.2f,afade=t=in:st=0:d=%s,afade=t=out:st=%s:d=%s,adelay=%d|%d[%s]",
			i+1, gain, formatSeconds(overlayFadeSeconds), formatSeconds(fadeOutStart), formatSeconds(overlayFadeSeconds), d.DelayMs, d.DelayMs, label,
		))
		mixInputs += fmt.Sprintf("[%s]", label)
	}

	if len(dubs) > 0 {
		filterParts = append(filterParts, fmt.Sprintf("%samix=inputs=%d:duration=first:dropout_transition=0:normalize=0[out]", mixInputs, len(dubs)+1))
	} else if len(muteConditions) > 0 {
		filterParts = append(filterParts, "[muted]anull[out]")
	} else {
		// Nothing to do — just copy through.
		return t.run(ctx, t.FFmpegPath, "-i", srcVideoPath, "-c", "copy", "-y", outPath)
	}

	args = append(args,
		"-filter_complex", strings.Join(filterParts, ";"),
		"-map", "0:v",
		"-map", "[out]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-y", outPath,
	)

	return t.run(ctx, t.FFmpegPath, args...)
}

// TimeStretch changes audioPath's tempo so its duration matches targetSeconds
// within the caller's tolerance, trimming leading/trailing silence first.
// ffmpeg's atempo filter only accepts factors in [0.5, 2.0], so a larger
// required stretch is decomposed into multiple chained atempo stages.
func (t *Toolbox) TimeStretch(ctx context.Context, audioPath string, targetSeconds float64, outPath string) error {
	trimmed := outPath + ".trimmed.wav"
	if err := t.run(ctx, t.FFmpegPath,
		"-i", audioPath,
		"-af", "silenceremove=start_periods=1:start_threshold=-50dB:start_silence=0.05,areverse,silenceremove=start_periods=1:start_threshold=-50dB:start_silence=0.05,areverse",
		"-y", trimmed,
	); err != nil {
		return fmt.Errorf("trim silence: %w", err)
	}
	defer os.Remove(trimmed)

	sourceSeconds, err := t.ProbeDuration(ctx, trimmed)
	if err != nil || sourceSeconds <= 0 {
		return errs.MediaErrorf("time_stretch: could not probe trimmed audio duration")
	}
	if targetSeconds <= 0 {
		return errs.InputError("time_stretch: targetSeconds must be positive")
	}

	tempo := sourceSeconds / targetSeconds
	stages := decomposeTempo(tempo)

	var filters []string
	for _, stage := range stages {
		filters = append(filters, fmt.Sprintf("atempo=%.6f", stage))
	}

	// atempo chaining drifts from targetSeconds by more than rounding error in
	// practice, so a trailing apad+atrim+micro-fade pins the output to the
	// exact contracted duration (±50ms) instead of whatever the tempo chain
	// lands on: apad fills a result that comes out short, atrim cuts one that
	// comes out long.
	filters = append(filters,
		"apad",
		fmt.Sprintf("atrim=0:%s", formatSeconds(targetSeconds)),
		fmt.Sprintf("afade=t=in:st=0:d=%s", formatSeconds(overlayFadeSeconds)),
		fmt.Sprintf("afade=t=out:st=%s:d=%s", formatSeconds(maxFloat(targetSeconds-overlayFadeSeconds, 0)), formatSeconds(overlayFadeSeconds)),
	)

	return t.run(ctx, t.FFmpegPath,
		"-i", trimmed,
		"-af", strings.Join(filters, ","),
		"-y", outPath,
	)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// decomposeTempo splits an arbitrary tempo factor into a chain of stages
// each within ffmpeg atempo's valid [0.5, 2.0] domain.
func decomposeTempo(tempo float64) []float64 {
	if tempo <= 0 {
		return []float64{1.0}
	}
	var stages []float64
	remaining := tempo
	for remaining > 2.0 {
		stages = append(stages, 2.0)
		remaining /= 2.0
	}
	for remaining < 0.5 {
		stages = append(stages, 0.5)
		remaining /= 0.5
	}
	stages = append(stages, remaining)
	return stages
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
