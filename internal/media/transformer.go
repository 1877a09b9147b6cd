package media

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"

	"videoverse/video-api/internal/domain"
)

// Transformer is the boundary to the external media-processing capability.
// It owns no business logic beyond parameter marshaling and error
// classification; callers decide what a failure means for their task.
type Transformer interface {
	// Probe returns the duration of the media file at path, in seconds.
	Probe(ctx context.Context, path string) (float64, error)

	// Trim re-encodes the window [start, end) of input into output.
	// Bounds are validated by the caller before submission.
	Trim(ctx context.Context, input, output string, start, end float64) error

	// Merge concatenates the inputs, in order, into output. Inputs are
	// normalized to a common resolution and frame rate first so the
	// concatenation is well-defined; audio tracks are preserved.
	Merge(ctx context.Context, inputs []string, output string) error
}

// ffmpegTransformer shells out to ffmpeg/ffprobe.
type ffmpegTransformer struct {
	ffmpegPath   string
	ffprobePath  string
	targetHeight int // Merge normalization height
	targetFPS    int // Merge normalization frame rate
}

// NewFFmpegTransformer creates a Transformer backed by the ffmpeg and ffprobe
// binaries at the given paths. targetHeight/targetFPS are the merge
// normalization targets (defaults 720/30 via config).
func NewFFmpegTransformer(ffmpegPath, ffprobePath string, targetHeight, targetFPS int) Transformer {
	if targetHeight <= 0 {
		targetHeight = 720
	}
	if targetFPS <= 0 {
		targetFPS = 30
	}
	return &ffmpegTransformer{
		ffmpegPath:   ffmpegPath,
		ffprobePath:  ffprobePath,
		targetHeight: targetHeight,
		targetFPS:    targetFPS,
	}
}

// Probe reads the container duration via ffprobe.
func (t *ffmpegTransformer) Probe(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, classifyError(stderr.String(), err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe returned unparseable duration %q", domain.ErrFatal, stdout.String())
	}
	return duration, nil
}

// Trim cuts [start, end) out of input. Re-encodes with libx264/aac so the
// cut is frame-accurate regardless of keyframe placement.
func (t *ffmpegTransformer) Trim(ctx context.Context, input, output string, start, end float64) error {
	args := []string{
		"-y",
		"-i", input,
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-c:v", "libx264",
		"-c:a", "aac",
		output,
	}
	return t.run(ctx, args)
}

// Merge normalizes every input to the target height and frame rate, then
// concatenates video and audio streams with the concat filter.
func (t *ffmpegTransformer) Merge(ctx context.Context, inputs []string, output string) error {
	args := []string{"-y"}
	for _, input := range inputs {
		args = append(args, "-i", input)
	}

	args = append(args,
		"-filter_complex", t.concatFilter(len(inputs)),
		"-map", "[outv]",
		"-map", "[outa]",
		"-c:v", "libx264",
		"-c:a", "aac",
		output,
	)
	return t.run(ctx, args)
}

// concatFilter builds the filter_complex graph for an n-input merge: one
// normalization chain per input feeding a single concat of video and audio
// streams. Width -2 keeps the aspect ratio while staying divisible by 2 as
// libx264 requires.
func (t *ffmpegTransformer) concatFilter(n int) string {
	var filter strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&filter, "[%d:v]scale=-2:%d,fps=%d[v%d];", i, t.targetHeight, t.targetFPS, i)
	}
	for i := 0; i < n; i++ {
		fmt.Fprintf(&filter, "[v%d][%d:a]", i, i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=1[outv][outa]", n)
	return filter.String()
}

func (t *ffmpegTransformer) run(ctx context.Context, args []string) error {
	args = append([]string{"-hide_banner", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Printf("ERROR: ffmpeg failed: %v (stderr tail: %s)", err, tail(stderr.String(), 512))
		return classifyError(stderr.String(), err)
	}
	return nil
}

// classifyError maps an ffmpeg/ffprobe failure onto the transient/fatal
// split. Resource exhaustion is worth retrying; corrupt or unsupported input
// never is.
func classifyError(stderr string, err error) error {
	msg := strings.ToLower(stderr)

	transientMarkers := []string{
		"no space left on device",
		"cannot allocate memory",
		"resource temporarily unavailable",
		"too many open files",
		"device or resource busy",
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", domain.ErrTransient, firstLine(stderr))
		}
	}

	detail := firstLine(stderr)
	if detail == "" {
		detail = err.Error()
	}
	return fmt.Errorf("%w: %s", domain.ErrFatal, detail)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
