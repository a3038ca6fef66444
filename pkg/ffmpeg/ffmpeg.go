package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// FFmpeg wraps ffmpeg and ffprobe functionality
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// New creates a new FFmpeg instance
func New(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     timeout,
	}
}

// ValidateBinaries checks if ffmpeg and ffprobe are available
func (f *FFmpeg) ValidateBinaries() error {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFmpegNotFound, f.ffmpegPath)
	}

	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFprobeNotFound, f.ffprobePath)
	}

	return nil
}

// Render runs a single encoder pass described by spec. The whole filter
// graph goes through one invocation; stderr is returned for retry
// classification by the caller.
func (f *FFmpeg) Render(ctx context.Context, spec RenderSpec) (string, error) {
	args := BuildRenderArgs(spec)

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stderr.String(), NewProcessingError("render", spec.OutputPath, err, stderr.String())
	}

	return stderr.String(), nil
}

// BuildRenderArgs constructs the argument slice for a render pass. Split
// out of Render so graph-to-command translation is testable without an
// encoder present.
func BuildRenderArgs(spec RenderSpec) []string {
	args := make([]string, 0, 32)
	args = append(args, "-hide_banner", "-nostdin", "-y", "-loglevel", "error")

	for _, input := range spec.Inputs {
		args = append(args, "-i", input)
	}

	args = append(args, "-filter_complex", spec.FilterComplex)
	args = append(args, "-map", "["+spec.VideoLabel+"]")

	if spec.AudioLabel != "" {
		args = append(args,
			"-map", "["+spec.AudioLabel+"]",
			"-c:a", spec.AudioCodec,
			"-b:a", spec.AudioBitrate,
		)
	} else {
		args = append(args, "-an")
	}

	args = append(args,
		"-c:v", spec.VideoCodec,
		"-crf", strconv.Itoa(spec.CRF),
		"-preset", spec.Preset,
		"-movflags", "+faststart",
		spec.OutputPath,
	)

	return args
}

// ExtractThumbnail grabs a single frame as a JPEG. This is the only pass
// besides the main render; anything else belongs in the filter graph.
func (f *FFmpeg) ExtractThumbnail(ctx context.Context, spec ThumbnailSpec) error {
	args := []string{
		"-hide_banner", "-nostdin", "-y", "-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", spec.Timestamp),
		"-i", spec.Input,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", spec.Width),
		spec.OutputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return NewProcessingError("thumbnail", spec.Input, err, stderr.String())
	}

	return nil
}
