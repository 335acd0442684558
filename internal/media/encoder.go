package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/stillcast/stillcast/internal/frames"
)

// Codec identifiers recorded in the output artifact. Bitrate and preset
// are configuration, not contract; the codec classes are fixed for
// container compatibility (H.264 video, AAC audio, MP4 container).
const (
	videoCodec = "libx264"
	audioCodec = "aac"
)

// Encoder muxes a frame sequence against an audio stream into a single
// output container.
type Encoder interface {
	// Encode consumes the frame sequence in order, multiplexes it with
	// the untouched audio at audioPath, and writes outputPath fully
	// before returning. On failure no usable partial file is left.
	Encode(ctx context.Context, seq *frames.Sequence, audioPath, outputPath string) (*Artifact, error)
}

// FFmpegEncoder implements Encoder using the ffmpeg CLI. The still image
// is looped at the sequence frame rate for exactly the sequence's frame
// count while the audio stream is encoded alongside it.
type FFmpegEncoder struct {
	ffmpegPath string
}

// NewFFmpegEncoder creates a new FFmpegEncoder. If ffmpegPath is empty,
// it defaults to "ffmpeg" (found via PATH).
func NewFFmpegEncoder(ffmpegPath string) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegEncoder{ffmpegPath: ffmpegPath}
}

// Encode implements Encoder. Directory creation is the caller's
// responsibility: a missing or unwritable parent fails with
// ErrOutputWrite before the encoder process is spawned. A partial
// output left by a failed encode is deleted before the error returns.
func (e *FFmpegEncoder) Encode(ctx context.Context, seq *frames.Sequence, audioPath, outputPath string) (*Artifact, error) {
	if err := checkWritable(outputPath); err != nil {
		return nil, err
	}

	args := []string{
		"-y", // Overwrite output file
		"-loop", "1", // Loop the still image as a video source
		"-framerate", strconv.Itoa(seq.FPS()),
		"-i", seq.ImagePath(),
		"-i", audioPath,
		"-c:v", videoCodec,
		"-tune", "stillimage",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p", // Pixel format for broad player compatibility
		"-c:a", audioCodec,
		"-b:a", "128k",
		"-frames:v", strconv.Itoa(seq.Count()),
		"-movflags", "+faststart",
		outputPath,
	}

	if err := e.runFFmpeg(ctx, args); err != nil {
		// Cleanup-on-failure is a contract: callers must never see a
		// half-written container as usable output.
		_ = os.Remove(outputPath)
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	return &Artifact{
		Path:            outputPath,
		DurationSeconds: seq.Duration(),
		FrameCount:      seq.Count(),
		VideoCodec:      videoCodec,
		AudioCodec:      audioCodec,
	}, nil
}

// checkWritable verifies the parent directory of outputPath exists and
// accepts new files.
func checkWritable(outputPath string) error {
	dir := filepath.Dir(outputPath)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: parent directory %s does not exist", ErrOutputWrite, dir)
	}

	probe, err := os.CreateTemp(dir, ".stillcast-write-check-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOutputWrite, dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an
// FFmpegError containing stderr output if the command fails.
func (e *FFmpegEncoder) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// Verify interface implementation at compile time.
var _ Encoder = (*FFmpegEncoder)(nil)
