package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Prober reports the authoritative duration of an audio file.
type Prober interface {
	// Probe returns the duration of the audio at path in seconds, with
	// at least millisecond precision, derived by decoding the stream.
	Probe(ctx context.Context, path string) (float64, error)
}

// FFmpegProbe implements Prober using the ffprobe and ffmpeg CLIs.
// ffprobe confirms that a decodable audio stream exists; the duration is
// then obtained by decoding the whole stream through the null muxer,
// since container metadata can be absent or wrong for some formats.
type FFmpegProbe struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegProbe creates a new FFmpegProbe. Empty paths default to
// "ffmpeg" and "ffprobe" resolved via PATH.
func NewFFmpegProbe(ffmpegPath, ffprobePath string) *FFmpegProbe {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegProbe{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// probeReport is the subset of ffprobe JSON output we care about.
type probeReport struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

// Probe implements Prober. The source file is never mutated; decode
// output is discarded through the null muxer.
func (p *FFmpegProbe) Probe(ctx context.Context, path string) (float64, error) {
	if err := CheckAsset(path); err != nil {
		return 0, err
	}

	if err := p.checkAudioStream(ctx, path); err != nil {
		return 0, err
	}

	duration, err := p.decodeDuration(ctx, path)
	if err != nil {
		return 0, err
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%w: %s decoded to %.3fs", ErrInvalidDuration, path, duration)
	}
	return duration, nil
}

// checkAudioStream asks ffprobe whether the file carries at least one
// audio stream it can identify.
func (p *FFmpegProbe) checkAudioStream(ctx context.Context, path string) error {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=codec_type,codec_name",
		"-print_format", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("%w: %s: %s", ErrUnreadableAsset, path, strings.TrimSpace(stderr.String()))
	}

	var report probeReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		return fmt.Errorf("%w: %s: parse ffprobe output: %v", ErrUnreadableAsset, path, err)
	}

	for _, s := range report.Streams {
		if s.CodecType == "audio" {
			return nil
		}
	}
	return fmt.Errorf("%w: %s has no audio stream", ErrUnreadableAsset, path)
}

// decodeDuration decodes the full audio stream and reads the final
// progress timestamp, which reflects the amount of audio actually
// decoded rather than what the container header claims.
func (p *FFmpegProbe) decodeDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-v", "error",
		"-progress", "pipe:1",
		"-i", path,
		"-vn",
		"-f", "null", "-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %s: %s", ErrUnreadableAsset, path, strings.TrimSpace(stderr.String()))
	}

	duration, err := parseProgress(stdout.String())
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrUnreadableAsset, path, err)
	}
	return duration, nil
}

var (
	// out_time_us is microseconds since decode start; the last value is
	// the decoded stream length.
	outTimeUsRe = regexp.MustCompile(`out_time_us=(-?\d+)`)
	outTimeMsRe = regexp.MustCompile(`out_time_ms=(-?\d+)`)
)

// parseProgress extracts the final decoded timestamp, in seconds, from
// ffmpeg "-progress" key=value output.
func parseProgress(output string) (float64, error) {
	matches := outTimeUsRe.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		// Older ffmpeg builds only emit out_time_ms (also microseconds).
		matches = outTimeMsRe.FindAllStringSubmatch(output, -1)
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("no progress timestamps in ffmpeg output")
	}

	last := matches[len(matches)-1][1]
	micros, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse progress timestamp %q: %w", last, err)
	}
	return float64(micros) / 1e6, nil
}

// Verify interface implementation at compile time.
var _ Prober = (*FFmpegProbe)(nil)
