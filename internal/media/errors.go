package media

import (
	"errors"
	"fmt"
)

// Static errors for the assembly pipeline. Each failure is terminal for
// a single job; none are transient by nature.
var (
	// ErrAssetNotFound is returned when an input path does not resolve
	// to a readable regular file.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrUnreadableAsset is returned when a file cannot be decoded as
	// audio (corrupt, unsupported codec, zero audio streams).
	ErrUnreadableAsset = errors.New("asset is not decodable audio")
	// ErrInvalidDuration is returned when the decoded audio duration
	// is zero or negative.
	ErrInvalidDuration = errors.New("invalid audio duration")
	// ErrEncoding is returned when the encoder cannot complete, wrapping
	// the underlying ffmpeg failure.
	ErrEncoding = errors.New("encoding failed")
	// ErrOutputWrite is returned when the output destination is not
	// writable or its parent directory does not exist.
	ErrOutputWrite = errors.New("output path not writable")
	// ErrDurationSet is returned when an asset duration is set twice.
	ErrDurationSet = errors.New("asset duration already probed")
)

// FFmpegError represents a failed ffmpeg/ffprobe invocation, keeping the
// arguments and stderr output for diagnostics.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
