// Package frames synthesizes the finite sequence of identical video
// frames that spans a target audio duration at a target frame rate.
package frames

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"time"
)

// ErrInvalidParameter is returned when a sequence is requested with a
// non-positive frame rate or duration.
var ErrInvalidParameter = errors.New("invalid sequence parameter")

// Frame is a single reference into the sequence. Every frame of a
// sequence points at the same source image; only index and offset vary.
type Frame struct {
	// Index is the zero-based position in the sequence.
	Index int
	// Offset is the presentation time of the frame.
	Offset time.Duration
	// ImagePath is the shared source image.
	ImagePath string
}

// Count returns the number of frames needed to span durationSeconds at
// fps. Rounding is half-up so the last fractional frame is kept: the
// rendered video differs from the audio by at most one frame interval.
func Count(durationSeconds float64, fps int) int {
	return int(math.Floor(durationSeconds*float64(fps) + 0.5))
}

// Sequence is a lazy, finite sequence of identical frame references.
// It holds only the deriving triple (image, duration, fps); frames are
// produced on demand and never materialized as a slice. A sequence is
// restartable by iterating again, and re-derivable by reconstructing
// from the same triple.
type Sequence struct {
	imagePath string
	duration  float64
	fps       int
	count     int
}

// NewSequence derives a frame sequence for imagePath spanning
// durationSeconds at fps frames per second.
// Returns ErrInvalidParameter when fps or duration is not positive.
func NewSequence(imagePath string, durationSeconds float64, fps int) (*Sequence, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("%w: fps must be a positive integer, got %d", ErrInvalidParameter, fps)
	}
	if durationSeconds <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %.3fs", ErrInvalidParameter, durationSeconds)
	}
	return &Sequence{
		imagePath: imagePath,
		duration:  durationSeconds,
		fps:       fps,
		count:     Count(durationSeconds, fps),
	}, nil
}

// ImagePath returns the shared source image path.
func (s *Sequence) ImagePath() string { return s.imagePath }

// Duration returns the target duration in seconds.
func (s *Sequence) Duration() float64 { return s.duration }

// FPS returns the frame rate.
func (s *Sequence) FPS() int { return s.fps }

// Count returns the total number of frames in the sequence.
func (s *Sequence) Count() int { return s.count }

// Interval returns the frame interval 1/fps in seconds, the maximum
// timing slack between audio and rendered video.
func (s *Sequence) Interval() float64 { return 1 / float64(s.fps) }

// All yields the frames of the sequence in presentation order. The
// source image is never mutated; every yielded frame references it.
func (s *Sequence) All() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for i := 0; i < s.count; i++ {
			f := Frame{
				Index:     i,
				Offset:    time.Duration(float64(i) / float64(s.fps) * float64(time.Second)),
				ImagePath: s.imagePath,
			}
			if !yield(f) {
				return
			}
		}
	}
}
