// Package assembly provides the AssemblyJob aggregate and the service
// that drives a single image+audio encoding job through its state
// machine: validating, probing, sequencing, encoding, verifying.
package assembly

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/stillcast/stillcast/internal/frames"
)

// DefaultFPS is the frame rate applied when a request does not specify one.
const DefaultFPS = 24

var validate = validator.New()

// EncodingRequest is the strongly-typed input of one assembly job.
// It is validated once at construction and immutable afterwards; the
// pipeline never re-interprets raw strings.
type EncodingRequest struct {
	// ImagePath is the still image shown for the whole video.
	ImagePath string `validate:"required"`
	// AudioPath is the audio track that defines the output duration.
	AudioPath string `validate:"required"`
	// OutputPath is where the MP4 container is written.
	OutputPath string `validate:"required"`
	// FPS is the output frame rate, a positive integer.
	FPS int `validate:"gt=0"`
}

// NewRequest builds a validated EncodingRequest. A zero fps selects
// DefaultFPS; a negative fps fails with frames.ErrInvalidParameter.
func NewRequest(imagePath, audioPath, outputPath string, fps int) (EncodingRequest, error) {
	if fps == 0 {
		fps = DefaultFPS
	}

	req := EncodingRequest{
		ImagePath:  imagePath,
		AudioPath:  audioPath,
		OutputPath: outputPath,
		FPS:        fps,
	}
	if err := validate.Struct(req); err != nil {
		return EncodingRequest{}, fmt.Errorf("%w: %v", frames.ErrInvalidParameter, err)
	}
	return req, nil
}
