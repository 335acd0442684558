// Package server provides the HTTP surface for the Stillcast service.
// It includes handlers, middleware, routes, and DTOs separated from
// domain types.
package server

// CreateJobRequest is the HTTP request body for creating a render job.
type CreateJobRequest struct {
	// ImageBase64 is the base64-encoded still image.
	ImageBase64 string `json:"image_base64" validate:"required,base64"`
	// AudioBase64 is the base64-encoded audio track.
	AudioBase64 string `json:"audio_base64" validate:"required,base64"`
	// FPS is the output frame rate; zero selects the server default.
	FPS int `json:"fps" validate:"omitempty,gt=0,lte=240"`
	// PushToS3 indicates whether to upload the final video to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// State is the initial job state.
	State string `json:"state"`
}

// ArtifactResponse describes the produced video.
type ArtifactResponse struct {
	// DurationSeconds is the probed audio duration of the output.
	DurationSeconds float64 `json:"duration_seconds"`
	// FrameCount is the number of video frames in the output.
	FrameCount int `json:"frame_count"`
	// VideoCodec identifies the video encoder used.
	VideoCodec string `json:"video_codec"`
	// AudioCodec identifies the audio encoder used.
	AudioCodec string `json:"audio_codec"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// State is the current pipeline state.
	State string `json:"state"`
	// FailureCode classifies the failure if the job failed.
	FailureCode string `json:"failure_code,omitempty"`
	// Error contains the failure detail if the job failed.
	Error string `json:"error,omitempty"`
	// Artifact describes the output video if the job succeeded.
	Artifact *ArtifactResponse `json:"artifact,omitempty"`
	// VideoBase64 is the base64-encoded video content (if completed and not uploaded).
	VideoBase64 string `json:"video_base64,omitempty"`
	// VideoURL is the S3 URL of the output video (if push_to_s3=true and completed).
	VideoURL string `json:"video_url,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
