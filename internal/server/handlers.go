package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/stillcast/stillcast/internal/assembly"
	"github.com/stillcast/stillcast/internal/storage"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *assembly.Service
	store              storage.Storage
	validator          *validator.Validate
	logger             *slog.Logger
	defaultFPS         int
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithDefaultFPS sets the frame rate applied when a request omits fps.
func WithDefaultFPS(fps int) HandlerOption {
	return func(h *Handlers) {
		if fps > 0 {
			h.defaultFPS = fps
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *assembly.Service, store storage.Storage, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		store:              store,
		validator:          validator.New(),
		logger:             logger,
		defaultFPS:         assembly.DefaultFPS,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests. Inputs arrive base64-encoded,
// are staged to temp files, and the assembly pipeline runs in a
// detached background goroutine.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	fps := req.FPS
	if fps == 0 {
		fps = h.defaultFPS
	}

	imagePath, audioPath, err := h.stageInputs(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to stage inputs",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to stage inputs", "STAGING_FAILED")
		return
	}
	staged := []string{imagePath, audioPath}

	outputPath, err := h.reserveOutput()
	if err != nil {
		_ = h.store.CleanupTemp(r.Context(), staged)
		h.logger.Error("failed to reserve output path",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to reserve output path", "STAGING_FAILED")
		return
	}

	encReq, err := assembly.NewRequest(imagePath, audioPath, outputPath, fps)
	if err != nil {
		_ = h.store.CleanupTemp(r.Context(), staged)
		writeError(w, http.StatusBadRequest, err.Error(), assembly.CodeInvalidParameter)
		return
	}

	createdJob, err := h.service.CreateJob(r.Context(), encReq, req.PushToS3)
	if err != nil {
		_ = h.store.CleanupTemp(r.Context(), staged)
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// Process in the background with a detached context so the pipeline
	// survives the end of this request.
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string, staged []string, outputPath string) {
			processed, processErr := h.service.ProcessExistingJob(ctx, jobID)
			if processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
			// Staged inputs are only needed while the pipeline runs. A
			// job that did not succeed also leaves its reserved output
			// placeholder behind; remove it with them.
			cleanup := staged
			if processed == nil || processed.GetState() != assembly.StateSucceeded {
				cleanup = append(cleanup, outputPath)
			}
			if cleanupErr := h.store.CleanupTemp(ctx, cleanup); cleanupErr != nil {
				h.logger.Warn("failed to cleanup staged inputs",
					slog.String("job_id", jobID),
					slog.String("error", cleanupErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID, staged, outputPath)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.Int("fps", fps),
		slog.Bool("push_to_s3", req.PushToS3),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:    createdJob.ID,
		State: string(createdJob.State),
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, assembly.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, h.toJobResponse(foundJob))
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		jr := h.toJobResponse(j)
		jr.VideoBase64 = "" // Keep list responses small.
		resp = append(resp, jr)
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteJob handles DELETE /jobs/{id} requests.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		if errors.Is(err, assembly.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to delete job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete job", "JOB_DELETE_FAILED")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// stageInputs decodes the base64 payloads and saves them to temp files.
func (h *Handlers) stageInputs(ctx context.Context, req CreateJobRequest) (imagePath, audioPath string, err error) {
	imageData, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return "", "", fmt.Errorf("decode image: %w", err)
	}
	audioData, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		return "", "", fmt.Errorf("decode audio: %w", err)
	}

	imagePath, err = h.store.SaveTemp(ctx, "image", bytes.NewReader(imageData))
	if err != nil {
		return "", "", fmt.Errorf("stage image: %w", err)
	}
	audioPath, err = h.store.SaveTemp(ctx, "audio", bytes.NewReader(audioData))
	if err != nil {
		_ = h.store.CleanupTemp(ctx, []string{imagePath})
		return "", "", fmt.Errorf("stage audio: %w", err)
	}
	return imagePath, audioPath, nil
}

// reserveOutput allocates a unique output path in the storage temp
// directory. The placeholder file is overwritten by the encoder.
func (h *Handlers) reserveOutput() (string, error) {
	f, err := os.CreateTemp(h.store.TempDir(), "render_*.mp4")
	if err != nil {
		return "", fmt.Errorf("reserve output file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close reserved output: %w", err)
	}
	return name, nil
}

// toJobResponse maps the job aggregate to its HTTP representation.
// Succeeded jobs carry the video inline unless it was uploaded.
func (h *Handlers) toJobResponse(j *assembly.Job) JobResponse {
	resp := JobResponse{
		ID:          j.ID,
		State:       string(j.State),
		FailureCode: j.FailureCode,
		Error:       j.Error,
	}

	if j.State != assembly.StateSucceeded || j.Artifact == nil {
		return resp
	}

	resp.Artifact = &ArtifactResponse{
		DurationSeconds: j.Artifact.DurationSeconds,
		FrameCount:      j.Artifact.FrameCount,
		VideoCodec:      j.Artifact.VideoCodec,
		AudioCodec:      j.Artifact.AudioCodec,
	}

	if j.PushToS3 && j.VideoURL != "" {
		resp.VideoURL = j.VideoURL
		return resp
	}

	videoData, err := os.ReadFile(j.Artifact.Path) // #nosec G304 - path produced by the encoder
	if err != nil {
		h.logger.Error("failed to read output video",
			slog.String("job_id", j.ID),
			slog.String("path", filepath.Clean(j.Artifact.Path)),
			slog.String("error", err.Error()),
		)
		// Don't fail the request, just log and omit video
		return resp
	}
	resp.VideoBase64 = base64.StdEncoding.EncodeToString(videoData)
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
