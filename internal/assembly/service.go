package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/stillcast/stillcast/internal/frames"
	"github.com/stillcast/stillcast/internal/media"
	"github.com/stillcast/stillcast/internal/storage"
)

// Service drives assembly jobs through the state machine. One job is
// one sequential pipeline; the service itself is stateless between jobs
// and safe for concurrent use across independent jobs.
type Service struct {
	repo    Repository
	prober  media.Prober
	encoder media.Encoder
	store   storage.Storage
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithStorage attaches a storage backend used to upload artifacts of
// jobs created with pushToS3 set. Without it, uploads are skipped.
func WithStorage(store storage.Storage) Option {
	return func(s *Service) {
		s.store = store
	}
}

// NewService creates a new assembly Service.
func NewService(repo Repository, prober media.Prober, encoder media.Encoder, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:    repo,
		prober:  prober,
		encoder: encoder,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob creates and persists a job for the request, in VALIDATING
// state, ready for processing.
func (s *Service) CreateJob(ctx context.Context, req EncodingRequest, pushToS3 bool) (*Job, error) {
	job := NewJob(req)
	job.PushToS3 = pushToS3

	s.logger.Info("creating assembly job",
		slog.String("job_id", job.ID),
		slog.String("image", req.ImagePath),
		slog.String("audio", req.AudioPath),
		slog.String("output", req.OutputPath),
		slog.Int("fps", req.FPS),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return job, nil
}

// Run executes one assembly synchronously: it creates a job for the
// request, walks the full pipeline, and returns the artifact or the
// classified failure. This is the library-call entry point; the job is
// also persisted so its record can be inspected afterwards.
func (s *Service) Run(ctx context.Context, req EncodingRequest) (*media.Artifact, error) {
	job, err := s.CreateJob(ctx, req, false)
	if err != nil {
		return nil, err
	}
	if err := s.process(ctx, job); err != nil {
		return nil, err
	}
	return job.Artifact, nil
}

// ProcessExistingJob runs the pipeline for a previously created job.
// Used by the HTTP layer to process in a background goroutine.
func (s *Service) ProcessExistingJob(ctx context.Context, jobID string) (*Job, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}
	_ = s.process(ctx, job) // Failure is recorded on the job itself.
	return job, nil
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all known jobs.
func (s *Service) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// DeleteJob removes a job record and its output file. For failed jobs
// the reserved output path is removed even though no artifact exists.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	outputPath := job.Request.OutputPath
	if job.Artifact != nil {
		outputPath = job.Artifact.Path
	}
	if outputPath != "" {
		if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove output file",
				slog.String("job_id", id),
				slog.String("path", outputPath),
				slog.String("error", err.Error()),
			)
		}
	}
	return s.repo.Delete(ctx, id)
}

// process walks the job through VALIDATING, PROBING, SEQUENCING,
// ENCODING and VERIFYING. All failures are terminal for the job; the
// returned error carries the pipeline sentinel for errors.Is checks.
func (s *Service) process(ctx context.Context, job *Job) error {
	// VALIDATING: jobs are created in this state. Both input assets must
	// be regular files before any probing happens.
	if err := media.CheckAsset(job.Image.Path); err != nil {
		return s.fail(ctx, job, err)
	}
	if err := media.CheckAsset(job.Audio.Path); err != nil {
		return s.fail(ctx, job, err)
	}

	if err := s.advance(ctx, job, StateProbing); err != nil {
		return err
	}
	duration, err := s.prober.Probe(ctx, job.Audio.Path)
	if err != nil {
		return s.fail(ctx, job, err)
	}
	if err := job.SetAudioDuration(duration); err != nil {
		return err
	}
	s.logger.Info("audio probed",
		slog.String("job_id", job.ID),
		slog.Float64("duration_seconds", duration),
	)

	if err := s.advance(ctx, job, StateSequencing); err != nil {
		return err
	}
	seq, err := frames.NewSequence(job.Image.Path, duration, job.Request.FPS)
	if err != nil {
		return s.fail(ctx, job, err)
	}
	job.SetFrameCount(seq.Count())
	s.logger.Info("frame sequence derived",
		slog.String("job_id", job.ID),
		slog.Int("frame_count", seq.Count()),
		slog.Int("fps", seq.FPS()),
	)

	if err := s.advance(ctx, job, StateEncoding); err != nil {
		return err
	}
	artifact, err := s.encoder.Encode(ctx, seq, job.Audio.Path, job.Request.OutputPath)
	if err != nil {
		return s.fail(ctx, job, err)
	}

	if err := s.advance(ctx, job, StateVerifying); err != nil {
		return err
	}
	if err := verifyOutput(artifact.Path); err != nil {
		return s.fail(ctx, job, err)
	}

	if job.PushToS3 {
		s.uploadArtifact(ctx, job, artifact)
	}

	if err := job.Succeed(artifact); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return err
	}

	s.logger.Info("assembly succeeded",
		slog.String("job_id", job.ID),
		slog.String("output", artifact.Path),
		slog.Int("frame_count", artifact.FrameCount),
		slog.Float64("duration_seconds", artifact.DurationSeconds),
	)
	return nil
}

// advance transitions the job and persists the new state.
func (s *Service) advance(ctx context.Context, job *Job, state State) error {
	if err := job.TransitionTo(state); err != nil {
		return err
	}
	return s.repo.Save(ctx, job)
}

// fail records the classified failure on the job and returns the
// original error so callers can still inspect it with errors.Is.
func (s *Service) fail(ctx context.Context, job *Job, cause error) error {
	code := ClassifyFailure(cause)
	if err := job.Fail(code, cause.Error()); err != nil {
		s.logger.Error("failed to mark job as failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to persist failed job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Error("assembly failed",
		slog.String("job_id", job.ID),
		slog.String("code", code),
		slog.String("error", cause.Error()),
	)
	return cause
}

// verifyOutput confirms the encoder actually produced a non-empty file.
func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrOutputMissing, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s has zero size", ErrOutputMissing, path)
	}
	return nil
}

// uploadArtifact pushes the output to the configured storage backend.
// Upload problems do not fail the job: the artifact on disk is valid,
// so the error is logged and the URL left empty.
func (s *Service) uploadArtifact(ctx context.Context, job *Job, artifact *media.Artifact) {
	if s.store == nil {
		s.logger.Warn("push to S3 requested but no storage configured",
			slog.String("job_id", job.ID),
		)
		return
	}

	f, err := os.Open(artifact.Path) // #nosec G304 - path produced by the encoder
	if err != nil {
		s.logger.Error("failed to open artifact for upload",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer func() { _ = f.Close() }()

	key := fmt.Sprintf("%s/%s", job.ID, filepath.Base(artifact.Path))
	url, err := s.store.UploadArtifact(ctx, key, f)
	if err != nil {
		s.logger.Error("artifact upload failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	job.SetVideoURL(url)
}
