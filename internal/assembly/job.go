package assembly

import (
	"errors"
	"sync"
	"time"

	"github.com/stillcast/stillcast/internal/assembly/id"
	"github.com/stillcast/stillcast/internal/media"
)

// State represents the current phase of an assembly job.
type State string

const (
	// StateValidating checks that both input paths are regular files.
	StateValidating State = "VALIDATING"
	// StateProbing decodes the audio asset to resolve its duration.
	StateProbing State = "PROBING"
	// StateSequencing derives the frame sequence and frame count.
	StateSequencing State = "SEQUENCING"
	// StateEncoding muxes frames and audio into the output container.
	StateEncoding State = "ENCODING"
	// StateVerifying confirms the output exists and is non-empty.
	StateVerifying State = "VERIFYING"
	// StateSucceeded is terminal: the artifact is usable.
	StateSucceeded State = "SUCCEEDED"
	// StateFailed is terminal: the job failed with a classified error.
	StateFailed State = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines the allowed state machine edges. Every
// non-terminal state can fail; there are no retry edges.
var validTransitions = map[State][]State{
	StateValidating: {StateProbing, StateFailed},
	StateProbing:    {StateSequencing, StateFailed},
	StateSequencing: {StateEncoding, StateFailed},
	StateEncoding:   {StateVerifying, StateFailed},
	StateVerifying:  {StateSucceeded, StateFailed},
	StateSucceeded:  {},
	StateFailed:     {},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job is the aggregate for one assembly run. It owns the request and
// all intermediate results for the lifetime of the job; jobs share no
// mutable state with each other.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// State is the current pipeline phase.
	State State
	// Request is the immutable input of the job.
	Request EncodingRequest
	// Image is the still image input asset.
	Image *media.Asset
	// Audio is the audio input asset; probing sets its duration exactly once.
	Audio *media.Asset
	// AudioDuration is the probed audio duration in seconds (set after PROBING).
	AudioDuration float64
	// FrameCount is the derived number of frames (set after SEQUENCING).
	FrameCount int
	// Artifact describes the output on success.
	Artifact *media.Artifact
	// FailureCode classifies the failure for callers (set on FAILED).
	FailureCode string
	// Error is the failure detail message (set on FAILED).
	Error string
	// PushToS3 indicates whether to upload the artifact after success.
	PushToS3 bool
	// VideoURL is the uploaded artifact URL if PushToS3 was set.
	VideoURL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when the pipeline left VALIDATING.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// NewJob creates a job for the given request with a generated ID,
// starting in VALIDATING.
func NewJob(req EncodingRequest) *Job {
	return NewJobWithID(id.Generate(), req)
}

// NewJobWithID creates a job with the specified ID. Useful for tests or
// externally generated IDs.
func NewJobWithID(jobID string, req EncodingRequest) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		State:     StateValidating,
		Request:   req,
		Image:     media.NewAsset(req.ImagePath, media.KindImage),
		Audio:     media.NewAsset(req.AudioPath, media.KindAudio),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job state.
// Returns ErrInvalidTransition if the edge is not in the machine.
func (j *Job) TransitionTo(state State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.State, state) {
		return ErrInvalidTransition
	}

	j.State = state
	j.UpdatedAt = time.Now()

	switch state {
	case StateProbing:
		j.StartedAt = j.UpdatedAt
	case StateSucceeded, StateFailed:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Fail transitions the job to FAILED, recording the failure class and
// detail. All failures are terminal; there are no retries at this layer.
// The detail and the transition happen in one critical section, so a
// rejected transition records nothing.
func (j *Job) Fail(code, detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.State, StateFailed) {
		return ErrInvalidTransition
	}
	j.FailureCode = code
	j.Error = detail
	j.State = StateFailed
	j.UpdatedAt = time.Now()
	j.CompletedAt = j.UpdatedAt
	return nil
}

// Succeed transitions the job to SUCCEEDED with its artifact. Like Fail,
// the artifact is only recorded if the transition is accepted.
func (j *Job) Succeed(artifact *media.Artifact) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.State, StateSucceeded) {
		return ErrInvalidTransition
	}
	j.Artifact = artifact
	j.State = StateSucceeded
	j.UpdatedAt = time.Now()
	j.CompletedAt = j.UpdatedAt
	return nil
}

// GetState returns the current state (thread-safe).
func (j *Job) GetState() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.State
}

// SetAudioDuration records the probed duration on the audio asset and
// the aggregate. The asset enforces that the duration is set only once;
// a second call returns media.ErrDurationSet.
func (j *Job) SetAudioDuration(seconds float64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.Audio.SetDuration(seconds); err != nil {
		return err
	}
	j.AudioDuration = seconds
	j.UpdatedAt = time.Now()
	return nil
}

// SetFrameCount records the derived frame count.
func (j *Job) SetFrameCount(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.FrameCount = n
	j.UpdatedAt = time.Now()
}

// SetVideoURL records the uploaded artifact URL.
func (j *Job) SetVideoURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.VideoURL = url
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job reached SUCCEEDED or FAILED.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.State == StateSucceeded || j.State == StateFailed
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var artifact *media.Artifact
	if j.Artifact != nil {
		a := *j.Artifact
		artifact = &a
	}
	var image, audio *media.Asset
	if j.Image != nil {
		a := *j.Image
		image = &a
	}
	if j.Audio != nil {
		a := *j.Audio
		audio = &a
	}

	return &Job{
		ID:            j.ID,
		State:         j.State,
		Request:       j.Request,
		Image:         image,
		Audio:         audio,
		AudioDuration: j.AudioDuration,
		FrameCount:    j.FrameCount,
		Artifact:      artifact,
		FailureCode:   j.FailureCode,
		Error:         j.Error,
		PushToS3:      j.PushToS3,
		VideoURL:      j.VideoURL,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
}
