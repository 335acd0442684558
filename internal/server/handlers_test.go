package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stillcast/stillcast/internal/assembly"
	"github.com/stillcast/stillcast/internal/frames"
	"github.com/stillcast/stillcast/internal/media"
	"github.com/stillcast/stillcast/internal/storage"
)

// stubProber returns a fixed duration without touching ffmpeg.
type stubProber struct {
	duration float64
	err      error
}

func (s *stubProber) Probe(_ context.Context, _ string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.duration, nil
}

// stubEncoder writes a fixed payload as the "video".
type stubEncoder struct {
	err error
}

func (s *stubEncoder) Encode(_ context.Context, seq *frames.Sequence, _ string, outputPath string) (*media.Artifact, error) {
	if s.err != nil {
		return nil, s.err
	}
	if err := os.WriteFile(outputPath, []byte("encoded video"), 0600); err != nil {
		return nil, err
	}
	return &media.Artifact{
		Path:            outputPath,
		DurationSeconds: seq.Duration(),
		FrameCount:      seq.Count(),
		VideoCodec:      "libx264",
		AudioCodec:      "aac",
	}, nil
}

type testEnv struct {
	router  http.Handler
	service *assembly.Service
}

// newTestEnv wires handlers with stubbed media dependencies and local
// storage. Async processing is disabled so tests drive the pipeline
// explicitly.
func newTestEnv(t *testing.T, prober media.Prober, encoder media.Encoder) *testEnv {
	t.Helper()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	repo := assembly.NewMemoryRepository()
	svc := assembly.NewService(repo, prober, encoder, nil)

	h := NewHandlers(svc, store, nil, WithAsyncProcessing(false))
	return &testEnv{
		router:  NewRouter(h, nil, DefaultConfig()),
		service: svc,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func validCreateRequest() CreateJobRequest {
	return CreateJobRequest{
		ImageBase64: base64.StdEncoding.EncodeToString([]byte("fake png")),
		AudioBase64: base64.StdEncoding.EncodeToString([]byte("fake mp3")),
		FPS:         24,
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &stubProber{duration: 1}, &stubEncoder{})

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestCreateJob(t *testing.T) {
	t.Run("accepts a valid request", func(t *testing.T) {
		env := newTestEnv(t, &stubProber{duration: 5}, &stubEncoder{})

		rec := env.do(t, http.MethodPost, "/jobs", validCreateRequest())
		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp CreateJobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, string(assembly.StateValidating), resp.State)
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		env := newTestEnv(t, &stubProber{duration: 5}, &stubEncoder{})

		req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "INVALID_JSON", resp.Code)
	})

	t.Run("rejects missing inputs", func(t *testing.T) {
		env := newTestEnv(t, &stubProber{duration: 5}, &stubEncoder{})

		body := validCreateRequest()
		body.AudioBase64 = ""
		rec := env.do(t, http.MethodPost, "/jobs", body)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	})

	t.Run("rejects non-base64 payload", func(t *testing.T) {
		env := newTestEnv(t, &stubProber{duration: 5}, &stubEncoder{})

		body := validCreateRequest()
		body.ImageBase64 = "!!! not base64 !!!"
		rec := env.do(t, http.MethodPost, "/jobs", body)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects negative fps", func(t *testing.T) {
		env := newTestEnv(t, &stubProber{duration: 5}, &stubEncoder{})

		body := validCreateRequest()
		body.FPS = -1
		rec := env.do(t, http.MethodPost, "/jobs", body)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("failed job leaves no reserved output behind", func(t *testing.T) {
		store, err := storage.NewLocalStorage(t.TempDir())
		require.NoError(t, err)

		probeErr := fmt.Errorf("%w: no audio stream", media.ErrUnreadableAsset)
		repo := assembly.NewMemoryRepository()
		svc := assembly.NewService(repo, &stubProber{err: probeErr}, &stubEncoder{}, nil)

		// Background processing enabled: the goroutine must remove the
		// render_*.mp4 placeholder along with the staged inputs.
		h := NewHandlers(svc, store, nil)
		router := NewRouter(h, nil, DefaultConfig())

		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(validCreateRequest()))
		req := httptest.NewRequest(http.MethodPost, "/jobs", &buf)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusAccepted, rec.Code)

		assert.Eventually(t, func() bool {
			leftovers, globErr := filepath.Glob(filepath.Join(store.TempDir(), "render_*.mp4"))
			return globErr == nil && len(leftovers) == 0
		}, 2*time.Second, 20*time.Millisecond, "reserved output placeholder was not cleaned up")
	})
}

func TestGetJob(t *testing.T) {
	t.Run("returns completed job with artifact", func(t *testing.T) {
		env := newTestEnv(t, &stubProber{duration: 5}, &stubEncoder{})

		rec := env.do(t, http.MethodPost, "/jobs", validCreateRequest())
		require.Equal(t, http.StatusAccepted, rec.Code)

		var created CreateJobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

		// Async processing is disabled; drive the pipeline directly.
		_, err := env.service.ProcessExistingJob(context.Background(), created.ID)
		require.NoError(t, err)

		rec = env.do(t, http.MethodGet, "/jobs/"+created.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, string(assembly.StateSucceeded), resp.State)
		require.NotNil(t, resp.Artifact)
		assert.Equal(t, 120, resp.Artifact.FrameCount)
		assert.Equal(t, 5.0, resp.Artifact.DurationSeconds)
		assert.Equal(t, "libx264", resp.Artifact.VideoCodec)

		decoded, err := base64.StdEncoding.DecodeString(resp.VideoBase64)
		require.NoError(t, err)
		assert.Equal(t, "encoded video", string(decoded))
	})

	t.Run("returns failure code for failed job", func(t *testing.T) {
		probeErr := fmt.Errorf("%w: no audio stream", media.ErrUnreadableAsset)
		env := newTestEnv(t, &stubProber{err: probeErr}, &stubEncoder{})

		rec := env.do(t, http.MethodPost, "/jobs", validCreateRequest())
		require.Equal(t, http.StatusAccepted, rec.Code)

		var created CreateJobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

		_, err := env.service.ProcessExistingJob(context.Background(), created.ID)
		require.NoError(t, err)

		rec = env.do(t, http.MethodGet, "/jobs/"+created.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, string(assembly.StateFailed), resp.State)
		assert.Equal(t, assembly.CodeUnreadableAsset, resp.FailureCode)
		assert.NotEmpty(t, resp.Error)
		assert.Nil(t, resp.Artifact)
	})

	t.Run("unknown job returns 404", func(t *testing.T) {
		env := newTestEnv(t, &stubProber{duration: 5}, &stubEncoder{})

		rec := env.do(t, http.MethodGet, "/jobs/render-0-ffffffff", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListJobs(t *testing.T) {
	env := newTestEnv(t, &stubProber{duration: 5}, &stubEncoder{})

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/jobs", validCreateRequest())
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 3)
}

func TestDeleteJob(t *testing.T) {
	t.Run("removes an existing job", func(t *testing.T) {
		env := newTestEnv(t, &stubProber{duration: 5}, &stubEncoder{})

		rec := env.do(t, http.MethodPost, "/jobs", validCreateRequest())
		require.Equal(t, http.StatusAccepted, rec.Code)

		var created CreateJobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

		rec = env.do(t, http.MethodDelete, "/jobs/"+created.ID, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodGet, "/jobs/"+created.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown job returns 404", func(t *testing.T) {
		env := newTestEnv(t, &stubProber{duration: 5}, &stubEncoder{})

		rec := env.do(t, http.MethodDelete, "/jobs/render-0-ffffffff", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
