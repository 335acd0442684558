// Package media provides the asset model, duration probing, and the
// mux/encode step that turns a still image plus an audio track into an
// MP4. All heavy lifting is delegated to the ffmpeg/ffprobe CLIs.
package media

import (
	"fmt"
	"os"
)

// Kind distinguishes the two asset types handled by the pipeline.
type Kind string

const (
	// KindImage is a still image asset (png, jpg, ...).
	KindImage Kind = "image"
	// KindAudio is an audio asset (mp3, wav, aac, ...).
	KindAudio Kind = "audio"
)

// Asset is a reference to an input media file. Images have no intrinsic
// duration; audio assets acquire one through probing, after which it is
// immutable.
type Asset struct {
	// Path is the resolved filesystem path of the asset.
	Path string
	// Kind is the asset type.
	Kind Kind

	duration float64
	probed   bool
}

// NewAsset creates an asset reference for the given path and kind.
// The path is not touched until validation or probing.
func NewAsset(path string, kind Kind) *Asset {
	return &Asset{Path: path, Kind: kind}
}

// Duration returns the probed duration in seconds. The second return
// value is false until the asset has been probed.
func (a *Asset) Duration() (float64, bool) {
	return a.duration, a.probed
}

// SetDuration records the probed duration. A duration can only be set
// once; later calls return ErrDurationSet.
func (a *Asset) SetDuration(seconds float64) error {
	if a.probed {
		return fmt.Errorf("%w: %s", ErrDurationSet, a.Path)
	}
	a.duration = seconds
	a.probed = true
	return nil
}

// CheckAsset verifies that path resolves to a readable regular file.
// Returns an error wrapping ErrAssetNotFound otherwise.
func CheckAsset(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrAssetNotFound, path)
	}
	return nil
}

// Artifact describes a successfully written output video. Its existence
// and non-zero size on disk are the success criterion for a job.
type Artifact struct {
	// Path is where the output container was written.
	Path string `json:"path"`
	// DurationSeconds is the probed audio duration carried into the container.
	DurationSeconds float64 `json:"duration_seconds"`
	// FrameCount is the number of video frames in the output.
	FrameCount int `json:"frame_count"`
	// VideoCodec identifies the video encoder used.
	VideoCodec string `json:"video_codec"`
	// AudioCodec identifies the audio encoder used.
	AudioCodec string `json:"audio_codec"`
}
