// Package storage provides temporary staging for job inputs and
// optional persistent upload of output artifacts. It defines the
// Storage port and adapters for local disk and S3.
package storage

import (
	"context"
	"io"
)

// Storage is the port for file staging and artifact delivery.
// Implementations must handle temporary files during processing and may
// support uploading finished artifacts to object storage.
type Storage interface {
	// TempDir returns the directory used for temporary files. Callers
	// use it to place job output paths next to the staged inputs.
	TempDir() string

	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadArtifact uploads data to object storage and returns the
	// public URL. Returns ErrS3NotConfigured if no object storage is set up.
	UploadArtifact(ctx context.Context, key string, data io.Reader) (url string, err error)
}
