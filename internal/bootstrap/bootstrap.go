// Package bootstrap provides dependency initialization for the
// Stillcast service.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/stillcast/stillcast/internal/assembly"
	"github.com/stillcast/stillcast/internal/config"
	"github.com/stillcast/stillcast/internal/media"
	"github.com/stillcast/stillcast/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	AssemblyService *assembly.Service
	Store           storage.Storage
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	prober := media.NewFFmpegProbe(cfg.FFmpegPath, cfg.FFprobePath)
	encoder := media.NewFFmpegEncoder(cfg.FFmpegPath)
	repo := assembly.NewMemoryRepository()

	svc := assembly.NewService(
		repo,
		prober,
		encoder,
		logger,
		assembly.WithStorage(store),
	)

	return &Dependencies{
		AssemblyService: svc,
		Store:           store,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
