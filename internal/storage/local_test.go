package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates directory if not exists", func(t *testing.T) {
		tempDir := filepath.Join(t.TempDir(), "nested", "staging")

		storage, err := NewLocalStorage(tempDir)
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		if storage.TempDir() != tempDir {
			t.Errorf("TempDir() = %v, want %v", storage.TempDir(), tempDir)
		}

		info, err := os.Stat(tempDir)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected directory, got file")
		}
	})

	t.Run("uses default directory when empty", func(t *testing.T) {
		storage, err := NewLocalStorage("")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		expected := filepath.Join(os.TempDir(), "stillcast")
		if storage.TempDir() != expected {
			t.Errorf("TempDir() = %v, want %v", storage.TempDir(), expected)
		}
	})
}

func TestLocalStorage_SaveTemp(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	t.Run("saves data to temp file", func(t *testing.T) {
		ctx := context.Background()
		data := bytes.NewReader([]byte("audio bytes"))

		path, err := storage.SaveTemp(ctx, "audio", data)
		if err != nil {
			t.Fatalf("SaveTemp() error = %v", err)
		}

		if !strings.HasPrefix(filepath.Base(path), "audio_") {
			t.Errorf("temp file name %q missing name hint", filepath.Base(path))
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read temp file: %v", err)
		}
		if string(content) != "audio bytes" {
			t.Errorf("content = %q, want %q", content, "audio bytes")
		}
	})

	t.Run("unique paths for same name", func(t *testing.T) {
		ctx := context.Background()

		p1, err := storage.SaveTemp(ctx, "image", bytes.NewReader([]byte("a")))
		if err != nil {
			t.Fatal(err)
		}
		p2, err := storage.SaveTemp(ctx, "image", bytes.NewReader([]byte("b")))
		if err != nil {
			t.Fatal(err)
		}
		if p1 == p2 {
			t.Errorf("expected unique paths, both are %q", p1)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.SaveTemp(ctx, "x", bytes.NewReader([]byte("y")))
		if err == nil {
			t.Error("expected error for cancelled context, got nil")
		}
	})
}

func TestLocalStorage_LoadTemp(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		path, err := storage.SaveTemp(ctx, "clip", bytes.NewReader([]byte("payload")))
		if err != nil {
			t.Fatal(err)
		}

		rc, err := storage.LoadTemp(ctx, path)
		if err != nil {
			t.Fatalf("LoadTemp() error = %v", err)
		}
		defer func() { _ = rc.Close() }()

		got, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "payload" {
			t.Errorf("content = %q, want %q", got, "payload")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := storage.LoadTemp(ctx, filepath.Join(storage.TempDir(), "missing"))
		if err == nil {
			t.Error("expected error for missing file, got nil")
		}
	})
}

func TestLocalStorage_CleanupTemp(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	t.Run("removes files", func(t *testing.T) {
		p1, _ := storage.SaveTemp(ctx, "a", bytes.NewReader([]byte("1")))
		p2, _ := storage.SaveTemp(ctx, "b", bytes.NewReader([]byte("2")))

		if err := storage.CleanupTemp(ctx, []string{p1, p2}); err != nil {
			t.Fatalf("CleanupTemp() error = %v", err)
		}

		for _, p := range []string{p1, p2} {
			if _, err := os.Stat(p); !os.IsNotExist(err) {
				t.Errorf("file %q still exists", p)
			}
		}
	})

	t.Run("tolerates already-removed files", func(t *testing.T) {
		err := storage.CleanupTemp(ctx, []string{filepath.Join(storage.TempDir(), "ghost")})
		if err != nil {
			t.Errorf("CleanupTemp() error = %v, want nil for missing files", err)
		}
	})
}

func TestLocalStorage_UploadArtifact(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	_, err = storage.UploadArtifact(context.Background(), "key", bytes.NewReader([]byte("x")))
	if !errors.Is(err, ErrS3NotConfigured) {
		t.Errorf("expected ErrS3NotConfigured, got %v", err)
	}
}
