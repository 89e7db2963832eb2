package blob

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FilesystemStore writes blobs under a base directory and resolves them
// against a public base URL, typically served by the same process.
type FilesystemStore struct {
	log     *log.Logger
	baseDir string
	baseURL string
}

func NewFilesystemStore(logger *log.Logger, baseDir, baseURL string) (*FilesystemStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}

	return &FilesystemStore{
		log:     logger,
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (s *FilesystemStore) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	clean := path.Clean("/" + name)[1:]
	dst := filepath.Join(s.baseDir, filepath.FromSlash(clean))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create blob subdirectory: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("write blob: %w", err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}

	s.log.Printf("stored blob %q (%s)", clean, contentType)
	return s.baseURL + "/" + clean, nil
}
