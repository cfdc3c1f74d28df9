package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalBlobStore keeps blobs under a base directory. It is the default
// backend for local development and tests.
type LocalBlobStore struct {
	base string
}

// NewLocalBlobStore creates the base directory if needed.
func NewLocalBlobStore(base string) (*LocalBlobStore, error) {
	if base == "" {
		return nil, fmt.Errorf("file: blob base directory required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("file: create blob directory: %w", err)
	}
	return &LocalBlobStore{base: base}, nil
}

func (l *LocalBlobStore) path(key string) string {
	return filepath.Join(l.base, filepath.FromSlash(key))
}

func (l *LocalBlobStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	full := l.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("file: create blob directory: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("file: create blob: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return fmt.Errorf("file: write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("file: close blob: %w", err)
	}
	return nil
}

func (l *LocalBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("file: open blob: %w", err)
	}
	return f, nil
}

func (l *LocalBlobStore) Delete(ctx context.Context, key string) error {
	if err := os.Remove(l.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file: remove blob: %w", err)
	}
	return nil
}
