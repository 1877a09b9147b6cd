package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// localStorage implements FileStorage on the local filesystem. Object keys
// map to paths under the base directory.
type localStorage struct {
	basePath string
}

// NewLocalStorage creates a filesystem-backed storage rooted at basePath.
func NewLocalStorage(basePath string) (FileStorage, error) {
	if basePath == "" {
		return nil, StorageError("local storage base path cannot be empty")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory: %w", err)
	}
	return &localStorage{basePath: basePath}, nil
}

func (l *localStorage) fullPath(objectKey string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(objectKey))
}

// Save writes the object to disk, creating parent directories as needed.
// The write goes to a temp file first and is renamed into place so a crashed
// upload never leaves a truncated object under the final key.
func (l *localStorage) Save(ctx context.Context, objectKey string, r io.Reader) (int64, error) {
	fullPath := l.fullPath(objectKey)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	written, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to write object: %w", err)
	}

	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to finalize object: %w", err)
	}
	return written, nil
}

// Open returns a reader over the stored object.
func (l *localStorage) Open(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	f, err := os.Open(l.fullPath(objectKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (l *localStorage) Delete(ctx context.Context, objectKey string) error {
	err := os.Remove(l.fullPath(objectKey))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
