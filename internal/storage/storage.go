package storage

import (
	"context"
	"io"
)

// ErrObjectNotFound is returned by Open when no object exists under the key.
var ErrObjectNotFound = StorageError("object not found in storage")

// StorageError helps distinguish storage errors
type StorageError string

func (e StorageError) Error() string {
	return string(e)
}

// FileStorage defines the interface for object storage operations. Finished
// assets live behind this interface so the backend can be swapped (local
// filesystem for single-node deployments, S3-compatible stores otherwise).
type FileStorage interface {
	// Save streams the reader into the object identified by objectKey,
	// overwriting any existing object, and returns the number of bytes written.
	Save(ctx context.Context, objectKey string, r io.Reader) (int64, error)

	// Open returns a reader over the object's bytes. The caller must close it.
	Open(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes an object from the storage provider.
	Delete(ctx context.Context, objectKey string) error
}
