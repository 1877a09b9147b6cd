package repository

import (
	"context"

	"videoverse/video-api/internal/domain"
)

// Error constants for the repository layer.
var (
	ErrNotFound     = RepositoryError("not found")
	ErrUpdateFailed = RepositoryError("update failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// AssetRepository is the asset catalog: it persists finished asset metadata.
// The core only registers and reads records through this interface; the
// backing store is swappable.
type AssetRepository interface {
	Create(ctx context.Context, asset *domain.Asset) (string, error)
	GetByID(ctx context.Context, id string) (*domain.Asset, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Asset, error)
	List(ctx context.Context) ([]domain.Asset, error)
	// UpdateMedia fills in media metadata discovered after registration
	// (duration probing happens asynchronously for reassembled uploads).
	UpdateMedia(ctx context.Context, id string, duration float64, size int64) error
}
