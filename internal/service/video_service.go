package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"time"

	"videoverse/video-api/internal/config"
	"videoverse/video-api/internal/domain"
	"videoverse/video-api/internal/media"
	"videoverse/video-api/internal/repository"
	"videoverse/video-api/internal/storage"
	"videoverse/video-api/internal/token"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// UploadLimits carries per-request validation overrides; zero values fall
// back to the configured defaults.
type UploadLimits struct {
	MaxSizeBytes int64
	MinDuration  float64
	MaxDuration  float64
}

// VideoService covers the synchronous video operations: validated single-shot
// upload, listing, share-link issuance and token-gated retrieval.
type VideoService interface {
	Upload(ctx context.Context, fileName string, r io.Reader, limits UploadLimits) (*domain.Asset, error)
	List(ctx context.Context) ([]domain.Asset, error)
	Get(ctx context.Context, assetID string) (*domain.Asset, error)

	// ShareLink issues a capability token for the asset and embeds it in a
	// retrieval URL. ttl <= 0 uses the configured default.
	ShareLink(ctx context.Context, assetID string, ttl time.Duration) (string, error)

	// OpenByToken verifies the capability token and opens the asset's bytes.
	// Any failure reason (bad signature, expiry, unknown asset) is returned
	// as-is; callers must collapse them into one uniform denial.
	OpenByToken(ctx context.Context, tokenString string) (*domain.Asset, io.ReadCloser, error)
}

// videoService implements the VideoService interface.
type videoService struct {
	catalog     repository.AssetRepository
	files       storage.FileStorage
	transformer media.Transformer
	tokens      token.Service
	mediaCfg    config.MediaConfig
	tokenCfg    config.TokenConfig
	baseURL     string
	scratchDir  string
}

// NewVideoService creates a new instance of videoService. scratchDir holds
// uploads temporarily while they are validated.
func NewVideoService(catalog repository.AssetRepository, files storage.FileStorage, transformer media.Transformer, tokens token.Service, cfg config.Config) VideoService {
	return &videoService{
		catalog:     catalog,
		files:       files,
		transformer: transformer,
		tokens:      tokens,
		mediaCfg:    cfg.Media,
		tokenCfg:    cfg.Token,
		baseURL:     cfg.Server.BaseURL,
		scratchDir:  cfg.Transform.WorkDir,
	}
}

// Upload validates size and duration bounds, stores the file and registers
// it with the catalog.
func (s *videoService) Upload(ctx context.Context, fileName string, r io.Reader, limits UploadLimits) (*domain.Asset, error) {
	if fileName == "" {
		return nil, domain.ValidationErrorf("file name is required")
	}

	maxSize := limits.MaxSizeBytes
	if maxSize <= 0 {
		maxSize = s.mediaCfg.MaxSizeBytes
	}
	minDuration := limits.MinDuration
	if minDuration <= 0 {
		minDuration = s.mediaCfg.MinDuration
	}
	maxDuration := limits.MaxDuration
	if maxDuration <= 0 {
		maxDuration = s.mediaCfg.MaxDuration
	}

	// Spool to scratch first: validation needs a seekable file for probing.
	if err := os.MkdirAll(s.scratchDir, 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(s.scratchDir, "upload-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	// Read one byte past the limit so oversize files are rejected without
	// spooling the whole payload.
	size, err := io.Copy(tmp, io.LimitReader(r, maxSize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	if size > maxSize {
		return nil, domain.ValidationErrorf("file exceeds maximum size of %d bytes", maxSize)
	}

	duration, err := s.transformer.Probe(ctx, tmpPath)
	if err != nil {
		return nil, domain.ValidationErrorf("file is not a readable video: %v", err)
	}
	if duration < minDuration || duration > maxDuration {
		return nil, domain.ValidationErrorf("video duration %.1fs out of bounds [%.1fs, %.1fs]", duration, minDuration, maxDuration)
	}

	contentType := "video/mp4"
	if mtype, err := mimetype.DetectFile(tmpPath); err == nil {
		contentType = mtype.String()
	}

	storageKey := fmt.Sprintf("videos/uploads/%s/%s", uuid.NewString(), fileName)
	f, err := os.Open(tmpPath)
	if err != nil {
		return nil, err
	}
	stored, err := s.files.Save(ctx, storageKey, f)
	f.Close()
	if err != nil {
		return nil, err
	}

	asset := &domain.Asset{
		StorageKey:  storageKey,
		FileName:    fileName,
		ContentType: contentType,
		Duration:    duration,
		Size:        stored,
	}
	if _, err := s.catalog.Create(ctx, asset); err != nil {
		_ = s.files.Delete(ctx, storageKey)
		return nil, err
	}
	return asset, nil
}

// List returns all registered assets.
func (s *videoService) List(ctx context.Context) ([]domain.Asset, error) {
	return s.catalog.List(ctx)
}

// Get returns one asset by id.
func (s *videoService) Get(ctx context.Context, assetID string) (*domain.Asset, error) {
	asset, err := s.catalog.GetByID(ctx, assetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
		}
		return nil, err
	}
	return asset, nil
}

// ShareLink issues a capability token bound to the asset and wraps it in a
// retrieval URL a third party can use without holding any credential.
func (s *videoService) ShareLink(ctx context.Context, assetID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.tokenCfg.DefaultTTL
	}

	// Issue only for assets that actually exist.
	if _, err := s.Get(ctx, assetID); err != nil {
		return "", err
	}

	signed, err := s.tokens.Issue(assetID, ttl)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/api/videos/serve/?token=%s", s.baseURL, url.QueryEscape(signed)), nil
}

// OpenByToken resolves a capability token to the asset bytes.
func (s *videoService) OpenByToken(ctx context.Context, tokenString string) (*domain.Asset, io.ReadCloser, error) {
	assetID, err := s.tokens.Verify(tokenString, s.tokenCfg.MaxAge)
	if err != nil {
		return nil, nil, err
	}

	asset, err := s.catalog.GetByID(ctx, assetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
		}
		return nil, nil, err
	}

	r, err := s.files.Open(ctx, asset.StorageKey)
	if err != nil {
		log.Printf("ERROR: Asset %s is cataloged but its object %s is unreadable: %v", asset.ID, asset.StorageKey, err)
		return nil, nil, err
	}
	return asset, r, nil
}
