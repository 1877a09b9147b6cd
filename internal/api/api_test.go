package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"videoverse/video-api/internal/chunkstore"
	"videoverse/video-api/internal/domain"
	"videoverse/video-api/internal/repository"
	"videoverse/video-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// --- service stubs ---

type stubVideoService struct {
	uploadAsset *domain.Asset
	uploadErr   error
	listAssets  []domain.Asset
	listErr     error
	shareLink   string
	shareErr    error
	openAsset   *domain.Asset
	openBody    []byte
	openErr     error
}

func (s *stubVideoService) Upload(ctx context.Context, fileName string, r io.Reader, limits service.UploadLimits) (*domain.Asset, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	return s.uploadAsset, nil
}

func (s *stubVideoService) List(ctx context.Context) ([]domain.Asset, error) {
	return s.listAssets, s.listErr
}

func (s *stubVideoService) Get(ctx context.Context, assetID string) (*domain.Asset, error) {
	if s.uploadAsset != nil && s.uploadAsset.ID == assetID {
		return s.uploadAsset, nil
	}
	return nil, service.ErrAssetNotFound
}

func (s *stubVideoService) ShareLink(ctx context.Context, assetID string, ttl time.Duration) (string, error) {
	if s.shareErr != nil {
		return "", s.shareErr
	}
	return s.shareLink, nil
}

func (s *stubVideoService) OpenByToken(ctx context.Context, tokenString string) (*domain.Asset, io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, nil, s.openErr
	}
	return s.openAsset, io.NopCloser(bytes.NewReader(s.openBody)), nil
}

type stubTransformService struct {
	submitID    string
	submitErr   error
	mergeInputs []string
	task        *domain.TransformTask
	statusErr   error
}

func (s *stubTransformService) SubmitTrim(ctx context.Context, assetID string, start, end float64) (string, error) {
	return s.submitID, s.submitErr
}

func (s *stubTransformService) SubmitMerge(ctx context.Context, assetIDs []string) (string, error) {
	s.mergeInputs = assetIDs
	return s.submitID, s.submitErr
}

func (s *stubTransformService) Status(ctx context.Context, taskID string) (*domain.TransformTask, error) {
	return s.task, s.statusErr
}

func (s *stubTransformService) Start(ctx context.Context) {}

// --- chunkstore collaborators ---

type stubCatalog struct {
	mu     sync.Mutex
	assets map[string]domain.Asset
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{assets: make(map[string]domain.Asset)}
}

func (s *stubCatalog) Create(ctx context.Context, asset *domain.Asset) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	s.assets[asset.ID] = *asset
	return asset.ID, nil
}

func (s *stubCatalog) GetByID(ctx context.Context, id string) (*domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.assets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &asset, nil
}

func (s *stubCatalog) GetByIDs(ctx context.Context, ids []string) ([]domain.Asset, error) {
	var out []domain.Asset
	for _, id := range ids {
		asset, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *asset)
	}
	return out, nil
}

func (s *stubCatalog) List(ctx context.Context) ([]domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Asset
	for _, a := range s.assets {
		out = append(out, a)
	}
	return out, nil
}

func (s *stubCatalog) UpdateMedia(ctx context.Context, id string, duration float64, size int64) error {
	return nil
}

type stubObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newStubObjectStore() *stubObjectStore {
	return &stubObjectStore{objects: make(map[string][]byte)}
}

func (s *stubObjectStore) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return int64(len(data)), nil
}

func (s *stubObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *stubObjectStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// --- harness ---

func newTestRouter(t *testing.T, video service.VideoService, transform service.TransformService, chunks *chunkstore.ChunkStore) *gin.Engine {
	t.Helper()
	router := gin.New()
	SetupRoutes(router, testJWTSecret, video, transform, chunks)
	return router
}

func newTestChunkStore(t *testing.T) *chunkstore.ChunkStore {
	t.Helper()
	cs, err := chunkstore.NewChunkStore(t.TempDir(), time.Hour, newStubCatalog(), newStubObjectStore(), nil)
	require.NoError(t, err)
	return cs
}

func bearerToken(t *testing.T, secret string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"uid": "caller-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken(t, testJWTSecret))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// chunkForm builds a multipart body for the chunked upload endpoint. A nil
// payload omits the file part entirely.
func chunkForm(t *testing.T, fields map[string]string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if payload != nil {
		part, err := mw.CreateFormFile("chunk", "blob")
		require.NoError(t, err)
		_, err = part.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doMultipart(t *testing.T, router *gin.Engine, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerToken(t, testJWTSecret))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
