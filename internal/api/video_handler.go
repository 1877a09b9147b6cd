package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"videoverse/video-api/internal/chunkstore"
	"videoverse/video-api/internal/domain"
	"videoverse/video-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// VideoHandler holds the upload/listing dependencies.
type VideoHandler struct {
	videoService service.VideoService
	chunks       *chunkstore.ChunkStore
}

// NewVideoHandler creates a new VideoHandler.
func NewVideoHandler(videoService service.VideoService, chunks *chunkstore.ChunkStore) *VideoHandler {
	return &VideoHandler{videoService: videoService, chunks: chunks}
}

// --- Request/Response Structs ---

// AssetResponse is the public shape of a registered asset.
type AssetResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Duration   float64   `json:"duration"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ChunkAcceptedResponse is returned while a session is still incomplete.
type ChunkAcceptedResponse struct {
	Message  string `json:"message"`
	FileID   string `json:"file_id"`
	Received int    `json:"received"`
	Total    int    `json:"total"`
}

// MapAssetToResponse converts a domain Asset to its response DTO.
func MapAssetToResponse(asset *domain.Asset) AssetResponse {
	if asset == nil {
		return AssetResponse{}
	}
	return AssetResponse{
		ID:         asset.ID,
		Name:       asset.FileName,
		Duration:   asset.Duration,
		Size:       asset.Size,
		UploadedAt: asset.CreatedAt,
	}
}

// --- Handler Methods ---

// ListVideos godoc
// @Summary List all registered videos
// @Tags Videos
// @Produce json
// @Success 200 {array} AssetResponse
// @Router /videos/list/ [get]
func (h *VideoHandler) ListVideos(c *gin.Context) {
	assets, err := h.videoService.List(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Could not list videos")
		return
	}

	responses := make([]AssetResponse, 0, len(assets))
	for i := range assets {
		responses = append(responses, MapAssetToResponse(&assets[i]))
	}
	c.JSON(http.StatusOK, responses)
}

// UploadVideo godoc
// @Summary Upload a video in one request
// @Description Validates size and duration bounds before registering the video.
// @Tags Videos
// @Accept mpfd
// @Produce json
// @Param file formData file true "Video file"
// @Success 201 {object} AssetResponse
// @Failure 400 {object} gin.H "Validation error"
// @Router /videos/upload/ [post]
func (h *VideoHandler) UploadVideo(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "A 'file' form field is required")
		return
	}

	limits, err := parseUploadLimits(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Could not read uploaded file")
		return
	}
	defer file.Close()

	asset, err := h.videoService.Upload(c.Request.Context(), fileHeader.Filename, file, limits)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			abortWithError(c, http.StatusBadRequest, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred during upload")
		}
		return
	}

	c.JSON(http.StatusCreated, MapAssetToResponse(asset))
}

// UploadChunk godoc
// @Summary Submit one chunk of a chunked upload
// @Description Accepts out-of-order, possibly duplicated chunks. Returns 200
// @Description while the session is incomplete and 201 with the registered
// @Description asset once the final chunk completes reassembly.
// @Tags Videos
// @Accept mpfd
// @Produce json
// @Param chunk_number formData int true "1-based chunk index"
// @Param total_chunks formData int true "Total chunks in the session"
// @Param file_id formData string false "Session id; issued by the server on the first chunk when omitted"
// @Param file_name formData string true "Target file name"
// @Param chunk formData file true "Raw chunk payload"
// @Success 200 {object} ChunkAcceptedResponse "Session incomplete"
// @Success 201 {object} AssetResponse "Final chunk; asset registered"
// @Failure 400 {object} gin.H "Validation error"
// @Failure 404 {object} gin.H "Session expired and was reclaimed"
// @Failure 409 {object} gin.H "total_chunks conflicts with the session"
// @Router /videos/chunked_upload/ [post]
func (h *VideoHandler) UploadChunk(c *gin.Context) {
	chunkNumber, err := strconv.Atoi(c.PostForm("chunk_number"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "chunk_number must be an integer")
		return
	}
	totalChunks, err := strconv.Atoi(c.PostForm("total_chunks"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "total_chunks must be an integer")
		return
	}
	fileName := c.PostForm("file_name")

	fileID := c.PostForm("file_id")
	if fileID == "" {
		fileID = uuid.NewString()
	}

	chunkHeader, err := c.FormFile("chunk")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "A 'chunk' form field is required")
		return
	}
	chunk, err := chunkHeader.Open()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Could not read chunk payload")
		return
	}
	defer chunk.Close()

	outcome, err := h.chunks.Submit(c.Request.Context(), fileID, chunkNumber, totalChunks, fileName, chunk)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			abortWithError(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrSessionConflict):
			abortWithError(c, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, chunkstore.ErrRegisterFailed):
			// Reassembly worked; cataloging did not. The session is retained,
			// so resubmitting the final chunk retries registration.
			abortWithError(c, http.StatusInternalServerError, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Could not store chunk")
		}
		return
	}

	if outcome.Completed {
		c.JSON(http.StatusCreated, MapAssetToResponse(outcome.Asset))
		return
	}

	c.JSON(http.StatusOK, ChunkAcceptedResponse{
		Message:  fmt.Sprintf("Chunk %d/%d received", chunkNumber, totalChunks),
		FileID:   fileID,
		Received: outcome.Received,
		Total:    outcome.Total,
	})
}

// --- form helpers ---

// parseUploadLimits reads the optional per-request validation overrides.
// Absent fields keep the configured defaults; a field that is present but
// unparseable is a caller error.
func parseUploadLimits(c *gin.Context) (service.UploadLimits, error) {
	var limits service.UploadLimits
	var err error
	if limits.MaxSizeBytes, err = parseInt64Field(c, "max_size"); err != nil {
		return limits, err
	}
	if limits.MinDuration, err = parseFloatField(c, "min_duration"); err != nil {
		return limits, err
	}
	limits.MaxDuration, err = parseFloatField(c, "max_duration")
	return limits, err
}

func parseInt64Field(c *gin.Context, field string) (int64, error) {
	raw := c.PostForm(field)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", field)
	}
	return v, nil
}

func parseFloatField(c *gin.Context, field string) (float64, error) {
	raw := c.PostForm(field)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", field)
	}
	return v, nil
}
