package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"videoverse/video-api/internal/service"

	"github.com/gin-gonic/gin"
)

// ShareHandler issues share links and serves token-gated downloads.
type ShareHandler struct {
	videoService service.VideoService
}

// NewShareHandler creates a new ShareHandler.
func NewShareHandler(videoService service.VideoService) *ShareHandler {
	return &ShareHandler{videoService: videoService}
}

// --- Request/Response Structs ---

type ShareRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
}

type ShareResponse struct {
	Link string `json:"link"`
}

// --- Handler Methods ---

// ShareVideo godoc
// @Summary Generate an expirable retrieval link for a video
// @Tags Share
// @Accept json
// @Produce json
// @Param id path string true "Video id"
// @Param options body ShareRequest false "TTL in seconds (default 60)"
// @Success 200 {object} ShareResponse
// @Failure 404 {object} gin.H "Unknown video"
// @Router /videos/{id}/share/ [post]
func (h *ShareHandler) ShareVideo(c *gin.Context) {
	var req ShareRequest
	// Body is optional; the default TTL applies when it is absent.
	_ = c.ShouldBindJSON(&req)

	link, err := h.videoService.ShareLink(c.Request.Context(), c.Param("id"), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		if errors.Is(err, service.ErrAssetNotFound) {
			abortWithError(c, http.StatusNotFound, "Video not found")
		} else {
			abortWithError(c, http.StatusInternalServerError, "Could not generate link")
		}
		return
	}
	c.JSON(http.StatusOK, ShareResponse{Link: link})
}

// ServeVideo streams an asset to the bearer of a valid capability token.
// Every failure - missing token, bad signature, expiry, unknown asset -
// produces the same not-found response so callers cannot distinguish why a
// token was rejected; the real reason is logged server-side only.
func (h *ShareHandler) ServeVideo(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		h.denyUniform(c, errors.New("missing token"))
		return
	}

	asset, body, err := h.videoService.OpenByToken(c.Request.Context(), tokenString)
	if err != nil {
		h.denyUniform(c, err)
		return
	}
	defer body.Close()

	c.Header("Content-Type", asset.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", asset.FileName))
	if asset.Size > 0 {
		c.Header("Content-Length", fmt.Sprintf("%d", asset.Size))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		// Headers are gone already; just record the broken transfer.
		log.Printf("WARN: Streaming asset %s aborted: %v", asset.ID, err)
	}
}

func (h *ShareHandler) denyUniform(c *gin.Context, reason error) {
	log.Printf("INFO: Token-gated retrieval denied: %v", reason)
	abortWithError(c, http.StatusNotFound, "Not found")
}
