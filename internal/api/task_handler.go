package api

import (
	"errors"
	"net/http"

	"videoverse/video-api/internal/domain"
	"videoverse/video-api/internal/service"

	"github.com/gin-gonic/gin"
)

// TaskHandler exposes transform submission and status polling.
type TaskHandler struct {
	transformService service.TransformService
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(transformService service.TransformService) *TaskHandler {
	return &TaskHandler{transformService: transformService}
}

// --- Request/Response Structs ---

type TrimRequest struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

type MergeRequest struct {
	VideoIDs []string `json:"video_ids" binding:"required"`
}

type TaskAcceptedResponse struct {
	TaskID string `json:"task_id"`
}

// TaskStatusResponse reports the task state machine to pollers. Progress is
// present only while the task is running; result only after success; error
// only after failure.
type TaskStatusResponse struct {
	TaskID   string           `json:"task_id"`
	State    domain.TaskState `json:"state"`
	Progress *domain.Progress `json:"progress,omitempty"`
	Result   *AssetRef        `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type AssetRef struct {
	AssetID string `json:"asset_id"`
}

// --- Handler Methods ---

// TrimVideo godoc
// @Summary Submit an asynchronous trim task
// @Tags Tasks
// @Accept json
// @Produce json
// @Param id path string true "Source video id"
// @Param bounds body TrimRequest true "Trim window in seconds"
// @Success 202 {object} TaskAcceptedResponse
// @Failure 400 {object} gin.H "Invalid bounds"
// @Failure 404 {object} gin.H "Unknown video"
// @Router /videos/{id}/trim/ [post]
func (h *TaskHandler) TrimVideo(c *gin.Context) {
	var req TrimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	taskID, err := h.transformService.SubmitTrim(c.Request.Context(), c.Param("id"), req.StartTime, req.EndTime)
	if err != nil {
		h.abortSubmitError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, TaskAcceptedResponse{TaskID: taskID})
}

// MergeVideos godoc
// @Summary Submit an asynchronous merge task
// @Description Inputs are concatenated in the order given; heterogeneous
// @Description resolutions and frame rates are normalized first.
// @Tags Tasks
// @Accept json
// @Produce json
// @Param inputs body MergeRequest true "Ordered video ids"
// @Success 202 {object} TaskAcceptedResponse
// @Failure 400 {object} gin.H "Empty input list"
// @Failure 404 {object} gin.H "Unknown video"
// @Router /videos/merge/ [post]
func (h *TaskHandler) MergeVideos(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "video_ids is required")
		return
	}

	taskID, err := h.transformService.SubmitMerge(c.Request.Context(), req.VideoIDs)
	if err != nil {
		h.abortSubmitError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, TaskAcceptedResponse{TaskID: taskID})
}

// TaskStatus godoc
// @Summary Poll a transform task
// @Tags Tasks
// @Produce json
// @Param id path string true "Task id"
// @Success 200 {object} TaskStatusResponse
// @Failure 404 {object} gin.H "Unknown task"
// @Router /videos/tasks/{id}/ [get]
func (h *TaskHandler) TaskStatus(c *gin.Context) {
	task, err := h.transformService.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Could not read task status")
		}
		return
	}

	resp := TaskStatusResponse{
		TaskID:   task.ID,
		State:    task.State,
		Progress: task.Progress,
		Error:    task.ErrorDetail,
	}
	if task.OutputAssetID != "" {
		resp.Result = &AssetRef{AssetID: task.OutputAssetID}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *TaskHandler) abortSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAssetNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrQueueFull):
		abortWithError(c, http.StatusServiceUnavailable, err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred during submission")
	}
}
