package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"videoverse/video-api/internal/domain"
	"videoverse/video-api/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimVideoAccepted(t *testing.T) {
	transform := &stubTransformService{submitID: "task-1"}
	router := newTestRouter(t, &stubVideoService{}, transform, nil)

	w := doJSON(t, router, http.MethodPost, "/api/videos/vid-1/trim/", `{"start_time": 2, "end_time": 8}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var got TaskAcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "task-1", got.TaskID)
}

func TestTrimVideoErrors(t *testing.T) {
	tests := []struct {
		name       string
		submitErr  error
		wantStatus int
	}{
		{"invalid bounds", domain.ValidationErrorf("start_time must be before end_time"), http.StatusBadRequest},
		{"unknown video", fmt.Errorf("%w: vid-1", service.ErrAssetNotFound), http.StatusNotFound},
		{"queue full", service.ErrQueueFull, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &stubVideoService{}, &stubTransformService{submitErr: tt.submitErr}, nil)

			w := doJSON(t, router, http.MethodPost, "/api/videos/vid-1/trim/", `{"start_time": 2, "end_time": 8}`)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestTrimVideoRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(t, &stubVideoService{}, &stubTransformService{}, nil)

	w := doJSON(t, router, http.MethodPost, "/api/videos/vid-1/trim/", `{"start_time": "two"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMergeVideosAccepted(t *testing.T) {
	transform := &stubTransformService{submitID: "task-9"}
	router := newTestRouter(t, &stubVideoService{}, transform, nil)

	w := doJSON(t, router, http.MethodPost, "/api/videos/merge/", `{"video_ids": ["a", "b", "c"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	// Submission order flows through untouched.
	assert.Equal(t, []string{"a", "b", "c"}, transform.mergeInputs)
}

func TestMergeVideosRequiresIDs(t *testing.T) {
	router := newTestRouter(t, &stubVideoService{}, &stubTransformService{}, nil)

	w := doJSON(t, router, http.MethodPost, "/api/videos/merge/", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskStatusRunning(t *testing.T) {
	transform := &stubTransformService{
		task: &domain.TransformTask{
			ID:       "task-1",
			State:    domain.TaskStateRunning,
			Progress: &domain.Progress{Current: 2, Total: 4},
		},
	}
	router := newTestRouter(t, &stubVideoService{}, transform, nil)

	w := doJSON(t, router, http.MethodGet, "/api/videos/tasks/task-1/", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got TaskStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.TaskStateRunning, got.State)
	require.NotNil(t, got.Progress)
	assert.Equal(t, 2, got.Progress.Current)
	assert.Nil(t, got.Result)
	assert.Empty(t, got.Error)
}

func TestTaskStatusSucceeded(t *testing.T) {
	transform := &stubTransformService{
		task: &domain.TransformTask{
			ID:            "task-1",
			State:         domain.TaskStateSucceeded,
			OutputAssetID: "out-7",
		},
	}
	router := newTestRouter(t, &stubVideoService{}, transform, nil)

	w := doJSON(t, router, http.MethodGet, "/api/videos/tasks/task-1/", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got TaskStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.TaskStateSucceeded, got.State)
	require.NotNil(t, got.Result)
	assert.Equal(t, "out-7", got.Result.AssetID)
}

func TestTaskStatusUnknownTask(t *testing.T) {
	transform := &stubTransformService{statusErr: fmt.Errorf("%w: task-404", service.ErrTaskNotFound)}
	router := newTestRouter(t, &stubVideoService{}, transform, nil)

	w := doJSON(t, router, http.MethodGet, "/api/videos/tasks/task-404/", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
