package domain

import (
	"time"
)

// TaskKind distinguishes the supported transform operations.
type TaskKind string

const (
	TaskKindTrim  TaskKind = "trim"
	TaskKindMerge TaskKind = "merge"
)

// TaskState is the lifecycle state of a TransformTask.
// Transitions: Queued -> Running -> Succeeded | Failed. Nothing leaves a
// terminal state; Progress observations happen inside Running only.
type TaskState string

const (
	TaskStateQueued    TaskState = "queued"
	TaskStateRunning   TaskState = "running"
	TaskStateSucceeded TaskState = "succeeded"
	TaskStateFailed    TaskState = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// Progress is an informational current/total observation emitted while a
// task is Running (e.g. "3 of 5 inputs processed").
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// TrimBounds carries the trim window in seconds from the start of the source.
type TrimBounds struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TransformTask is one unit of asynchronous media work owned by the
// orchestrator for its entire lifetime. Terminal tasks are retained for a
// retention window so clients can observe the outcome, then evicted.
type TransformTask struct {
	ID            string      `json:"taskId"`
	Kind          TaskKind    `json:"kind"`
	InputAssetIDs []string    `json:"inputAssetIds"`          // Ordered; one entry for trim, one or more for merge
	Trim          *TrimBounds `json:"trim,omitempty"`         // Set for trim tasks only
	State         TaskState   `json:"state"`
	Progress      *Progress   `json:"progress,omitempty"`     // Meaningful only while Running
	OutputAssetID string      `json:"outputAssetId,omitempty"` // Set only on success
	ErrorDetail   string      `json:"errorDetail,omitempty"`   // Set only on failure
	SubmittedAt   time.Time   `json:"submittedAt"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`
}
