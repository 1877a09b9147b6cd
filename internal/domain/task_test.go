package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskState_IsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		state    TaskState
		terminal bool
	}{
		{"queued is not terminal", TaskStateQueued, false},
		{"running is not terminal", TaskStateRunning, false},
		{"succeeded is terminal", TaskStateSucceeded, true},
		{"failed is terminal", TaskStateFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.state.IsTerminal())
		})
	}
}

func TestUploadSession_IsComplete(t *testing.T) {
	sess := UploadSession{
		TotalChunks: 3,
		Received:    map[int]bool{1: true, 3: true},
	}
	assert.False(t, sess.IsComplete())
	assert.Equal(t, 2, sess.ReceivedCount())

	sess.Received[2] = true
	assert.True(t, sess.IsComplete())

	// Duplicate arrivals collapse; completeness is about distinct indices.
	sess.Received[2] = true
	assert.Equal(t, 3, sess.ReceivedCount())
}
