package domain

import (
	"time"
)

// UploadSession tracks one in-flight chunked upload. TotalChunks is fixed by
// the first chunk observed for the session; later chunks claiming a different
// total are rejected with ErrSessionConflict.
type UploadSession struct {
	SessionID      string       // Opaque id, client-supplied or server-issued on first chunk
	FileName       string       // Target filename, taken from the first chunk
	TotalChunks    int          // Immutable once set
	Received       map[int]bool // Set of received 1-based indices; duplicates collapse
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// ReceivedCount returns how many distinct chunk indices have arrived.
func (s *UploadSession) ReceivedCount() int {
	return len(s.Received)
}

// IsComplete reports whether every index in 1..TotalChunks has been received.
func (s *UploadSession) IsComplete() bool {
	return s.TotalChunks > 0 && len(s.Received) == s.TotalChunks
}
