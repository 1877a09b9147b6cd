package domain

import (
	"time"
)

// Asset stores metadata about a finished media object. The actual bytes
// reside in the configured file storage under StorageKey; the catalog only
// keeps this record.
type Asset struct {
	ID          string    `bson:"_id" json:"id"`                  // Opaque UUID string
	StorageKey  string    `bson:"storageKey" json:"-"`            // Key (path/filename) in storage - internal use
	FileName    string    `bson:"fileName" json:"fileName"`       // Original filename provided by client
	ContentType string    `bson:"contentType" json:"contentType"` // MIME type (e.g., "video/mp4")
	Duration    float64   `bson:"duration" json:"duration"`       // Duration in seconds; 0 if not yet probed
	Size        int64     `bson:"size" json:"size"`               // File size in bytes
	Checksum    string    `bson:"checksum,omitempty" json:"-"`    // BLAKE2b digest of the stored bytes, hex
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}

// An Asset can be produced three ways: a validated single-shot upload, a
// completed chunked-upload reassembly, or a successful transform task.
// It is immutable once created, except Duration which may be filled in
// late when probing happens after registration.
