package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across the core services. The API layer maps these
// onto HTTP status codes with errors.Is; services wrap them with context
// using fmt.Errorf("...: %w", ...).
var (
	// ErrValidation covers caller mistakes reported synchronously: malformed
	// chunk indices, invalid trim bounds, empty merge input list, missing
	// required fields. Never retried automatically.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers unknown assets, unknown task ids and unknown or
	// expired tokens.
	ErrNotFound = errors.New("not found")

	// ErrSessionConflict is returned when a chunk resubmission claims a
	// totalChunks value different from the one fixed by the session's first
	// chunk.
	ErrSessionConflict = errors.New("session conflict: total chunks mismatch")

	// ErrTransient marks a recoverable external-transform failure (temporary
	// resource exhaustion). Workers retry these a bounded number of times
	// before surfacing a terminal failure.
	ErrTransient = errors.New("transient processing error")

	// ErrFatal marks an unrecoverable transform failure (corrupt input,
	// codec error). Surfaces directly as task failure, no retry.
	ErrFatal = errors.New("fatal processing error")

	// ErrSecurity covers bad signatures and tampered tokens. Always surfaced
	// to callers as a generic denial; detail is logged internally only.
	ErrSecurity = errors.New("security error")
)

// ValidationErrorf wraps ErrValidation with a caller-facing explanation.
func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
