package models

import "errors"

// Sentinel errors for the recommendation core. Callers match with errors.Is;
// producers wrap them with fmt.Errorf("%w: ...") to attach detail.
var (
	// ErrSchemaMismatch means an upstream feature record violates the
	// declared attribute schema (a required attribute is missing).
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrDimensionMismatch means a vector length disagrees with the active
	// weight profile. Signals schema or profile drift.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrEmbeddingUnavailable means the external text-embedding call failed
	// after bounded retries.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrTrackNotFound means a by-item query referenced an unindexed track.
	ErrTrackNotFound = errors.New("track not found")

	// ErrIndexCorrupt means a loaded snapshot failed an integrity check.
	// Fatal: the index must be rebuilt from source features, not repaired.
	ErrIndexCorrupt = errors.New("index corrupt")
)
