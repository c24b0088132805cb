package es

import "context"

// Store provides one append-only event log per entity instance.
// Implementations must be safe for concurrent access.
type Store interface {
	// Append appends events to the log of (entityType, entityID).
	// expectedSeq is the sequence number of the current log head (0 for a new
	// log); a mismatch returns ErrSequenceConflict and appends nothing. On
	// success the stored envelopes are returned in order.
	Append(ctx context.Context, entityType, entityID string, expectedSeq int, events []Event) ([]Envelope, error)

	// Load returns the full ordered log for (entityType, entityID).
	// A log with no events returns an empty slice, not an error.
	Load(ctx context.Context, entityType, entityID string) ([]Envelope, error)

	// ReadSince returns up to limit envelopes with GlobalSeq greater than
	// afterGlobalSeq, in global order. Used by subscription dispatch.
	ReadSince(ctx context.Context, afterGlobalSeq int64, limit int) ([]Envelope, error)
}
