package es

import "errors"

var (
	// ErrSequenceConflict indicates an append raced another writer or repeated
	// an already-applied command: the expected sequence number no longer
	// matches the log head. Nothing was appended.
	ErrSequenceConflict = errors.New("event log sequence conflict")
)
