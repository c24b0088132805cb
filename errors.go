package evalrun

import "errors"

var (
	// ErrAlreadyExists indicates a create-style command targeted an entity id
	// that already has recorded state. Nothing is appended to its log.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrNotFound indicates a command or query targeted an entity id with no
	// recorded state (never created, or deleted).
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidVerdict indicates a verdict token outside pass/fail/inconclusive.
	ErrInvalidVerdict = errors.New("invalid verdict")
)
