package domain

import "errors"

// Validation errors surfaced to callers. Everything else in the
// pipeline degrades to a zero-signal score instead of failing.
var (
	ErrInvalidEntityType = errors.New("unknown entity type")
	ErrInvalidVerdict    = errors.New("unknown verdict")
	ErrInvalidSignal     = errors.New("unknown signal type")
)
