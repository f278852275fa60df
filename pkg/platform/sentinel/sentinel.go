package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: row or object does not exist
//   - ErrConflict: a uniqueness rule rejected the write
//   - ErrExpired: the entity exists but its validity window has passed
//   - ErrAlreadyUsed: an idempotency key was already claimed
//   - ErrInvalidState: entity is in the wrong state for the transition
//   - ErrUnavailable: backing service temporarily unreachable
//
// For validation errors use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
