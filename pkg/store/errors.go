package store

import "errors"

// Sentinel errors shared across the asset store. Callers match them with
// errors.Is; backends are responsible for translating their native failure
// modes into these.
var (
	// ErrAlreadyExists is returned when a create targets a key that is
	// already present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound is returned when an operation targets a missing key.
	ErrNotFound = errors.New("not found")

	// ErrVersionNotFound is returned when a policy version read or a
	// rollback target does not exist.
	ErrVersionNotFound = errors.New("version not found")

	// ErrConflict is returned when an optimistic-concurrency condition
	// failed. The caller should re-read and retry.
	ErrConflict = errors.New("concurrent modification detected")
)
