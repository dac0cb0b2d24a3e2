package database

import "errors"

// Domain errors surfaced by the stores. Callers match with errors.Is.
var (
	// ErrNotFound means a referenced cluster, detection or media row is absent.
	ErrNotFound = errors.New("not found")

	// ErrConflict is reserved for uniqueness violations. The labeling merge
	// protocol absorbs owner conflicts instead of rejecting them, so this is
	// currently never returned by the engine itself.
	ErrConflict = errors.New("conflict")

	// ErrSerialization marks a retryable transaction failure (serialization
	// conflict or deadlock). The service layer retries a bounded number of
	// times before giving up with ErrUnavailable.
	ErrSerialization = errors.New("transaction serialization failure")

	// ErrUnavailable is returned after retryable failures are exhausted.
	ErrUnavailable = errors.New("temporarily unavailable")
)
