package store

import (
	"errors"
	"fmt"
)

// Common storage errors
var (
	// ErrRecordNotFound indicates that no live revision exists for the id
	ErrRecordNotFound = errors.New("record not found")

	// ErrRevisionMismatch indicates an optimistic write that did not
	// observe the newest revision
	ErrRevisionMismatch = errors.New("revision mismatch")

	// ErrPurgeFailed indicates the store could not remove a revision.
	// A revision that is already gone is NOT a purge failure: adapters
	// treat it as success (idempotent purge).
	ErrPurgeFailed = errors.New("purge failed")

	// ErrConflictNotFound indicates that no conflict record exists for the id
	ErrConflictNotFound = errors.New("conflict record not found")

	// ErrOpenConflictExists indicates an open (unresolved or resolving)
	// conflict record already backs this document id
	ErrOpenConflictExists = errors.New("open conflict record already exists")

	// errTransient marks errors worth retrying at the transport layer
	errTransient = errors.New("transient storage error")
)

// Transient wraps err so that the retry decorator will re-attempt the
// operation. Adapters mark timeouts and busy/locked conditions this way.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", errTransient, err)
}

// IsTransient reports whether err was marked retryable by an adapter.
func IsTransient(err error) bool {
	return errors.Is(err, errTransient)
}
