package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")

	// ErrUnauthorized covers unknown workers, bad tokens and request keys
	// that are unknown, consumed, or bound to a cycle that no longer accepts reports.
	ErrUnauthorized = errors.New("unauthorized")
	ErrRejected     = errors.New("rejected")
	ErrConflict     = errors.New("conflict")
	// ErrTransient marks storage contention that may succeed on retry.
	ErrTransient = errors.New("transient failure")
	// ErrFatal marks a failure that needs operator attention.
	ErrFatal = errors.New("fatal failure")

	ErrKeyConsumed   = errors.New("request key already consumed")
	ErrMalformedDiff = errors.New("malformed diff")
)
