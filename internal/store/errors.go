package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write loses to an existing record,
	// e.g. pinning a channel that already has a live pin.
	ErrConflict = errors.New("record already exists")
)
