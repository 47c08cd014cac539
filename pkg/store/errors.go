package store

import "errors"

// Common errors returned by the store.
var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrUnknownTable is returned for a table that was never created.
	ErrUnknownTable = errors.New("unknown table")

	// ErrEmptyKey is returned for a nil or empty key.
	ErrEmptyKey = errors.New("empty key")
)
