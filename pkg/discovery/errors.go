package discovery

import "errors"

// Common errors returned by the discovery package.
var (
	// ErrInboxNotFound is returned when a directory does not exist.
	ErrInboxNotFound = errors.New("inbox directory not found")
)
