package ingest

import "errors"

// Common errors returned by ingestion.
var (
	// ErrFileNotFound is returned when a file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrPermissionDenied is returned when file access is denied.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrFileTooLarge is returned when a file exceeds the maximum size.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidOffset is returned when an offset is negative.
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrReaderClosed is returned when using a closed reader.
	ErrReaderClosed = errors.New("reader is closed")

	// ErrMissingDependency is returned when a required collaborator is nil.
	ErrMissingDependency = errors.New("missing dependency")
)
