package parser

import (
	"errors"
	"strconv"
)

// Common errors returned by the parser package.
var (
	// ErrMissingPackage is returned when an app tuple has no package name.
	ErrMissingPackage = errors.New("invalid tuple: package must not be empty")

	// ErrMissingCategory is returned when a timer tuple has no category.
	ErrMissingCategory = errors.New("invalid tuple: timer category must not be empty")

	// ErrUnknownKind is returned for a kind other than app or timer.
	ErrUnknownKind = errors.New("invalid tuple: kind must be app or timer")

	// ErrInvalidStart is returned when start is not a positive timestamp.
	ErrInvalidStart = errors.New("invalid tuple: start must be positive")

	// ErrInvalidRange is returned when end is not after start.
	ErrInvalidRange = errors.New("invalid tuple: end must be after start")

	// ErrMalformedJSON is returned when a JSONL line cannot be parsed.
	ErrMalformedJSON = errors.New("malformed JSON line")

	// ErrFileTooLarge is returned when a file exceeds the maximum size limit.
	ErrFileTooLarge = errors.New("file size exceeds maximum limit")

	// ErrLineTooLong is returned when a line exceeds MaxLineLength.
	ErrLineTooLong = errors.New("line exceeds maximum length")
)

// ParseError provides context about a parsing failure.
type ParseError struct {
	Line int    // Line number where error occurred (1-indexed from the offset)
	Data string // The malformed line (truncated if too long)
	Err  error  // Underlying error
}

func (e *ParseError) Error() string {
	maxLen := 100
	data := e.Data
	if len(data) > maxLen {
		data = data[:maxLen] + "..."
	}
	return formatError("parse error", e.Line, data, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError provides context about a tuple that parsed but is invalid.
type ValidationError struct {
	Line    int    // Line number where error occurred (1-indexed from the offset)
	Package string // Package (or timer category) of the tuple
	Err     error  // Underlying error
}

func (e *ValidationError) Error() string {
	return formatError("validation error", e.Line, e.Package, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// formatError creates a consistent error message format.
func formatError(prefix string, line int, context string, err error) string {
	if line > 0 {
		return prefix + " at line " + strconv.Itoa(line) + ": " + context + ": " + err.Error()
	}
	return prefix + ": " + context + ": " + err.Error()
}
