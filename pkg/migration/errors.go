package migration

import (
	"errors"
	"fmt"

	"github.com/0xmhha/usage-ledger/pkg/store"
)

// Common errors.
var (
	// ErrInvalidShrinkRatio is returned when the shrink ratio is outside (0, 1].
	ErrInvalidShrinkRatio = errors.New("shrink ratio must be in (0, 1]")

	// ErrAlreadyRunning is returned when a migration starts while another
	// run of the same engine is in progress.
	ErrAlreadyRunning = errors.New("migration already running")
)

// RowError reports the row a migration stopped at.
type RowError struct {
	Table store.Table
	Key   string
	Err   error
}

// Error implements error.
func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %s: %v", e.Table, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *RowError) Unwrap() error {
	return e.Err
}
