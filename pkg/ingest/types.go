// Package ingest turns JSONL session exports into raw usage rows.
//
// A Reader reads new complete lines of an export since the last committed
// offset, retrying transient failures. A Converter classifies the tuples and
// drops excluded packages. App sessions are kept whole even across midnight;
// the aggregator apportions them over the dates they cover:
//
//	r, err := ingest.NewReader(ingest.ReaderConfig{
//	    PositionStore: store.NewRepository(st),
//	    Parser:        parser.New(log),
//	}, log)
//	if err != nil {
//	    return err
//	}
//
//	batch, err := r.Read(ctx, "/inbox/export.jsonl")
//	if err != nil {
//	    return err
//	}
//	result := ingest.NewConverter(cat, loc, log).Convert(batch.Tuples)
//	err = st.Update(func(tx store.KV) error {
//	    repo := store.NewRepository(tx)
//	    // persist result.Sessions and result.Timers through repo, then:
//	    return r.CommitTo(repo, "/inbox/export.jsonl", batch.Offset)
//	})
package ingest

import (
	"context"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/parser"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// PositionStore provides persistence for file read positions.
type PositionStore interface {
	// Position returns the last committed offset of path, 0 if none.
	Position(path string) (int64, error)

	// SetPosition stores the committed offset of path.
	SetPosition(path string, offset int64) error

	// ResetPosition forgets the offset of path.
	ResetPosition(path string) error
}

// Reader provides incremental file reading.
type Reader interface {
	// Read parses complete lines of path after the committed offset. The
	// offset is not advanced; call Commit once the tuples are persisted.
	Read(ctx context.Context, path string) (*parser.Batch, error)

	// ReadFrom parses complete lines starting at offset.
	ReadFrom(ctx context.Context, path string, offset int64) (*parser.Batch, error)

	// Commit stores offset as the read position of path.
	Commit(path string, offset int64) error

	// CommitTo is Commit through ps, typically a repository bound to the
	// transaction that stores the batch, so rows and position commit
	// together.
	CommitTo(ps PositionStore, path string, offset int64) error

	// Reset resets the read position for a file to the beginning.
	Reset(path string) error

	// Close closes the reader.
	Close() error
}

// ReaderConfig contains reader configuration.
type ReaderConfig struct {
	// PositionStore persists file read positions.
	PositionStore PositionStore

	// Parser parses JSONL lines.
	Parser parser.Parser

	// MaxRetries is the maximum number of retry attempts for transient errors.
	// Default: 3.
	MaxRetries int

	// RetryDelay is the base delay between retry attempts.
	// Uses exponential backoff: delay * 2^attempt.
	// Default: 100ms.
	RetryDelay time.Duration

	// MaxFileSize is the maximum file size to read (safety limit).
	// Default: 100MB.
	MaxFileSize int64
}

// Result is the outcome of converting a batch of tuples.
type Result struct {
	// Sessions are the raw sessions to store, one per tuple.
	Sessions []usage.RawUsageSession

	// Timers are the timer sessions to store, split at midnight.
	Timers []usage.TimerSession

	// Excluded counts app tuples dropped by an exclusion rule.
	Excluded int

	// Rejected counts tuples that violated a model invariant.
	Rejected int

	// Misses counts tuples whose category name was not in the table.
	Misses int
}

// Dates returns the distinct dates touched by r, sorted. A session counts
// for every date it runs into.
func (r Result) Dates() []string {
	seen := make(map[string]bool)
	for _, s := range r.Sessions {
		for _, d := range s.SpannedDates() {
			seen[d] = true
		}
	}
	for _, t := range r.Timers {
		seen[t.Date] = true
	}
	return sortedKeys(seen)
}
