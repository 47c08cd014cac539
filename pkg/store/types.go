// Package store provides the usage-ledger storage layer on BoltDB.
//
// Every table is a bbolt bucket of JSON values under composite keys built
// by pkg/usage. Store is the untyped key/value abstraction; Repository adds
// typed access on top of it.
//
// Migration rewrites primary keys, so Store exposes Rekey: delete the old
// key and put the new row in one transaction.
//
//	st, err := store.Open(store.Config{Path: "~/.local/share/usage-ledger/ledger.db"}, log)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	repo := store.NewRepository(st)
//	sessions, err := repo.RawSessions("2024-05-01")
package store

import "time"

// Table names a bucket.
type Table string

// Tables.
const (
	TableRawSessions   Table = "raw_sessions"
	TableHourly        Table = "hourly"
	TableDaily         Table = "daily"
	TableWeekly        Table = "weekly"
	TableMonthly       Table = "monthly"
	TableTimerSessions Table = "timer_sessions"
	TablePositions     Table = "file_positions"

	// TableSessionSpans indexes raw sessions by every later date they run
	// into. Keys are spill date + "/" + the raw session key; values are the
	// raw session key.
	TableSessionSpans Table = "session_spans"
)

// CategoryTables lists the tables whose keys embed a category id, in
// migration order.
var CategoryTables = []Table{
	TableRawSessions,
	TableHourly,
	TableDaily,
	TableWeekly,
	TableMonthly,
	TableTimerSessions,
}

var allTables = append(append([]Table(nil), CategoryTables...), TablePositions, TableSessionSpans)

// ScanFunc receives each key/value pair of a scan. Slices are only valid
// during the call. Returning an error stops the scan.
type ScanFunc func(key, value []byte) error

// KV is row-level access to the tables. Store implements it with one
// transaction per call; inside Store.Update it is bound to a single
// transaction.
type KV interface {
	// Get returns a copy of the value under key, or ErrNotFound.
	Get(table Table, key []byte) ([]byte, error)

	// Put stores value under key.
	Put(table Table, key, value []byte) error

	// Delete removes key. Missing keys are not an error.
	Delete(table Table, key []byte) error

	// Rekey deletes oldKey and stores value under newKey. An existing row
	// under newKey is overwritten; callers merge beforehand.
	Rekey(table Table, oldKey, newKey, value []byte) error

	// Scan calls fn for every key starting with prefix, in key order.
	// A nil prefix scans the whole table. fn must not write to table.
	Scan(table Table, prefix []byte, fn ScanFunc) error

	// NextID returns the next sequence number of table.
	NextID(table Table) (int64, error)
}

// Store is the storage abstraction. Single KV calls are atomic per row.
type Store interface {
	KV

	// Update runs fn in one read-write transaction. Any error rolls the
	// whole transaction back.
	Update(fn func(tx KV) error) error

	// Close closes the underlying database.
	Close() error
}

// Config contains store configuration.
type Config struct {
	// Path is the database file path. "~" is expanded.
	Path string

	// Timeout is how long Open waits for the file lock.
	// Default: 1s.
	Timeout time.Duration
}
