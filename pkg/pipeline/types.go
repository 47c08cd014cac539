// Package pipeline wires the usage-ledger components behind one Engine and
// owns the locking model.
//
// Ingestion and aggregation take the global read lock plus a lock per date
// they touch, so different dates proceed in parallel while one date is
// never rebuilt under a concurrent insert. Migration and repair take the
// global write lock. Validation takes no lock.
//
//	eng, err := pipeline.New(pipeline.Config{Location: loc}, st, log)
//	if err != nil {
//	    return err
//	}
//	res, err := eng.IngestFiles(ctx, nil)
//	for _, date := range res.Dates {
//	    _, err = eng.RunAggregation(ctx, date)
//	}
package pipeline

import (
	"context"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/aggregator"
	"github.com/0xmhha/usage-ledger/pkg/anomaly"
	"github.com/0xmhha/usage-ledger/pkg/migration"
	"github.com/0xmhha/usage-ledger/pkg/parser"
	"github.com/0xmhha/usage-ledger/pkg/residency"
	"github.com/0xmhha/usage-ledger/pkg/rules"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// Engine is the entry point callers use to run the pipeline.
type Engine interface {
	// Ingest classifies tuples and stores the resulting raw and timer
	// sessions. It does not aggregate.
	Ingest(ctx context.Context, tuples []parser.SessionTuple) (*IngestResult, error)

	// IngestFiles ingests new lines of paths, or of every discovered
	// export when paths is empty. Read positions are committed only after
	// a file's rows are stored.
	IngestFiles(ctx context.Context, paths []string) (*IngestResult, error)

	// RunAggregation rebuilds every aggregate of date.
	RunAggregation(ctx context.Context, date string) (*aggregator.RunResult, error)

	// RunValidation returns one consistency report per category of date.
	RunValidation(ctx context.Context, date string) ([]usage.ValidationReport, error)

	// RunMigration corrects legacy category ids in every table.
	RunMigration(ctx context.Context) (*usage.MigrationResult, error)

	// NeedsMigration reports whether any stored row carries a legacy id.
	NeedsMigration(ctx context.Context) (bool, error)

	// Repair deletes duplicates and fixes suspicious sessions of date, then
	// re-aggregates it.
	Repair(ctx context.Context, date string) (*usage.RepairResult, error)

	// Summary renders a diagnostics summary of date.
	Summary(ctx context.Context, date string) (string, error)

	// SwapRules installs a new rule table.
	SwapRules(table *rules.Table) error

	// RulesVersion returns the version of the installed rule table.
	RulesVersion() string

	// Close releases the engine. The store stays open.
	Close() error
}

// Config contains engine configuration.
type Config struct {
	// Location is the time zone of dates and hours.
	// Default: time.Local.
	Location *time.Location

	// Rules is the initial rule table. Nil means rules.Default().
	Rules *rules.Table

	// Categories is the live category table.
	// Default: categorizer.DefaultCategories().
	Categories []usage.Category

	// Residency holds the background-residency package sets.
	Residency residency.Config

	// Anomaly configures the detector. Its Location is overridden by
	// Location.
	Anomaly anomaly.Config

	// Migration configures legacy ids and repair.
	Migration migration.Config

	// ToleranceSec is the validator consistency tolerance. Zero demands
	// exact agreement.
	// Default (nil): validator.DefaultToleranceSec.
	ToleranceSec *int

	// Inboxes are scanned for exports by IngestFiles.
	Inboxes []string

	// MaxFileSize limits a single export file.
	MaxFileSize int64

	// MaxRetries and RetryDelay control transient read retries.
	MaxRetries int
	RetryDelay time.Duration
}

// IngestResult summarizes one Ingest or IngestFiles call.
type IngestResult struct {
	// Files is the number of files read.
	Files int

	// Lines and Skipped count parsed and malformed lines.
	Lines   int
	Skipped int

	// Sessions and Timers count stored rows.
	Sessions int
	Timers   int

	// Excluded, Rejected and Misses are converter counters.
	Excluded int
	Rejected int
	Misses   int

	// Dates are the dates that received rows, sorted.
	Dates []string

	// Errors holds per-file failures; the remaining files are still read.
	Errors []error
}
