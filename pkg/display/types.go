// Package display provides output formatting for ledger results.
//
// It supports multiple output formats (table, JSON, simple text) for
// validation reports, aggregation runs, ingestion, migration and repair
// results.
package display

import (
	"io"

	"github.com/0xmhha/usage-ledger/pkg/aggregator"
	"github.com/0xmhha/usage-ledger/pkg/pipeline"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays results in formatted tables.
	FormatTable Format = "table"

	// FormatJSON displays results as JSON.
	FormatJSON Format = "json"

	// FormatSimple displays results as one line per record.
	FormatSimple Format = "simple"
)

// Formatter formats and displays ledger results.
type Formatter interface {
	// FormatValidation formats the per-category reports of one date.
	FormatValidation(w io.Writer, reports []usage.ValidationReport) error

	// FormatRun formats the result of one aggregation run.
	FormatRun(w io.Writer, result *aggregator.RunResult) error

	// FormatIngest formats the result of one ingestion.
	FormatIngest(w io.Writer, result *pipeline.IngestResult) error

	// FormatMigration formats the audit record of a migration run.
	FormatMigration(w io.Writer, result *usage.MigrationResult) error

	// FormatRepair formats the audit record of a repair run.
	FormatRepair(w io.Writer, result *usage.RepairResult) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// Compact enables compact output (less whitespace).
	// Default: false.
	Compact bool

	// Width is the maximum table width. Zero means no limit; the CLI
	// passes the terminal width.
	Width int
}
