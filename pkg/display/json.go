package display

import (
	"encoding/json"
	"io"

	"github.com/0xmhha/usage-ledger/pkg/aggregator"
	"github.com/0xmhha/usage-ledger/pkg/pipeline"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

// ingestJSON is the wire form of pipeline.IngestResult; errors do not
// marshal on their own.
type ingestJSON struct {
	Files    int      `json:"files"`
	Lines    int      `json:"lines"`
	Skipped  int      `json:"skipped"`
	Sessions int      `json:"sessions"`
	Timers   int      `json:"timers"`
	Excluded int      `json:"excluded"`
	Rejected int      `json:"rejected"`
	Misses   int      `json:"misses"`
	Dates    []string `json:"dates"`
	Errors   []string `json:"errors,omitempty"`
}

// runJSON is the wire form of aggregator.RunResult.
type runJSON struct {
	Date       string `json:"date"`
	Sessions   int    `json:"sessions"`
	Kept       int    `json:"kept"`
	Timers     int    `json:"timers"`
	Buckets    int    `json:"buckets"`
	Removed    int    `json:"removed"`
	Clamped    int    `json:"clamped"`
	Categories []int  `json:"categories"`
}

// FormatValidation implements Formatter.FormatValidation.
func (f *jsonFormatter) FormatValidation(w io.Writer, reports []usage.ValidationReport) error {
	if reports == nil {
		reports = []usage.ValidationReport{}
	}
	return f.encode(w, reports)
}

// FormatRun implements Formatter.FormatRun.
func (f *jsonFormatter) FormatRun(w io.Writer, result *aggregator.RunResult) error {
	return f.encode(w, runJSON{
		Date:       result.Date,
		Sessions:   result.Sessions,
		Kept:       result.Kept,
		Timers:     result.Timers,
		Buckets:    result.Buckets,
		Removed:    result.Removed,
		Clamped:    result.Clamped,
		Categories: result.Categories,
	})
}

// FormatIngest implements Formatter.FormatIngest.
func (f *jsonFormatter) FormatIngest(w io.Writer, result *pipeline.IngestResult) error {
	out := ingestJSON{
		Files:    result.Files,
		Lines:    result.Lines,
		Skipped:  result.Skipped,
		Sessions: result.Sessions,
		Timers:   result.Timers,
		Excluded: result.Excluded,
		Rejected: result.Rejected,
		Misses:   result.Misses,
		Dates:    result.Dates,
	}
	for _, err := range result.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return f.encode(w, out)
}

// FormatMigration implements Formatter.FormatMigration.
func (f *jsonFormatter) FormatMigration(w io.Writer, result *usage.MigrationResult) error {
	return f.encode(w, result)
}

// FormatRepair implements Formatter.FormatRepair.
func (f *jsonFormatter) FormatRepair(w io.Writer, result *usage.RepairResult) error {
	return f.encode(w, result)
}

func (f *jsonFormatter) encode(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}

	return encoder.Encode(v)
}
