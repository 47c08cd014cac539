package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/0xmhha/usage-ledger/pkg/aggregator"
	"github.com/0xmhha/usage-ledger/pkg/pipeline"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// simpleFormatter formats output as simple text.
type simpleFormatter struct {
	config Config
}

// FormatValidation implements Formatter.FormatValidation.
func (f *simpleFormatter) FormatValidation(w io.Writer, reports []usage.ValidationReport) error {
	for _, r := range reports {
		status := "ok"
		if !r.IsConsistent {
			status = "mismatch"
		}
		if _, err := fmt.Fprintf(w, "%s %s: stored %ds, detail %ds, diff %+ds, %d duplicates, %d suspicious (%s)\n",
			r.Date,
			r.CategoryName,
			r.PieChartTotal,
			r.DetailTotal,
			r.TimeDifferenceSeconds,
			len(r.DuplicateSessions),
			len(r.SuspiciousSessions),
			status); err != nil {
			return err
		}
	}

	return nil
}

// FormatRun implements Formatter.FormatRun.
func (f *simpleFormatter) FormatRun(w io.Writer, result *aggregator.RunResult) error {
	_, err := fmt.Fprintf(w, "%s: %d sessions (%d kept), %d timers, %d buckets, %d removed, %d capped\n",
		result.Date,
		result.Sessions,
		result.Kept,
		result.Timers,
		result.Buckets,
		result.Removed,
		result.Clamped)
	return err
}

// FormatIngest implements Formatter.FormatIngest.
func (f *simpleFormatter) FormatIngest(w io.Writer, result *pipeline.IngestResult) error {
	if _, err := fmt.Fprintf(w, "Files: %d | Lines: %d | Malformed: %d | Sessions: %d | Timers: %d | Excluded: %d | Dates: %s\n",
		result.Files,
		result.Lines,
		result.Skipped,
		result.Sessions,
		result.Timers,
		result.Excluded,
		strings.Join(result.Dates, ",")); err != nil {
		return err
	}

	for _, e := range result.Errors {
		if _, err := fmt.Fprintf(w, "error: %v\n", e); err != nil {
			return err
		}
	}

	return nil
}

// FormatMigration implements Formatter.FormatMigration.
func (f *simpleFormatter) FormatMigration(w io.Writer, result *usage.MigrationResult) error {
	parts := make([]string, 0, len(result.PerTable))
	for _, table := range tableOrder(result.PerTable) {
		parts = append(parts, fmt.Sprintf("%s=%d", table, result.PerTable[table]))
	}

	if _, err := fmt.Fprintf(w, "migration %s %s: %d rows (%s)\n",
		result.RunID,
		result.State,
		result.TotalMigrated,
		strings.Join(parts, " ")); err != nil {
		return err
	}

	if result.ErrorMessage != "" {
		_, err := fmt.Fprintf(w, "error: %s\n", result.ErrorMessage)
		return err
	}
	return nil
}

// FormatRepair implements Formatter.FormatRepair.
func (f *simpleFormatter) FormatRepair(w io.Writer, result *usage.RepairResult) error {
	for _, a := range result.Actions {
		if _, err := fmt.Fprintf(w, "%s #%d %s %ds -> %ds: %s\n",
			a.Kind,
			a.SessionID,
			a.Package,
			a.BeforeSec,
			a.AfterSec,
			a.Reason); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "repair %s: %d actions\n", result.RunID, len(result.Actions))
	return err
}
