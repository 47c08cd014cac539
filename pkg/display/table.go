package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/0xmhha/usage-ledger/pkg/aggregator"
	"github.com/0xmhha/usage-ledger/pkg/pipeline"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// minLastColumn is the narrowest the last column is cut to when a table
// exceeds Config.Width.
const minLastColumn = 12

// tableFormatter formats output as tables.
type tableFormatter struct {
	config Config
}

// FormatValidation implements Formatter.FormatValidation.
func (f *tableFormatter) FormatValidation(w io.Writer, reports []usage.ValidationReport) error {
	title := "Validation"
	if len(reports) > 0 {
		title = "Validation " + reports[0].Date
	}
	if err := writeHeader(w, title, f.config.Compact); err != nil {
		return err
	}

	header := []string{"ID", "Category", "Stored", "Detail", "Diff", "Dupes", "Suspicious", "Status"}
	rows := make([][]string, 0, len(reports))

	var dupes []usage.DuplicatePair
	var suspicious []usage.SuspiciousSession
	for _, r := range reports {
		status := "ok"
		if !r.IsConsistent {
			status = "MISMATCH"
		}
		rows = append(rows, []string{
			strconv.Itoa(r.CategoryID),
			r.CategoryName,
			usage.FormatSeconds(r.PieChartTotal),
			usage.FormatSeconds(r.DetailTotal),
			formatSigned(r.TimeDifferenceSeconds) + "s",
			strconv.Itoa(len(r.DuplicateSessions)),
			strconv.Itoa(len(r.SuspiciousSessions)),
			status,
		})
		dupes = append(dupes, r.DuplicateSessions...)
		suspicious = append(suspicious, r.SuspiciousSessions...)
	}

	if err := f.writeTable(w, header, rows); err != nil {
		return err
	}

	if len(dupes) > 0 {
		if err := writeHeader(w, "Duplicate Pairs", f.config.Compact); err != nil {
			return err
		}
		rows = rows[:0]
		for _, d := range dupes {
			rows = append(rows, []string{
				fmt.Sprintf("#%d", d.First.ID),
				fmt.Sprintf("#%d", d.Second.ID),
				strconv.Itoa(d.OverlapSeconds) + "s",
				d.Package,
			})
		}
		if err := f.writeTable(w, []string{"Keep", "Delete", "Overlap", "Package"}, rows); err != nil {
			return err
		}
	}

	if len(suspicious) > 0 {
		if err := writeHeader(w, "Suspicious Sessions", f.config.Compact); err != nil {
			return err
		}
		rows = rows[:0]
		for _, s := range suspicious {
			rows = append(rows, []string{
				fmt.Sprintf("#%d", s.Session.ID),
				s.Session.PackageName,
				usage.FormatSeconds(s.Session.DurationSec),
				s.ReasonText(),
			})
		}
		if err := f.writeTable(w, []string{"ID", "Package", "Duration", "Reasons"}, rows); err != nil {
			return err
		}
	}

	return nil
}

// FormatRun implements Formatter.FormatRun.
func (f *tableFormatter) FormatRun(w io.Writer, result *aggregator.RunResult) error {
	if err := writeHeader(w, "Aggregation "+result.Date, f.config.Compact); err != nil {
		return err
	}

	categories := make([]string, len(result.Categories))
	for i, id := range result.Categories {
		categories[i] = strconv.Itoa(id)
	}

	rows := [][]string{
		{"Raw Sessions", formatNumber(result.Sessions)},
		{"Kept", formatNumber(result.Kept)},
		{"Timer Sessions", formatNumber(result.Timers)},
		{"Hourly Buckets", formatNumber(result.Buckets)},
		{"Stale Removed", formatNumber(result.Removed)},
		{"Hour Cap Applied", formatNumber(result.Clamped)},
		{"Categories", strings.Join(categories, ",")},
	}

	return f.writeTable(w, []string{"Metric", "Value"}, rows)
}

// FormatIngest implements Formatter.FormatIngest.
func (f *tableFormatter) FormatIngest(w io.Writer, result *pipeline.IngestResult) error {
	if err := writeHeader(w, "Ingestion", f.config.Compact); err != nil {
		return err
	}

	rows := [][]string{
		{"Files", formatNumber(result.Files)},
		{"Lines", formatNumber(result.Lines)},
		{"Malformed Lines", formatNumber(result.Skipped)},
		{"Sessions", formatNumber(result.Sessions)},
		{"Timer Sessions", formatNumber(result.Timers)},
		{"Excluded", formatNumber(result.Excluded)},
		{"Rejected", formatNumber(result.Rejected)},
		{"Unclassified", formatNumber(result.Misses)},
		{"Dates", strings.Join(result.Dates, ",")},
	}
	for _, err := range result.Errors {
		rows = append(rows, []string{"Error", err.Error()})
	}

	return f.writeTable(w, []string{"Metric", "Value"}, rows)
}

// FormatMigration implements Formatter.FormatMigration.
func (f *tableFormatter) FormatMigration(w io.Writer, result *usage.MigrationResult) error {
	if err := writeHeader(w, "Migration "+result.RunID, f.config.Compact); err != nil {
		return err
	}

	rows := [][]string{
		{"State", string(result.State)},
		{"Success", strconv.FormatBool(result.Success)},
	}
	for _, table := range tableOrder(result.PerTable) {
		rows = append(rows, []string{"Rows " + table, formatNumber(result.PerTable[table])})
	}
	rows = append(rows, []string{"Total Migrated", formatNumber(result.TotalMigrated)})
	if !result.FinishedAt.IsZero() {
		rows = append(rows, []string{"Duration", result.FinishedAt.Sub(result.StartedAt).String()})
	}
	if result.ErrorMessage != "" {
		rows = append(rows, []string{"Error", result.ErrorMessage})
	}

	return f.writeTable(w, []string{"Metric", "Value"}, rows)
}

// FormatRepair implements Formatter.FormatRepair.
func (f *tableFormatter) FormatRepair(w io.Writer, result *usage.RepairResult) error {
	if err := writeHeader(w, "Repair "+result.RunID, f.config.Compact); err != nil {
		return err
	}

	rows := make([][]string, 0, len(result.Actions))
	for _, a := range result.Actions {
		rows = append(rows, []string{
			fmt.Sprintf("#%d", a.SessionID),
			a.Date,
			string(a.Kind),
			usage.FormatSeconds(a.BeforeSec),
			usage.FormatSeconds(a.AfterSec),
			a.Package,
			a.Reason,
		})
	}

	header := []string{"ID", "Date", "Action", "Before", "After", "Package", "Reason"}
	if err := f.writeTable(w, header, rows); err != nil {
		return err
	}

	if len(result.DatesReaggregated) > 0 {
		_, err := fmt.Fprintf(w, "Re-aggregated: %s\n", strings.Join(result.DatesReaggregated, ", "))
		return err
	}
	return nil
}

// writeTable writes a formatted table.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	// Calculate column widths.
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	f.fitWidth(widths)

	if err := f.writeRow(w, header, widths); err != nil {
		return err
	}

	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, separator, widths); err != nil {
			return err
		}
	}

	for _, row := range rows {
		if err := f.writeRow(w, row, widths); err != nil {
			return err
		}
	}

	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}

	return nil
}

// fitWidth narrows the last column so the table fits Config.Width.
func (f *tableFormatter) fitWidth(widths []int) {
	if f.config.Width <= 0 || len(widths) == 0 {
		return
	}

	total := 0
	for _, width := range widths {
		total += width
	}
	total += (len(widths) - 1) * len(f.gap())

	last := len(widths) - 1
	if over := total - f.config.Width; over > 0 {
		widths[last] -= over
		if widths[last] < minLastColumn {
			widths[last] = minLastColumn
		}
	}
}

func (f *tableFormatter) gap() string {
	if f.config.Compact {
		return " "
	}
	return "  "
}

// writeRow writes a single table row. Cells wider than their column are
// cut with a trailing "..".
func (f *tableFormatter) writeRow(w io.Writer, cells []string, widths []int) error {
	for i, cell := range cells {
		if i > 0 {
			if _, err := fmt.Fprint(w, f.gap()); err != nil {
				return err
			}
		}

		if len(cell) > widths[i] {
			cell = cell[:widths[i]-2] + ".."
		}

		// The last column is not padded.
		if i == len(cells)-1 {
			if _, err := fmt.Fprint(w, cell); err != nil {
				return err
			}
			continue
		}

		if _, err := fmt.Fprintf(w, "%-*s", widths[i], cell); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}
