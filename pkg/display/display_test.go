package display

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/aggregator"
	"github.com/0xmhha/usage-ledger/pkg/pipeline"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config Config
		want   string // Type name
	}{
		{
			name:   "default format (table)",
			config: Config{},
			want:   "*display.tableFormatter",
		},
		{
			name:   "table format",
			config: Config{Format: FormatTable},
			want:   "*display.tableFormatter",
		},
		{
			name:   "json format",
			config: Config{Format: FormatJSON},
			want:   "*display.jsonFormatter",
		},
		{
			name:   "simple format",
			config: Config{Format: FormatSimple},
			want:   "*display.simpleFormatter",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			formatter := New(tt.config)
			if formatter == nil {
				t.Fatal("New() returned nil")
			}

			got := fmt.Sprintf("%T", formatter)
			if got != tt.want {
				t.Errorf("New() type = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tty     bool
		want    Format
		wantErr bool
	}{
		{name: "", tty: true, want: FormatTable},
		{name: "", tty: false, want: FormatSimple},
		{name: "JSON", tty: true, want: FormatJSON},
		{name: "simple", tty: true, want: FormatSimple},
		{name: "table", tty: false, want: FormatTable},
		{name: "html", tty: true, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.name, tt.tty)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q, %v) error = %v, wantErr %v", tt.name, tt.tty, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q, %v) = %v, want %v", tt.name, tt.tty, got, tt.want)
		}
	}
}

func testReports() []usage.ValidationReport {
	first := usage.RawUsageSession{ID: 1, PackageName: "com.example.app", DurationSec: 600}
	second := usage.RawUsageSession{ID: 2, PackageName: "com.example.app", DurationSec: 400}
	night := usage.RawUsageSession{ID: 3, PackageName: "com.tencent.mm", DurationSec: 5400}

	return []usage.ValidationReport{
		{
			Date:          "2024-05-01",
			CategoryID:    1,
			CategoryName:  "entertainment",
			PieChartTotal: 1000,
			DetailTotal:   1000,
			IsConsistent:  true,
			DuplicateSessions: []usage.DuplicatePair{
				{Package: "com.example.app", Date: "2024-05-01", First: first, Second: second, OverlapSeconds: 100},
			},
		},
		{
			Date:                  "2024-05-01",
			CategoryID:            2,
			CategoryName:          "learning",
			PieChartTotal:         700,
			DetailTotal:           600,
			TimeDifferenceSeconds: 100,
			SuspiciousSessions: []usage.SuspiciousSession{
				{Session: night, Reasons: []usage.Reason{
					{Kind: usage.ReasonNightLong, Message: "night-time long session", LimitSec: 1800},
				}},
			},
		},
	}
}

func TestTableFormatter_FormatValidation(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatTable}).FormatValidation(&buf, testReports()); err != nil {
		t.Fatalf("FormatValidation() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"Validation 2024-05-01",
		"entertainment",
		"16m40s",
		"MISMATCH",
		"+100s",
		"Duplicate Pairs",
		"#2",
		"Suspicious Sessions",
		"com.tencent.mm",
		"1h30m00s",
		"night-time long session",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestTableFormatter_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Compact: true}).FormatValidation(&buf, nil); err != nil {
		t.Fatalf("FormatValidation() error = %v", err)
	}

	if !strings.Contains(buf.String(), "No data") {
		t.Errorf("expected 'No data', got %q", buf.String())
	}
}

func TestTableFormatter_Width(t *testing.T) {
	t.Parallel()

	result := &usage.RepairResult{
		RunID: "run-1",
		Actions: []usage.RepairAction{{
			SessionID: 7,
			Package:   "com.tencent.mm",
			Date:      "2024-05-01",
			Kind:      usage.RepairTruncate,
			BeforeSec: 5400,
			AfterSec:  1800,
			Reason:    strings.Repeat("very long reason ", 10),
		}},
	}

	var buf bytes.Buffer
	if err := New(Config{Width: 80}).FormatRepair(&buf, result); err != nil {
		t.Fatalf("FormatRepair() error = %v", err)
	}

	for _, line := range strings.Split(buf.String(), "\n") {
		if len(line) > 80 {
			t.Errorf("line exceeds width (%d): %q", len(line), line)
		}
	}
	if !strings.Contains(buf.String(), "..") {
		t.Error("expected the reason to be cut")
	}
}

func TestTableFormatter_FormatMigration(t *testing.T) {
	t.Parallel()

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	result := &usage.MigrationResult{
		RunID:         "run-42",
		State:         usage.MigrationFailed,
		PerTable:      map[string]int{"raw_sessions": 3, "hourly": 2},
		TotalMigrated: 5,
		ErrorMessage:  "disk full",
		StartedAt:     started,
		FinishedAt:    started.Add(2 * time.Second),
	}

	var buf bytes.Buffer
	if err := New(Config{}).FormatMigration(&buf, result); err != nil {
		t.Fatalf("FormatMigration() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"Migration run-42", "failed", "Total Migrated", "disk full", "2s"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestJSONFormatter(t *testing.T) {
	t.Parallel()

	f := New(Config{Format: FormatJSON, Compact: true})

	var buf bytes.Buffer
	if err := f.FormatValidation(&buf, testReports()); err != nil {
		t.Fatalf("FormatValidation() error = %v", err)
	}

	var reports []usage.ValidationReport
	if err := json.Unmarshal(buf.Bytes(), &reports); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(reports) != 2 || reports[1].TimeDifferenceSeconds != 100 {
		t.Errorf("unexpected reports: %+v", reports)
	}

	buf.Reset()
	if err := f.FormatValidation(&buf, nil); err != nil {
		t.Fatalf("FormatValidation() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty reports = %q, want []", buf.String())
	}

	buf.Reset()
	ingest := &pipeline.IngestResult{Files: 1, Sessions: 2, Errors: []error{errors.New("a.jsonl: boom")}}
	if err := f.FormatIngest(&buf, ingest); err != nil {
		t.Fatalf("FormatIngest() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["sessions"] != float64(2) {
		t.Errorf("sessions = %v, want 2", decoded["sessions"])
	}
	if errs, ok := decoded["errors"].([]interface{}); !ok || errs[0] != "a.jsonl: boom" {
		t.Errorf("errors = %v", decoded["errors"])
	}

	buf.Reset()
	if err := f.FormatRun(&buf, &aggregator.RunResult{Date: "2024-05-01", Clamped: 1}); err != nil {
		t.Fatalf("FormatRun() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"clamped":1`) {
		t.Errorf("run JSON = %s", buf.String())
	}
}

func TestSimpleFormatter(t *testing.T) {
	t.Parallel()

	f := New(Config{Format: FormatSimple})

	var buf bytes.Buffer
	if err := f.FormatValidation(&buf, testReports()); err != nil {
		t.Fatalf("FormatValidation() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "diff +100s") || !strings.Contains(lines[1], "(mismatch)") {
		t.Errorf("unexpected line: %q", lines[1])
	}

	buf.Reset()
	result := &usage.MigrationResult{
		RunID:         "r1",
		State:         usage.MigrationCompleted,
		PerTable:      map[string]int{"hourly": 2, "raw_sessions": 1},
		TotalMigrated: 3,
	}
	if err := f.FormatMigration(&buf, result); err != nil {
		t.Fatalf("FormatMigration() error = %v", err)
	}
	if !strings.Contains(buf.String(), "raw_sessions=1 hourly=2") {
		t.Errorf("tables out of order: %q", buf.String())
	}

	buf.Reset()
	repair := &usage.RepairResult{RunID: "r2", Actions: []usage.RepairAction{
		{SessionID: 9, Package: "com.smile.gifmaker", Kind: usage.RepairShrink, BeforeSec: 4800, AfterSec: 2400, Reason: "short-video limit"},
	}}
	if err := f.FormatRepair(&buf, repair); err != nil {
		t.Fatalf("FormatRepair() error = %v", err)
	}
	if !strings.Contains(buf.String(), "shrink #9 com.smile.gifmaker 4800s -> 2400s") {
		t.Errorf("unexpected repair output: %q", buf.String())
	}
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input int
		want  string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-3600, "-3,600"},
	}

	for _, tt := range tests {
		if got := formatNumber(tt.input); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
