// Package usage defines the usage-ledger data model.
//
// RawUsageSession and TimerSession are the only entities with an external
// origin. Hourly buckets, daily summaries and period summaries are derived
// and can only be built through constructors that enforce their invariants:
//
//	bucket, clamped := usage.NewHourlyUsageBucket("2024-05-01", 3, 14, false, 4200)
//	// bucket.DurationSec == 3600, clamped == true
//
//	daily, err := usage.NewDailySummary("2024-05-01", 3, buckets)
//	// daily.TotalSec == sum of buckets
package usage

import "time"

const (
	// DateLayout is the YYYY-MM-DD layout used for every date field and key.
	DateLayout = "2006-01-02"

	// HourCapSec is the maximum usage one hourly bucket may record.
	HourCapSec = 3600
)

// RawUsageSession is one continuous foreground interval of one package.
//
// Invariants (enforced by NewRawUsageSession):
//   - EndTimeMillis > StartTimeMillis
//   - DurationSec == round((EndTimeMillis-StartTimeMillis)/1000) >= 0
//   - Date is the local date of StartTimeMillis
//   - EndDate is the local date of the session's last millisecond when it
//     differs from Date, empty otherwise
type RawUsageSession struct {
	ID              int64  `json:"id"`
	PackageName     string `json:"package_name"`
	CategoryID      int    `json:"category_id"`
	StartTimeMillis int64  `json:"start_time_millis"`
	EndTimeMillis   int64  `json:"end_time_millis"`
	DurationSec     int    `json:"duration_sec"`
	Date            string `json:"date"`
	EndDate         string `json:"end_date,omitempty"`

	// Offline marks sessions from virtual offline-activity packages.
	Offline bool `json:"offline,omitempty"`
}

// TimerSession is a user-started offline activity timer used for goal
// tracking. It carries a category id and is aggregated as offline usage.
type TimerSession struct {
	ID              int64  `json:"id"`
	CategoryID      int    `json:"category_id"`
	StartTimeMillis int64  `json:"start_time_millis"`
	EndTimeMillis   int64  `json:"end_time_millis"`
	DurationSec     int    `json:"duration_sec"`
	Date            string `json:"date"`
}

// Category is a static reference entity. Ids may be renumbered across
// releases; the migration engine corrects stale ids in stored rows.
type Category struct {
	ID           int    `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	DisplayOrder int    `json:"display_order" yaml:"display_order"`
}

// HourlyUsageBucket holds usage of one category within one hour.
// Invariant: 0 <= DurationSec <= HourCapSec.
type HourlyUsageBucket struct {
	Date        string `json:"date"`
	CategoryID  int    `json:"category_id"`
	Hour        int    `json:"hour"`
	IsOffline   bool   `json:"is_offline"`
	DurationSec int    `json:"duration_sec"`
}

// DailySummary is the rollup of a day's hourly buckets for one category.
// Invariant: TotalSec equals the sum of the matching buckets.
type DailySummary struct {
	Date       string `json:"date"`
	CategoryID int    `json:"category_id"`
	TotalSec   int    `json:"total_sec"`
}

// Period identifies a rollup granularity above one day.
type Period string

const (
	// PeriodWeek rolls up Monday..Sunday.
	PeriodWeek Period = "week"

	// PeriodMonth rolls up a calendar month.
	PeriodMonth Period = "month"
)

// PeriodSummary is a weekly or monthly rollup keyed by (PeriodStart, CategoryID).
type PeriodSummary struct {
	Period      Period `json:"period"`
	PeriodStart string `json:"period_start"`
	CategoryID  int    `json:"category_id"`
	TotalSec    int    `json:"total_sec"`
}

// ReasonKind classifies why a session was flagged as suspicious.
type ReasonKind string

const (
	// ReasonNightLong is a long session starting at night (likely screen-off).
	ReasonNightLong ReasonKind = "night_long"

	// ReasonExtremeDuration is a session longer than the extreme limit.
	ReasonExtremeDuration ReasonKind = "extreme_duration"

	// ReasonPackageOverride is a package-specific limit violation.
	ReasonPackageOverride ReasonKind = "package_override"
)

// Reason is one cause attached to a suspicious session.
type Reason struct {
	Kind    ReasonKind `json:"kind"`
	Message string     `json:"message"`

	// LimitSec is the threshold the session exceeded.
	LimitSec int `json:"limit_sec"`
}

// SuspiciousSession is a raw session flagged as likely background usage.
type SuspiciousSession struct {
	Session RawUsageSession `json:"session"`
	Reasons []Reason        `json:"reasons"`

	// Level is the residency level the session was judged against.
	Level string `json:"level"`
}

// HasReason reports whether a reason of kind k is attached.
func (s SuspiciousSession) HasReason(k ReasonKind) bool {
	for _, r := range s.Reasons {
		if r.Kind == k {
			return true
		}
	}
	return false
}

// ReasonText concatenates all reason messages in detection order.
func (s SuspiciousSession) ReasonText() string {
	text := ""
	for i, r := range s.Reasons {
		if i > 0 {
			text += "; "
		}
		text += r.Message
	}
	return text
}

// DuplicatePair is two sessions of one package whose ranges overlap.
type DuplicatePair struct {
	Package        string          `json:"package"`
	Date           string          `json:"date"`
	First          RawUsageSession `json:"first"`
	Second         RawUsageSession `json:"second"`
	OverlapSeconds int             `json:"overlap_seconds"`
}

// ValidationReport compares stored and recomputed totals for one category
// and date. It is a diagnostic artifact and is never persisted.
type ValidationReport struct {
	Date                  string              `json:"date"`
	CategoryID            int                 `json:"category_id"`
	CategoryName          string              `json:"category_name"`
	PieChartTotal         int                 `json:"pie_chart_total"`
	DetailTotal           int                 `json:"detail_total"`
	DuplicateSessions     []DuplicatePair     `json:"duplicate_sessions"`
	SuspiciousSessions    []SuspiciousSession `json:"suspicious_sessions"`
	IsConsistent          bool                `json:"is_consistent"`
	TimeDifferenceSeconds int                 `json:"time_difference_seconds"`
}

// MigrationState is the lifecycle of one migration run.
type MigrationState string

const (
	MigrationNotStarted MigrationState = "not_started"
	MigrationScanning   MigrationState = "scanning"
	MigrationMigrating  MigrationState = "migrating"
	MigrationCompleted  MigrationState = "completed"
	MigrationFailed     MigrationState = "failed"
)

// MigrationResult is the audit record of one migration run.
type MigrationResult struct {
	RunID         string         `json:"run_id"`
	State         MigrationState `json:"state"`
	Success       bool           `json:"success"`
	PerTable      map[string]int `json:"per_table"`
	TotalMigrated int            `json:"total_migrated"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
}

// RepairKind is the action taken on one flagged session.
type RepairKind string

const (
	RepairDelete   RepairKind = "delete"
	RepairTruncate RepairKind = "truncate"
	RepairShrink   RepairKind = "shrink"
)

// RepairAction records one mutation with before/after duration for audit.
type RepairAction struct {
	SessionID int64      `json:"session_id"`
	Package   string     `json:"package"`
	Date      string     `json:"date"`
	Kind      RepairKind `json:"kind"`
	BeforeSec int        `json:"before_sec"`
	AfterSec  int        `json:"after_sec"`
	Reason    string     `json:"reason"`
}

// RepairResult is the audit record of one repair run.
type RepairResult struct {
	RunID             string         `json:"run_id"`
	Actions           []RepairAction `json:"actions"`
	DatesReaggregated []string       `json:"dates_reaggregated"`
}
