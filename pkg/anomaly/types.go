// Package anomaly detects background-inflated usage and adjusts durations.
//
// It has three independent parts:
//
//   - a duration adjuster driven by per-level Curves,
//   - a suspicious-session detector (night-time long sessions, extreme
//     durations, package-specific limits), and
//   - a duplicate detector for overlapping sessions of one package.
//
// The hour cap is enforced by usage.NewHourlyUsageBucket, not here.
package anomaly

import (
	"time"

	"github.com/0xmhha/usage-ledger/pkg/residency"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// Band scales sessions up to LimitSec by Multiplier.
type Band struct {
	LimitSec   int     `yaml:"limit_sec"`
	Multiplier float64 `yaml:"multiplier"`
}

// Curve is an ordered list of bands evaluated first-match-in-order.
// Sessions longer than every band become ClampSec * ClampMultiplier.
// An empty curve leaves durations unchanged.
type Curve struct {
	Bands           []Band  `yaml:"bands"`
	ClampSec        int     `yaml:"clamp_sec"`
	ClampMultiplier float64 `yaml:"clamp_multiplier"`
}

// Override is a package-specific duration limit.
type Override struct {
	// Package is the exact package name.
	Package string `yaml:"package"`

	// LimitSec flags sessions longer than this.
	LimitSec int `yaml:"limit_sec"`

	// Label names the limit in reasons, e.g. "short-video".
	Label string `yaml:"label"`
}

// Config contains detector configuration.
type Config struct {
	// ExtremeDurationSec flags any session longer than this.
	// Default: 7200.
	ExtremeDurationSec int `yaml:"extreme_duration_sec"`

	// NightHours are local start hours treated as night.
	// Default: 0-5 and 23.
	NightHours []int `yaml:"night_hours"`

	// OverlapThresholdSec is the overlap above which two sessions of a
	// package are duplicates.
	// Default: 30.
	OverlapThresholdSec int `yaml:"overlap_threshold_sec"`

	// Overrides are package-specific limits.
	Overrides []Override `yaml:"overrides"`

	// Curves replaces the built-in adjustment curve of a level.
	Curves map[residency.Level]Curve `yaml:"curves,omitempty"`

	// Location is the time zone used for night-hour checks.
	// Default: time.Local.
	Location *time.Location `yaml:"-"`
}

// Adjusted is a kept session with its adjusted duration.
type Adjusted struct {
	Session     usage.RawUsageSession
	Level       residency.Level
	AdjustedSec int
}

// ExclusionFilter reports whether a package must be dropped.
type ExclusionFilter func(pkg string) bool

// Detector adjusts durations and flags anomalies.
type Detector interface {
	// Adjust returns the adjusted duration of s at level.
	Adjust(s usage.RawUsageSession, level residency.Level) int

	// Prepare drops excluded and below-minimum sessions and adjusts the rest.
	// Input order is kept.
	Prepare(sessions []usage.RawUsageSession, excluded ExclusionFilter) []Adjusted

	// Suspicious evaluates every check against s and accumulates reasons.
	Suspicious(s usage.RawUsageSession) (usage.SuspiciousSession, bool)

	// DetectSuspicious returns the flagged sessions in input order.
	DetectSuspicious(sessions []usage.RawUsageSession) []usage.SuspiciousSession

	// DetectDuplicates returns overlapping adjacent pairs per (package, date).
	DetectDuplicates(sessions []usage.RawUsageSession) []usage.DuplicatePair
}
