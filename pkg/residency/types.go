// Package residency implements the background-residency policy: how likely a
// package is to report foreground time while actually running in the
// background, and the duration limits that follow from it.
package residency

// Level is a background-residency filter level.
type Level string

const (
	// LevelLow is the default for ordinary apps.
	LevelLow Level = "LOW"

	// LevelMedium covers known background-resident apps (messaging, banking,
	// maps, cloud sync).
	LevelMedium Level = "MEDIUM"

	// LevelHigh covers apps with very frequent background wake (chat,
	// payment, push-heavy).
	LevelHigh Level = "HIGH"
)

// Limits are the duration limits of one level.
type Limits struct {
	// MinValidSec is the shortest session kept; shorter ones are noise.
	MinValidSec int `yaml:"min_valid_sec"`

	// MaxContinuousSec is the longest plausible continuous session.
	MaxContinuousSec int `yaml:"max_continuous_sec"`
}

// Policy answers per-package residency questions.
type Policy interface {
	// FilterLevel returns the residency level of pkg.
	FilterLevel(pkg string) Level

	// MinValidDurationSec returns the minimum kept session length for pkg.
	MinValidDurationSec(pkg string) int

	// MaxContinuousSec returns the maximum plausible session length for pkg.
	MaxContinuousSec(pkg string) int

	// Limits returns the limits of level.
	Limits(level Level) Limits
}

// Config contains policy configuration.
type Config struct {
	// High lists HIGH-level packages.
	High []string `yaml:"high"`

	// Medium lists MEDIUM-level packages.
	Medium []string `yaml:"medium"`

	// SelfPackage is the tracking app itself; it gets SelfMinValidSec.
	SelfPackage string `yaml:"self_package"`

	// SelfMinValidSec is the minimum valid duration of SelfPackage.
	SelfMinValidSec int `yaml:"self_min_valid_sec"`

	// HighLimits, MediumLimits and LowLimits override the built-in limits
	// when non-zero.
	HighLimits   Limits `yaml:"high_limits"`
	MediumLimits Limits `yaml:"medium_limits"`
	LowLimits    Limits `yaml:"low_limits"`
}
