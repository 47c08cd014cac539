package anomaly

import (
	"fmt"
	"sort"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/residency"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

const (
	defaultExtremeDurationSec  = 7200
	defaultOverlapThresholdSec = 30
)

// DefaultNightHours are the local start hours treated as night.
var DefaultNightHours = []int{23, 0, 1, 2, 3, 4, 5}

// DefaultOverrides are the built-in package-specific limits.
func DefaultOverrides() []Override {
	return []Override{
		{Package: "com.ss.android.ugc.aweme", LimitSec: 3600, Label: "short-video"},
		{Package: "com.smile.gifmaker", LimitSec: 3600, Label: "short-video"},
		{Package: "com.tencent.mm", LimitSec: 1800, Label: "chat"},
	}
}

// DefaultConfig returns the built-in detector configuration.
func DefaultConfig() Config {
	return Config{
		ExtremeDurationSec:  defaultExtremeDurationSec,
		NightHours:          append([]int(nil), DefaultNightHours...),
		OverlapThresholdSec: defaultOverlapThresholdSec,
		Overrides:           DefaultOverrides(),
	}
}

// detector implements the Detector interface.
type detector struct {
	policy    residency.Policy
	curves    map[residency.Level]Curve
	night     map[int]bool
	overrides map[string]Override
	extreme   int
	overlap   int
	loc       *time.Location
	logger    logger.Logger
}

// New creates a detector. Zero config fields take their defaults.
func New(cfg Config, policy residency.Policy, log logger.Logger) Detector {
	if cfg.ExtremeDurationSec == 0 {
		cfg.ExtremeDurationSec = defaultExtremeDurationSec
	}
	if cfg.OverlapThresholdSec == 0 {
		cfg.OverlapThresholdSec = defaultOverlapThresholdSec
	}
	if cfg.NightHours == nil {
		cfg.NightHours = DefaultNightHours
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	d := &detector{
		policy:    policy,
		curves:    make(map[residency.Level]Curve, 3),
		night:     make(map[int]bool, len(cfg.NightHours)),
		overrides: make(map[string]Override, len(cfg.Overrides)),
		extreme:   cfg.ExtremeDurationSec,
		overlap:   cfg.OverlapThresholdSec,
		loc:       cfg.Location,
		logger:    log.Named("anomaly"),
	}

	for _, level := range []residency.Level{residency.LevelHigh, residency.LevelMedium, residency.LevelLow} {
		if c, ok := cfg.Curves[level]; ok {
			d.curves[level] = c
			continue
		}
		d.curves[level] = DefaultCurve(level, policy.Limits(level))
	}
	for _, h := range cfg.NightHours {
		d.night[h] = true
	}
	for _, o := range cfg.Overrides {
		d.overrides[o.Package] = o
	}

	return d
}

// Adjust implements Detector.Adjust.
func (d *detector) Adjust(s usage.RawUsageSession, level residency.Level) int {
	return d.curves[level].Apply(s.DurationSec)
}

// Prepare implements Detector.Prepare.
func (d *detector) Prepare(sessions []usage.RawUsageSession, excluded ExclusionFilter) []Adjusted {
	out := make([]Adjusted, 0, len(sessions))

	for _, s := range sessions {
		if excluded != nil && excluded(s.PackageName) {
			continue
		}
		if s.DurationSec < d.policy.MinValidDurationSec(s.PackageName) {
			continue
		}

		level := d.policy.FilterLevel(s.PackageName)
		out = append(out, Adjusted{
			Session:     s,
			Level:       level,
			AdjustedSec: d.Adjust(s, level),
		})
	}

	return out
}

// Suspicious implements Detector.Suspicious.
func (d *detector) Suspicious(s usage.RawUsageSession) (usage.SuspiciousSession, bool) {
	level := d.policy.FilterLevel(s.PackageName)
	flagged := usage.SuspiciousSession{Session: s, Level: string(level)}

	maxSec := d.policy.MaxContinuousSec(s.PackageName)
	hour := time.UnixMilli(s.StartTimeMillis).In(d.loc).Hour()
	if d.night[hour] && s.DurationSec > maxSec {
		flagged.Reasons = append(flagged.Reasons, usage.Reason{
			Kind:     usage.ReasonNightLong,
			Message:  fmt.Sprintf("night-time session of %ds started at %02d:00 exceeds %ds", s.DurationSec, hour, maxSec),
			LimitSec: maxSec,
		})
	}

	if s.DurationSec > d.extreme {
		flagged.Reasons = append(flagged.Reasons, usage.Reason{
			Kind:     usage.ReasonExtremeDuration,
			Message:  fmt.Sprintf("duration %ds exceeds extreme limit %ds", s.DurationSec, d.extreme),
			LimitSec: d.extreme,
		})
	}

	if o, ok := d.overrides[s.PackageName]; ok && s.DurationSec > o.LimitSec {
		flagged.Reasons = append(flagged.Reasons, usage.Reason{
			Kind:     usage.ReasonPackageOverride,
			Message:  fmt.Sprintf("%s session of %ds exceeds %ds", o.Label, s.DurationSec, o.LimitSec),
			LimitSec: o.LimitSec,
		})
	}

	return flagged, len(flagged.Reasons) > 0
}

// DetectSuspicious implements Detector.DetectSuspicious.
func (d *detector) DetectSuspicious(sessions []usage.RawUsageSession) []usage.SuspiciousSession {
	var out []usage.SuspiciousSession
	for _, s := range sessions {
		if flagged, ok := d.Suspicious(s); ok {
			out = append(out, flagged)
		}
	}

	if len(out) > 0 {
		d.logger.Debug("suspicious sessions detected", "count", len(out))
	}

	return out
}

// DetectDuplicates implements Detector.DetectDuplicates.
func (d *detector) DetectDuplicates(sessions []usage.RawUsageSession) []usage.DuplicatePair {
	type groupKey struct {
		pkg  string
		date string
	}

	groups := make(map[groupKey][]usage.RawUsageSession)
	keys := make([]groupKey, 0)
	for _, s := range sessions {
		k := groupKey{pkg: s.PackageName, date: s.Date}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], s)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].pkg < keys[j].pkg
	})

	var pairs []usage.DuplicatePair
	for _, k := range keys {
		group := groups[k]
		sort.Slice(group, func(i, j int) bool {
			if group[i].StartTimeMillis != group[j].StartTimeMillis {
				return group[i].StartTimeMillis < group[j].StartTimeMillis
			}
			return group[i].ID < group[j].ID
		})

		for i := 0; i+1 < len(group); i++ {
			a, b := group[i], group[i+1]
			overlap := overlapMillis(a, b)
			if overlap <= int64(d.overlap)*1000 {
				continue
			}
			pairs = append(pairs, usage.DuplicatePair{
				Package:        k.pkg,
				Date:           k.date,
				First:          a,
				Second:         b,
				OverlapSeconds: int(overlap / 1000),
			})
		}
	}

	if len(pairs) > 0 {
		d.logger.Debug("duplicate sessions detected", "pairs", len(pairs))
	}

	return pairs
}

// overlapMillis returns min(end) - max(start), or 0 when the ranges are
// disjoint.
func overlapMillis(a, b usage.RawUsageSession) int64 {
	start := a.StartTimeMillis
	if b.StartTimeMillis > start {
		start = b.StartTimeMillis
	}
	end := a.EndTimeMillis
	if b.EndTimeMillis < end {
		end = b.EndTimeMillis
	}
	if end <= start {
		return 0
	}
	return end - start
}
