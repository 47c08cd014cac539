package residency

// policy implements the Policy interface with set lookups.
type policy struct {
	levels      map[string]Level
	limits      map[Level]Limits
	selfPackage string
	selfMin     int
}

// New creates a policy from cfg. A package listed as both HIGH and MEDIUM
// is HIGH.
func New(cfg Config) Policy {
	p := &policy{
		levels: make(map[string]Level, len(cfg.High)+len(cfg.Medium)),
		limits: map[Level]Limits{
			LevelHigh:   withDefaults(cfg.HighLimits, DefaultHighLimits),
			LevelMedium: withDefaults(cfg.MediumLimits, DefaultMediumLimits),
			LevelLow:    withDefaults(cfg.LowLimits, DefaultLowLimits),
		},
		selfPackage: cfg.SelfPackage,
		selfMin:     cfg.SelfMinValidSec,
	}

	for _, pkg := range cfg.Medium {
		p.levels[pkg] = LevelMedium
	}
	for _, pkg := range cfg.High {
		p.levels[pkg] = LevelHigh
	}

	return p
}

// FilterLevel implements Policy.FilterLevel.
func (p *policy) FilterLevel(pkg string) Level {
	if level, ok := p.levels[pkg]; ok {
		return level
	}
	return LevelLow
}

// MinValidDurationSec implements Policy.MinValidDurationSec.
func (p *policy) MinValidDurationSec(pkg string) int {
	if pkg != "" && pkg == p.selfPackage && p.selfMin > 0 {
		return p.selfMin
	}
	return p.limits[p.FilterLevel(pkg)].MinValidSec
}

// MaxContinuousSec implements Policy.MaxContinuousSec.
func (p *policy) MaxContinuousSec(pkg string) int {
	return p.limits[p.FilterLevel(pkg)].MaxContinuousSec
}

// Limits implements Policy.Limits.
func (p *policy) Limits(level Level) Limits {
	if l, ok := p.limits[level]; ok {
		return l
	}
	return p.limits[LevelLow]
}

func withDefaults(l, def Limits) Limits {
	if l.MinValidSec == 0 {
		l.MinValidSec = def.MinValidSec
	}
	if l.MaxContinuousSec == 0 {
		l.MaxContinuousSec = def.MaxContinuousSec
	}
	return l
}
