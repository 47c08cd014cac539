package anomaly

import (
	"math"

	"github.com/0xmhha/usage-ledger/pkg/residency"
)

// Apply returns sec scaled by the first band whose limit it does not exceed.
func (c Curve) Apply(sec int) int {
	if len(c.Bands) == 0 || sec <= 0 {
		return sec
	}

	for _, b := range c.Bands {
		if sec <= b.LimitSec {
			return round(float64(sec) * b.Multiplier)
		}
	}

	return round(float64(c.ClampSec) * c.ClampMultiplier)
}

// DefaultCurve returns the built-in curve for level. Band limits after the
// first are a third, two thirds and all of the level's max continuous time.
func DefaultCurve(level residency.Level, limits residency.Limits) Curve {
	maxSec := limits.MaxContinuousSec

	switch level {
	case residency.LevelHigh:
		return Curve{
			Bands: []Band{
				{LimitSec: 60, Multiplier: 1.0},
				{LimitSec: maxSec / 3, Multiplier: 0.9},
				{LimitSec: maxSec * 2 / 3, Multiplier: 0.7},
				{LimitSec: maxSec, Multiplier: 0.5},
			},
			ClampSec:        maxSec,
			ClampMultiplier: 0.5,
		}
	case residency.LevelMedium:
		return Curve{
			Bands: []Band{
				{LimitSec: 300, Multiplier: 1.0},
				{LimitSec: maxSec / 3, Multiplier: 0.9},
				{LimitSec: maxSec * 2 / 3, Multiplier: 0.8},
				{LimitSec: maxSec, Multiplier: 0.7},
			},
			ClampSec:        maxSec,
			ClampMultiplier: 0.7,
		}
	default:
		return Curve{}
	}
}

// round rounds half away from zero.
func round(v float64) int {
	return int(math.Round(v))
}
