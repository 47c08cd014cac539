package residency

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/0xmhha/usage-ledger/pkg/rules"
)

func TestDefaultPolicy(t *testing.T) {
	p := New(DefaultConfig())

	tests := []struct {
		pkg       string
		wantLevel Level
		wantMin   int
		wantMax   int
	}{
		{pkg: "com.tencent.mm", wantLevel: LevelHigh, wantMin: 10, wantMax: 1800},
		{pkg: "com.whatsapp", wantLevel: LevelMedium, wantMin: 5, wantMax: 3600},
		{pkg: "com.duolingo", wantLevel: LevelLow, wantMin: 2, wantMax: 10800},
		{pkg: rules.SelfPackage, wantLevel: LevelLow, wantMin: 1, wantMax: 10800},
	}

	for _, tt := range tests {
		t.Run(tt.pkg, func(t *testing.T) {
			assert.Equal(t, tt.wantLevel, p.FilterLevel(tt.pkg))
			assert.Equal(t, tt.wantMin, p.MinValidDurationSec(tt.pkg))
			assert.Equal(t, tt.wantMax, p.MaxContinuousSec(tt.pkg))
		})
	}
}

func TestNew_HighWinsOverMedium(t *testing.T) {
	p := New(Config{
		High:   []string{"com.example.both"},
		Medium: []string{"com.example.both", "com.example.medium"},
	})

	assert.Equal(t, LevelHigh, p.FilterLevel("com.example.both"))
	assert.Equal(t, LevelMedium, p.FilterLevel("com.example.medium"))
}

func TestNew_LimitOverrides(t *testing.T) {
	p := New(Config{
		High:       []string{"com.example.chat"},
		HighLimits: Limits{MaxContinuousSec: 900},
	})

	assert.Equal(t, 900, p.MaxContinuousSec("com.example.chat"))
	assert.Equal(t, 10, p.MinValidDurationSec("com.example.chat"))
	assert.Equal(t, DefaultLowLimits, p.Limits(LevelLow))
	assert.Equal(t, DefaultLowLimits, p.Limits(Level("bogus")))
}

func TestMinValidDurationSec_NoSelfPackage(t *testing.T) {
	p := New(Config{})

	assert.Equal(t, 2, p.MinValidDurationSec(""))
	assert.Equal(t, 2, p.MinValidDurationSec(rules.SelfPackage))
}
