package strategy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrevert/internal/strategy"
)

func TestTiered_WinProbability(t *testing.T) {
	est := strategy.NewTiered(strategy.DefaultParams())

	tests := []struct {
		name string
		absZ float64
		band bool
		want float64
	}{
		{"below entry", 1.5, false, 0.5},
		{"below entry ignores band", 1.5, true, 0.5},
		{"entry tier", 2.0, false, 0.65},
		{"strong tier", 2.5, false, 0.65},
		{"extreme tier", 3.0, false, 0.75},
		{"extreme with band", 3.4, true, 0.80},
		{"strong with band", 2.2, true, 0.70},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, est.WinProbability(tc.absZ, tc.band), 1e-9)
		})
	}
}

func TestTiered_LowerEntryThreshold(t *testing.T) {
	p := strategy.DefaultParams()
	p.ZEntry = 1.5
	est := strategy.NewTiered(p)

	assert.InDelta(t, 0.55, est.WinProbability(1.6, false), 1e-9)
	assert.InDelta(t, 0.60, est.WinProbability(1.6, true), 1e-9)
}

type constEstimator struct{}

func (constEstimator) Name() string { return "const" }
func (constEstimator) WinProbability(float64, bool) float64 { return 0.9 }

func TestRegistry(t *testing.T) {
	r := strategy.NewRegistry(strategy.DefaultParams())

	est, ok := r.Get(strategy.DefaultParams().Estimator)
	require.True(t, ok)
	assert.Equal(t, "tiered", est.Name())

	_, ok = r.Get("const")
	assert.False(t, ok)

	r.Register(constEstimator{})
	est, ok = r.Get("const")
	require.True(t, ok)
	assert.Equal(t, 0.9, est.WinProbability(0, false))
}
