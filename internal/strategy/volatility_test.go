package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// alternating builds a price series oscillating around base with the given
// amplitude schedule, one amplitude per point.
func alternating(base float64, amps []float64) []float64 {
	out := make([]float64, len(amps))
	for i, amp := range amps {
		if i%2 == 1 {
			amp = -amp
		}
		out[i] = base + amp
	}
	return out
}

func amps(n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp
	}
	return out
}

func volContext(history []float64, window int) MarketContext {
	return MarketContext{
		Market:   domain.MarketSnapshot{ID: "MKT-A"},
		History:  history,
		Settings: domain.Settings{VolatilityWindow: window},
	}
}

func TestVolatilityRegimeClassification(t *testing.T) {
	v := NewVolatility(discardLogger())

	// Quiet for 30 points, violent for the last 10: the current window sits
	// at the top of the trailing vol distribution.
	high := alternating(0.5, append(amps(30, 0.002), amps(10, 0.03)...))
	assert.Equal(t, domain.RegimeHigh, v.Regime(high, 10))

	// Violent first, quiet last: bottom of the distribution.
	low := alternating(0.5, append(amps(30, 0.03), amps(10, 0.002)...))
	assert.Equal(t, domain.RegimeLow, v.Regime(low, 10))

	// Not enough history for three windows.
	assert.Equal(t, domain.RegimeUnknown, v.Regime(high[:25], 10))
}

func TestVolatilityFadesHighRegimeBreakdown(t *testing.T) {
	v := NewVolatility(discardLogger())

	// High regime, and the price fell more than the trend threshold over
	// the last window: fade the move by going long.
	hist := alternating(0.5, append(amps(30, 0.002), amps(10, 0.03)...))

	sig, ok, err := v.Evaluate(context.Background(), volContext(hist, 10))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "volatility", sig.Source)
	assert.Equal(t, domain.DirectionLong, sig.Direction)
	assert.Positive(t, sig.Strength)
	assert.InDelta(t, 0.8, sig.Confidence, 1e-9)
}

func TestVolatilityHighRegimeSidewaysAbstains(t *testing.T) {
	v := NewVolatility(discardLogger())

	// The violent block starts one point before the trend reference so the
	// reference and the last price land on the same phase: no net move.
	hist := alternating(0.5, append(amps(28, 0.002), amps(12, 0.08)...))

	_, ok, err := v.Evaluate(context.Background(), volContext(hist, 10))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVolatilityInsufficientHistoryAbstains(t *testing.T) {
	v := NewVolatility(discardLogger())

	hist := alternating(0.5, amps(20, 0.01))
	_, ok, err := v.Evaluate(context.Background(), volContext(hist, 10))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVolatilityFlatHistoryAbstains(t *testing.T) {
	v := NewVolatility(discardLogger())

	hist := alternating(0.5, amps(40, 0))
	_, ok, err := v.Evaluate(context.Background(), volContext(hist, 10))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDetectTrend(t *testing.T) {
	up := make([]float64, 12)
	down := make([]float64, 12)
	flat := make([]float64, 12)
	for i := range up {
		up[i] = 0.40 + float64(i)*0.01
		down[i] = 0.60 - float64(i)*0.01
		flat[i] = 0.50
	}

	assert.Equal(t, trendUp, detectTrend(up, 10))
	assert.Equal(t, trendDown, detectTrend(down, 10))
	assert.Equal(t, trendSideways, detectTrend(flat, 10))
	assert.Equal(t, trendSideways, detectTrend(up[:5], 10))
}
