package strategy

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// cointegratedPair builds two series sharing a long-run relationship with a
// small mean-reverting residual, then stretches the final residual so the
// spread's latest observation is several deviations rich.
func cointegratedPair(n int) (own, peer []float64) {
	peer = make([]float64, n)
	own = make([]float64, n)
	for i := 0; i < n; i++ {
		peer[i] = 0.5 + 0.1*math.Sin(float64(i)*0.35)
		resid := 0.01 * (1 + 0.1*math.Sin(float64(i)))
		if i%2 == 1 {
			resid = -resid
		}
		own[i] = peer[i] + resid
	}
	own[n-1] = peer[n-1] + 0.06
	return own, peer
}

func statArbContext(own []float64, related map[string][]float64) MarketContext {
	return MarketContext{
		Market:   domain.MarketSnapshot{ID: "MKT-A", EventTicker: "EVT"},
		History:  own,
		Related:  related,
		Settings: domain.Settings{ArbitrageThreshold: 2.0},
	}
}

func TestStatArbShortsRichLeg(t *testing.T) {
	src := NewStatArb(discardLogger())
	own, peer := cointegratedPair(60)

	sig, ok, err := src.Evaluate(context.Background(),
		statArbContext(own, map[string][]float64{"MKT-B": peer}))
	require.NoError(t, err)
	require.True(t, ok)

	// The last spread observation is far above its mean, so this market is
	// rich relative to the peer.
	assert.Equal(t, domain.DirectionShort, sig.Direction)
	assert.Equal(t, "stat_arb", sig.Source)
	assert.Negative(t, sig.Strength)
	assert.Greater(t, sig.Confidence, 0.9)
}

func TestStatArbInsufficientHistoryAbstains(t *testing.T) {
	src := NewStatArb(discardLogger())
	own, peer := cointegratedPair(30)

	_, ok, err := src.Evaluate(context.Background(),
		statArbContext(own, map[string][]float64{"MKT-B": peer}))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatArbNoRelatedMarketsAbstains(t *testing.T) {
	src := NewStatArb(discardLogger())
	own, _ := cointegratedPair(60)

	_, ok, err := src.Evaluate(context.Background(), statArbContext(own, nil))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatArbNonCointegratedPairAbstains(t *testing.T) {
	src := NewStatArb(discardLogger())

	// Two drifting series with no stable relationship: the residual of the
	// long-run fit trends instead of reverting.
	own := make([]float64, 60)
	peer := make([]float64, 60)
	for i := range own {
		own[i] = 0.3 + float64(i)*0.005
		peer[i] = 0.7 - float64(i)*0.003
	}

	_, ok, err := src.Evaluate(context.Background(),
		statArbContext(own, map[string][]float64{"MKT-B": peer}))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOLSFitRecoversLine(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{3, 5, 7, 9, 11} // y = 1 + 2x

	alpha, beta, ok := olsFit(x, y)
	require.True(t, ok)
	assert.InDelta(t, 1.0, alpha, 1e-9)
	assert.InDelta(t, 2.0, beta, 1e-9)

	_, _, ok = olsFit([]float64{2, 2, 2}, []float64{1, 2, 3})
	assert.False(t, ok)
}

func TestSpreadZScoreFlatSeries(t *testing.T) {
	flat := []float64{0.5, 0.5, 0.5, 0.5}
	moving := []float64{0.4, 0.5, 0.6, 0.5}

	_, ok := spreadZScore(flat, moving)
	assert.False(t, ok)
}

func TestMeanStd(t *testing.T) {
	mean, std := meanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.InDelta(t, 2.0, std, 1e-9)
}
