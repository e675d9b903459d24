package risk

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

func testSettings() domain.Settings {
	return domain.Settings{
		Risk: domain.RiskParameters{
			Bankroll:           1000,
			KellyScalingFactor: 0.5,
			MaxPositionPct:     0.10,
			MaxDailyLossPct:    0.05,
			MaxOpenPositions:   5,
			CorrelationLimit:   0.20,
			StopLossPct:        0.05,
		},
		MinQuantity:   1,
		TradeInterval: time.Minute,
	}
}

func testManager() *Manager {
	return NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func strongCandidate() domain.TradeCandidate {
	return domain.TradeCandidate{
		MarketID:   "MKT-1",
		Direction:  domain.DirectionLong,
		Strength:   0.9,
		Confidence: 0.9,
	}
}

func snapshot(yes float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		ID:          "MKT-1",
		EventTicker: "EVT-A",
		YesPrice:    yes,
		NoPrice:     1 - yes,
	}
}

func TestWinProbability(t *testing.T) {
	assert.InDelta(t, 0.5, WinProbability(0, 0), 1e-9)
	assert.InDelta(t, 0.95, WinProbability(1, 1), 1e-9)
	assert.InDelta(t, 0.5+0.45*0.5*0.8, WinProbability(-0.5, 0.8), 1e-9)

	// Always strictly inside (0, 1).
	assert.LessOrEqual(t, WinProbability(1, 1), 0.99)
	assert.GreaterOrEqual(t, WinProbability(0, 0), 0.01)
}

func TestKellyFraction(t *testing.T) {
	// Classic case: p=0.6 at even odds bets 20%.
	assert.InDelta(t, 0.2, KellyFraction(0.6, 1), 1e-9)

	// Degenerate probabilities yield 0.
	assert.Zero(t, KellyFraction(0, 1))
	assert.Zero(t, KellyFraction(1, 1))
	assert.Zero(t, KellyFraction(-0.1, 1))
	assert.Zero(t, KellyFraction(1.1, 1))

	// Negative edge yields 0, never a short Kelly bet.
	assert.Zero(t, KellyFraction(0.4, 1))
	assert.Zero(t, KellyFraction(0.6, 0))
}

func TestPayoffRatio(t *testing.T) {
	assert.InDelta(t, 1.0, PayoffRatio(0.5), 1e-9)
	assert.InDelta(t, 3.0, PayoffRatio(0.25), 1e-9)
	assert.Zero(t, PayoffRatio(0))
	assert.Zero(t, PayoffRatio(1))
	assert.Zero(t, PayoffRatio(1.2))
}

func TestSizeAndAdmitExecutes(t *testing.T) {
	m := testManager()

	dec := m.SizeAndAdmit(strongCandidate(), snapshot(0.40), testSettings(), domain.PortfolioState{})
	require.True(t, dec.Execute)
	assert.Empty(t, dec.Reason)

	// p = 0.5 + 0.45*0.9*0.9 = 0.8645, b = 1.5, f = (0.8645*1.5 - 0.1355)/1.5
	// Conservative size is capped by max_position_pct: 0.10 * 1000 = 100,
	// so quantity = floor(100 / 0.40) = 250.
	assert.Equal(t, int64(250), dec.Quantity)
}

func TestSizeAndAdmitMaxPositions(t *testing.T) {
	m := testManager()
	state := domain.PortfolioState{OpenPositionsCount: 5}

	dec := m.SizeAndAdmit(strongCandidate(), snapshot(0.40), testSettings(), state)
	require.False(t, dec.Execute)
	assert.Equal(t, domain.RejectMaxPositions, dec.Reason)
}

func TestSizeAndAdmitDailyLossBreaker(t *testing.T) {
	m := testManager()
	state := domain.PortfolioState{DailyLossTripped: true}

	dec := m.SizeAndAdmit(strongCandidate(), snapshot(0.40), testSettings(), state)
	require.False(t, dec.Execute)
	assert.Equal(t, domain.RejectDailyLossBreaker, dec.Reason)
}

func TestSizeAndAdmitCorrelationLimit(t *testing.T) {
	m := testManager()

	// Group cap is 0.20 * 1000 = 200; group is already at the cap.
	state := domain.PortfolioState{
		ExposureByGroup: map[string]float64{"EVT-A": 200},
	}
	dec := m.SizeAndAdmit(strongCandidate(), snapshot(0.40), testSettings(), state)
	require.False(t, dec.Execute)
	assert.Equal(t, domain.RejectCorrelationLimit, dec.Reason)

	// A different event group is unaffected.
	snap := snapshot(0.40)
	snap.EventTicker = "EVT-B"
	dec = m.SizeAndAdmit(strongCandidate(), snap, testSettings(), state)
	assert.True(t, dec.Execute)
}

func TestSizeAndAdmitClampsToGroupCapacity(t *testing.T) {
	m := testManager()

	// 150 of the 200 group cap is used, so only 50 remains:
	// quantity = floor(50 / 0.40) = 125 instead of the unclamped 250.
	state := domain.PortfolioState{
		ExposureByGroup: map[string]float64{"EVT-A": 150},
	}
	dec := m.SizeAndAdmit(strongCandidate(), snapshot(0.40), testSettings(), state)
	require.True(t, dec.Execute)
	assert.Equal(t, int64(125), dec.Quantity)
}

func TestSizeAndAdmitNoEdge(t *testing.T) {
	m := testManager()

	// A weak candidate on an expensive contract has negative edge:
	// p = 0.5 + 0.45*0.1*0.1 = 0.5045 but price 0.90 implies b = 0.111.
	weak := domain.TradeCandidate{
		MarketID:   "MKT-1",
		Direction:  domain.DirectionLong,
		Strength:   0.1,
		Confidence: 0.1,
	}
	dec := m.SizeAndAdmit(weak, snapshot(0.90), testSettings(), domain.PortfolioState{})
	require.False(t, dec.Execute)
	assert.Equal(t, domain.RejectNoEdge, dec.Reason)
}

func TestSizeAndAdmitBelowMinimum(t *testing.T) {
	m := testManager()

	settings := testSettings()
	settings.MinQuantity = 500

	dec := m.SizeAndAdmit(strongCandidate(), snapshot(0.40), settings, domain.PortfolioState{})
	require.False(t, dec.Execute)
	assert.Equal(t, domain.RejectBelowMinimum, dec.Reason)
}

func TestSizeAndAdmitUsesNoPriceForShorts(t *testing.T) {
	m := testManager()

	short := strongCandidate()
	short.Direction = domain.DirectionShort

	// YES at 0.90 means NO at 0.10: cheap entry, large payoff ratio.
	dec := m.SizeAndAdmit(short, snapshot(0.90), testSettings(), domain.PortfolioState{})
	require.True(t, dec.Execute)
	// Size capped at 100, quantity = floor(100 / 0.10) = 1000.
	assert.Equal(t, int64(1000), dec.Quantity)
}
