package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

func closedTrade(source string, entry, exit float64, qty int64, closedAt time.Time) domain.Trade {
	return domain.Trade{
		ID:             source + closedAt.String(),
		StrategySource: source,
		Direction:      domain.DirectionLong,
		EntryPrice:     entry,
		ExitPrice:      exit,
		Quantity:       qty,
		PnL:            (exit - entry) * float64(qty),
		ClosedAt:       closedAt,
	}
}

func TestReportEmpty(t *testing.T) {
	tracker := NewPerformanceTracker()
	report := tracker.Report()
	assert.Zero(t, report.TotalTrades)
	assert.Zero(t, report.WinRate)
	assert.Zero(t, report.SharpeRatio)
	assert.Empty(t, report.ByStrategy)
}

func TestReportAggregates(t *testing.T) {
	tracker := NewPerformanceTracker()
	now := time.Now()
	tracker.Record(closedTrade("sentiment", 0.50, 0.60, 100, now)) // +10
	tracker.Record(closedTrade("sentiment", 0.50, 0.45, 100, now)) // -5
	tracker.Record(closedTrade("stat_arb", 0.40, 0.48, 50, now))   // +4

	report := tracker.Report()
	assert.Equal(t, 3, report.TotalTrades)
	assert.Equal(t, 2, report.Wins)
	assert.Equal(t, 1, report.Losses)
	assert.InDelta(t, 2.0/3.0, report.WinRate, 1e-9)
	assert.InDelta(t, 9.0, report.TotalPnL, 1e-9)
	assert.Greater(t, report.SharpeRatio, 0.0)

	require.Contains(t, report.ByStrategy, "sentiment")
	require.Contains(t, report.ByStrategy, "stat_arb")
	sent := report.ByStrategy["sentiment"]
	assert.Equal(t, 2, sent.Trades)
	assert.InDelta(t, 0.5, sent.WinRate, 1e-9)
	assert.InDelta(t, 5.0, sent.PnL, 1e-9)
	arb := report.ByStrategy["stat_arb"]
	assert.InDelta(t, 1.0, arb.WinRate, 1e-9)
}

func TestMaxDrawdownTracksPeakToTrough(t *testing.T) {
	tracker := NewPerformanceTracker()
	now := time.Now()
	// Cumulative PnL: +10, +4 (dd 6), -6 (dd 16), +4.
	tracker.Record(closedTrade("s", 0.50, 0.60, 100, now))
	tracker.Record(closedTrade("s", 0.50, 0.44, 100, now))
	tracker.Record(closedTrade("s", 0.50, 0.40, 100, now))
	tracker.Record(closedTrade("s", 0.50, 0.60, 100, now))

	report := tracker.Report()
	assert.InDelta(t, 16.0, report.MaxDrawdown, 1e-9)
}

func TestBreakevenTradeIsNeitherWinNorLoss(t *testing.T) {
	tracker := NewPerformanceTracker()
	tracker.Record(closedTrade("s", 0.50, 0.50, 100, time.Now()))

	report := tracker.Report()
	assert.Equal(t, 1, report.TotalTrades)
	assert.Zero(t, report.Wins)
	assert.Zero(t, report.Losses)
}

func TestRealizedSince(t *testing.T) {
	tracker := NewPerformanceTracker()
	now := time.Now()
	tracker.Record(closedTrade("s", 0.50, 0.60, 100, now.Add(-48*time.Hour))) // +10, yesterday
	tracker.Record(closedTrade("s", 0.50, 0.45, 100, now))                    // -5, today

	assert.InDelta(t, -5.0, tracker.RealizedSince(now.Add(-time.Hour)), 1e-9)
	assert.InDelta(t, 5.0, tracker.RealizedSince(now.Add(-72*time.Hour)), 1e-9)
}

func TestCarryRealizedCountsTowardDailyTotal(t *testing.T) {
	tracker := NewPerformanceTracker()
	day := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	tracker.Record(closedTrade("s", 0.50, 0.40, 100, day.Add(2*time.Hour))) // -10

	// The ledger is authoritative for the day's total; the replayed trade
	// only accounts for part of it.
	tracker.CarryRealized(day, -90)

	assert.InDelta(t, -100.0, tracker.RealizedSince(day), 1e-9)
	// The carry belongs to that day only.
	assert.InDelta(t, 0.0, tracker.RealizedSince(day.Add(24*time.Hour)), 1e-9)
}

func TestRestoreOrdersByCloseTime(t *testing.T) {
	tracker := NewPerformanceTracker()
	now := time.Now()
	// Out of order on purpose; drawdown depends on close order.
	tracker.Restore([]domain.Trade{
		closedTrade("s", 0.50, 0.60, 100, now),                    // +10 second
		closedTrade("s", 0.50, 0.40, 100, now.Add(-1*time.Hour)),  // -10 first
	})

	report := tracker.Report()
	assert.Equal(t, 2, report.TotalTrades)
	assert.InDelta(t, 10.0, report.MaxDrawdown, 1e-9)
}
