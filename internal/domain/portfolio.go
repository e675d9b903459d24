package domain

import "time"

// PortfolioState is a derived view of the portfolio, recomputed every cycle
// from the open position set and today's trade ledger. It is never mutated
// directly.
type PortfolioState struct {
	OpenPositionsCount int
	RealizedPnLToday   float64
	UnrealizedPnL      float64
	// ExposureByGroup maps an event group (or category for ungrouped
	// markets) to the entry notional committed to it.
	ExposureByGroup map[string]float64
	// DailyLossTripped reports whether the daily-loss circuit breaker is
	// latched for the current trading day.
	DailyLossTripped bool
	ComputedAt       time.Time
}

// DailyLoss returns today's combined realized and unrealized loss as a
// positive number; 0 when the portfolio is flat or in profit for the day.
func (s PortfolioState) DailyLoss() float64 {
	total := s.RealizedPnLToday + s.UnrealizedPnL
	if total >= 0 {
		return 0
	}
	return -total
}
