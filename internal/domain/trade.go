package domain

import "time"

// Trade is the immutable closed record produced exactly once when a position
// transitions to closed. Every Trade references exactly one Position and
// every Position produces at most one Trade.
type Trade struct {
	ID             string
	PositionID     string
	MarketID       string
	StrategySource string
	Direction      Direction
	EntryPrice     float64
	ExitPrice      float64
	Quantity       int64
	PnL            float64
	OpenedAt       time.Time
	ClosedAt       time.Time
	ExitReason     ExitReason
}

// Return is the trade's profit relative to the capital committed at entry.
// Prices are YES-terms, so a short's capital is the complement of its entry.
// It returns 0 for degenerate records with no notional.
func (t Trade) Return() float64 {
	entry := t.EntryPrice
	if t.Direction == DirectionShort {
		entry = 1 - t.EntryPrice
	}
	notional := entry * float64(t.Quantity)
	if notional <= 0 {
		return 0
	}
	return t.PnL / notional
}
