package domain

import "time"

// PositionState tracks a position through its lifecycle.
type PositionState string

const (
	PositionStateOpened     PositionState = "opened"
	PositionStateMonitoring PositionState = "monitoring"
	PositionStateClosed     PositionState = "closed"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitReasonStopLoss     ExitReason = "stop_loss"
	ExitReasonTrailingStop ExitReason = "trailing_stop"
	ExitReasonTimeDecay    ExitReason = "time_decay"
	ExitReasonTakeProfit   ExitReason = "take_profit"
	ExitReasonManual       ExitReason = "manual"
)

// Position is an open holding in one market. All prices are YES-side dollar
// probabilities regardless of direction; short entries are converted from
// the NO fill at open. Quantity is set exactly once at open and never
// increases; StopLossPrice only moves in the profit-protecting direction
// once trailing is active. Positions are owned exclusively by the position
// manager.
type Position struct {
	ID             string
	MarketID       string
	EventTicker    string
	Category       string
	StrategySource string
	Direction      Direction
	EntryPrice     float64
	CurrentPrice   float64
	Quantity       int64
	StopLossPrice  float64
	TrailingHWM    float64 // high-water mark for trailing stops
	Expiry         time.Time
	OpenedAt       time.Time
	State          PositionState
}

// UnrealizedPnL returns the mark-to-market profit at the given price.
func (p Position) UnrealizedPnL(price float64) float64 {
	if p.Direction == DirectionShort {
		return (p.EntryPrice - price) * float64(p.Quantity)
	}
	return (price - p.EntryPrice) * float64(p.Quantity)
}

// Notional returns the dollar value committed at entry. A short position's
// capital is the NO-side cost, the complement of its YES-terms entry.
func (p Position) Notional() float64 {
	if p.Direction == DirectionShort {
		return (1 - p.EntryPrice) * float64(p.Quantity)
	}
	return p.EntryPrice * float64(p.Quantity)
}
