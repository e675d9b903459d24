package domain

import "time"

// Direction is the side of a trade relative to the YES contract.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionFlat  Direction = "flat"
)

// Opposite returns the opposing direction. Flat opposes itself.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	default:
		return DirectionFlat
	}
}

// Signal is a normalized directional opinion produced by a single signal
// source for one market. Signals are immutable once produced and live only
// within the cycle that produced them; they are never persisted.
type Signal struct {
	Source      string
	MarketID    string
	Direction   Direction
	Strength    float64 // in [-1, 1]
	Confidence  float64 // in [0, 1]
	GeneratedAt time.Time
}

// TradeCandidate is the aggregator's output: one admissible directional
// opinion per market, ready for risk sizing. Candidates are ordered by
// descending confidence so earlier candidates get first claim on constrained
// portfolio capacity.
type TradeCandidate struct {
	MarketID   string
	Direction  Direction
	Strength   float64
	Confidence float64
	Sources    []string
}
