package domain

import "time"

// MarketSnapshot is the engine's view of one binary event market at a point
// in time. Prices are dollar probabilities in (0, 1).
type MarketSnapshot struct {
	ID          string
	EventTicker string // event group; markets sharing one are treated as correlated
	Title       string
	Category    string
	YesPrice    float64
	NoPrice     float64
	Volume      int64
	Expiry      time.Time
	FetchedAt   time.Time
}

// Price returns the entry price the engine would pay for the given direction:
// the YES price for longs and the NO price for shorts.
func (m MarketSnapshot) Price(d Direction) float64 {
	if d == DirectionShort {
		return m.NoPrice
	}
	return m.YesPrice
}

// Balance is an account balance summary from the exchange.
type Balance struct {
	Available float64
	Equity    float64
}

// SentimentScore is a pre-computed sentiment estimate for one market,
// supplied by the external sentiment provider. Absence is valid input.
type SentimentScore struct {
	Score      float64 // in [-1, 1]
	Confidence float64 // in [0, 1], relevance-weighted
}
