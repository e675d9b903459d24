package domain

import "context"

// Fill is the result of a successfully submitted order.
type Fill struct {
	Price    float64
	Quantity int64
}

// ExchangeClient is the boundary to the exchange. Submission failures are
// retryable once by the caller, then treated as a rejected candidate.
type ExchangeClient interface {
	// GetMarkets returns snapshots for the markets the engine watches.
	GetMarkets(ctx context.Context) ([]MarketSnapshot, error)
	// GetMarket returns a fresh snapshot for a single market.
	GetMarket(ctx context.Context, id string) (MarketSnapshot, error)
	// SubmitOrder places a market order and reports the fill.
	SubmitOrder(ctx context.Context, marketID string, direction Direction, quantity int64) (Fill, error)
	// GetBalance returns the account balance.
	GetBalance(ctx context.Context) (Balance, error)
}

// SentimentProvider supplies pre-computed sentiment per market per cycle.
// The second return value is false when no sentiment is available this
// cycle, which is valid input rather than an error.
type SentimentProvider interface {
	Sentiment(ctx context.Context, marketID string) (SentimentScore, bool, error)
}
