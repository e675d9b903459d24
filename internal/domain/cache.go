package domain

import (
	"context"
	"time"
)

// PriceCache stores the latest observed price and a bounded recent history
// per market, shared between the WebSocket feed and the trading loop.
type PriceCache interface {
	SetPrice(ctx context.Context, marketID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, marketID string) (float64, time.Time, error)
	// History returns up to limit recent prices in chronological order.
	History(ctx context.Context, marketID string, limit int) ([]float64, error)
}

// EventBus publishes the engine's structured events for whoever is
// listening. The engine has no dependency on whether anyone is.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Event channel names used on the bus.
const (
	ChannelTrades   = "engine:trades"
	ChannelRisk     = "engine:risk"
	ChannelSettings = "engine:settings"
	ChannelCycles   = "engine:cycles"
)
