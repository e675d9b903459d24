// Package paper simulates order execution against live market data. It
// wraps a real exchange client for quotes and fills orders locally, so the
// whole engine runs unchanged without risking capital.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Exchange is a simulated exchange. Market data passes through to the
// underlying client; orders fill instantly at the current quote.
type Exchange struct {
	upstream domain.ExchangeClient
	logger   *slog.Logger

	mu      sync.Mutex
	balance float64
}

// NewExchange creates a paper exchange with the given starting balance.
func NewExchange(upstream domain.ExchangeClient, startingBalance float64, logger *slog.Logger) *Exchange {
	return &Exchange{
		upstream: upstream,
		logger:   logger.With(slog.String("component", "paper")),
		balance:  startingBalance,
	}
}

// GetMarkets proxies to the real exchange.
func (e *Exchange) GetMarkets(ctx context.Context) ([]domain.MarketSnapshot, error) {
	return e.upstream.GetMarkets(ctx)
}

// GetMarket proxies to the real exchange.
func (e *Exchange) GetMarket(ctx context.Context, id string) (domain.MarketSnapshot, error) {
	return e.upstream.GetMarket(ctx, id)
}

// SubmitOrder fills immediately at the live quote for the requested side.
func (e *Exchange) SubmitOrder(ctx context.Context, marketID string, direction domain.Direction, quantity int64) (domain.Fill, error) {
	snap, err := e.upstream.GetMarket(ctx, marketID)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("paper: quote %s: %w", marketID, err)
	}
	price := snap.Price(direction)
	if price <= 0 || price >= 1 {
		return domain.Fill{}, fmt.Errorf("paper: %s unpriceable: %w", marketID, domain.ErrOrderRejected)
	}

	cost := price * float64(quantity)
	e.mu.Lock()
	e.balance -= cost
	e.mu.Unlock()

	e.logger.Debug("paper fill",
		slog.String("market_id", marketID),
		slog.String("direction", string(direction)),
		slog.Float64("price", price),
		slog.Int64("quantity", quantity))
	return domain.Fill{Price: price, Quantity: quantity}, nil
}

// GetBalance returns the simulated balance.
func (e *Exchange) GetBalance(context.Context) (domain.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.Balance{Available: e.balance, Equity: e.balance}, nil
}
