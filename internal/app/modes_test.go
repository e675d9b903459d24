package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/engine"
	"github.com/alanyoungcy/kalshibot/internal/strategy"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// listExchange answers market discovery from a fixed list; nothing else is
// exercised by the startup paths under test.
type listExchange struct {
	markets []domain.MarketSnapshot
}

func (e *listExchange) GetMarkets(context.Context) ([]domain.MarketSnapshot, error) {
	return e.markets, nil
}

func (e *listExchange) GetMarket(_ context.Context, id string) (domain.MarketSnapshot, error) {
	return domain.MarketSnapshot{ID: id}, nil
}

func (e *listExchange) SubmitOrder(context.Context, string, domain.Direction, int64) (domain.Fill, error) {
	return domain.Fill{}, domain.ErrOrderRejected
}

func (e *listExchange) GetBalance(context.Context) (domain.Balance, error) {
	return domain.Balance{}, nil
}

type mapPriceCache struct {
	hist map[string][]float64
}

func (c *mapPriceCache) SetPrice(context.Context, string, float64, time.Time) error {
	return nil
}

func (c *mapPriceCache) GetPrice(context.Context, string) (float64, time.Time, error) {
	return 0, time.Time{}, domain.ErrNotFound
}

func (c *mapPriceCache) History(_ context.Context, marketID string, _ int) ([]float64, error) {
	return c.hist[marketID], nil
}

type ledgerTradeStore struct {
	recent   []domain.Trade
	daySum   float64
	sumCalls int
}

func (s *ledgerTradeStore) Insert(context.Context, domain.Trade) error { return nil }

func (s *ledgerTradeStore) ListSince(context.Context, time.Time) ([]domain.Trade, error) {
	return nil, nil
}

func (s *ledgerTradeStore) ListRecent(context.Context, int) ([]domain.Trade, error) {
	return s.recent, nil
}

func (s *ledgerTradeStore) SumPnLSince(context.Context, time.Time) (float64, error) {
	s.sumCalls++
	return s.daySum, nil
}

func TestSeedHistoryLoadsCachedPrices(t *testing.T) {
	hist := strategy.NewHistoryBook(10)
	ex := &listExchange{markets: []domain.MarketSnapshot{{ID: "MKT-1"}, {ID: "MKT-2"}}}
	cache := &mapPriceCache{hist: map[string][]float64{"MKT-1": {0.40, 0.41, 0.42}}}

	seedHistory(context.Background(), ex, cache, hist, discardLogger())

	assert.InDeltaSlice(t, []float64{0.40, 0.41, 0.42}, hist.Prices("MKT-1"), 1e-9)
	assert.Zero(t, hist.Len("MKT-2"))
}

func TestRestorePerformanceCarriesLedgerPnL(t *testing.T) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// The replay window holds one of today's trades; the ledger knows the
	// day lost more than that.
	store := &ledgerTradeStore{
		recent: []domain.Trade{{
			ID:       "t1",
			PnL:      -10,
			ClosedAt: dayStart.Add(time.Hour),
		}},
		daySum: -45,
	}

	a := &App{logger: discardLogger()}
	perf := engine.NewPerformanceTracker()
	a.restorePerformance(context.Background(), store, perf)

	assert.Equal(t, 1, store.sumCalls)
	assert.InDelta(t, -45.0, perf.RealizedSince(dayStart), 1e-9)
	assert.Equal(t, 1, perf.Report().TotalTrades)
}
