package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/position"
	"github.com/alanyoungcy/kalshibot/internal/risk"
	"github.com/alanyoungcy/kalshibot/internal/strategy"
)

// scriptedExchange serves a fixed market list and fills at the current
// quote.
type scriptedExchange struct {
	markets    []domain.MarketSnapshot
	marketsErr error
	submitErrs []error // consumed in order, then orders succeed
	submits    int
}

func (s *scriptedExchange) GetMarkets(context.Context) ([]domain.MarketSnapshot, error) {
	if s.marketsErr != nil {
		return nil, s.marketsErr
	}
	return s.markets, nil
}

func (s *scriptedExchange) GetMarket(_ context.Context, id string) (domain.MarketSnapshot, error) {
	for _, m := range s.markets {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.MarketSnapshot{}, domain.ErrNotFound
}

func (s *scriptedExchange) SubmitOrder(_ context.Context, marketID string, d domain.Direction, quantity int64) (domain.Fill, error) {
	s.submits++
	if len(s.submitErrs) > 0 {
		err := s.submitErrs[0]
		s.submitErrs = s.submitErrs[1:]
		if err != nil {
			return domain.Fill{}, err
		}
	}
	for _, m := range s.markets {
		if m.ID == marketID {
			return domain.Fill{Price: m.Price(d), Quantity: quantity}, nil
		}
	}
	return domain.Fill{}, domain.ErrNotFound
}

func (s *scriptedExchange) GetBalance(context.Context) (domain.Balance, error) {
	return domain.Balance{Available: 1000, Equity: 1000}, nil
}

// fixedSentiment serves one score for every market.
type fixedSentiment struct {
	score domain.SentimentScore
	err   error
}

func (f *fixedSentiment) Sentiment(context.Context, string) (domain.SentimentScore, bool, error) {
	if f.err != nil {
		return domain.SentimentScore{}, false, f.err
	}
	return f.score, true, nil
}

func loopSettings() domain.Settings {
	s := validSettings()
	s.SentimentEnabled = true
	return s
}

func newTestEngine(ex *scriptedExchange, sent domain.SentimentProvider, settings domain.Settings) *Engine {
	logger := discardLogger()
	posMgr := position.NewManager(ex, nil, nil, logger)
	return New(Deps{
		Exchange:  ex,
		Sentiment: sent,
		Settings:  NewSettingsService(settings, nil, nil, nil, logger),
		Risk:      risk.NewManager(logger),
		Positions: posMgr,
		Perf:      NewPerformanceTracker(),
		History:   strategy.NewHistoryBook(200),
		Mode:      "paper",
		Logger:    logger,
	})
}

func market(yes float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		ID:          "MKT-1",
		EventTicker: "EVT",
		YesPrice:    yes,
		NoPrice:     1 - yes,
		Expiry:      time.Now().Add(48 * time.Hour),
		FetchedAt:   time.Now(),
	}
}

func TestCycleOpensPositionFromSentimentSignal(t *testing.T) {
	ex := &scriptedExchange{markets: []domain.MarketSnapshot{market(0.40)}}
	sent := &fixedSentiment{score: domain.SentimentScore{Score: 0.8, Confidence: 0.9}}
	e := newTestEngine(ex, sent, loopSettings())

	e.RunOnce(context.Background())

	open := e.deps.Positions.ListOpen()
	require.Len(t, open, 1)
	assert.Equal(t, "MKT-1", open[0].MarketID)
	assert.Equal(t, domain.DirectionLong, open[0].Direction)
	assert.Equal(t, "sentiment", open[0].StrategySource)
	assert.InDelta(t, 0.40, open[0].EntryPrice, 1e-9)

	// A second cycle with an unchanged quote does not double up.
	e.RunOnce(context.Background())
	assert.Len(t, e.deps.Positions.ListOpen(), 1)
	assert.Equal(t, int64(2), e.Status().CycleCount)
}

func TestCycleClosesOnStopAndRecordsTrade(t *testing.T) {
	ex := &scriptedExchange{markets: []domain.MarketSnapshot{market(0.40)}}
	sent := &fixedSentiment{score: domain.SentimentScore{Score: 0.8, Confidence: 0.9}}
	e := newTestEngine(ex, sent, loopSettings())

	e.RunOnce(context.Background())
	require.Len(t, e.deps.Positions.ListOpen(), 1)

	// Price collapses through the stop at 0.40*0.95 = 0.38.
	ex.markets = []domain.MarketSnapshot{market(0.30)}
	e.RunOnce(context.Background())

	assert.Empty(t, e.deps.Positions.ListOpen())
	report := e.Performance()
	require.Equal(t, 1, report.TotalTrades)
	assert.Equal(t, 1, report.Losses)
	assert.Less(t, report.TotalPnL, 0.0)
}

func TestDailyLossBreakerBlocksNewEntries(t *testing.T) {
	settings := loopSettings()
	settings.Risk.MaxDailyLossPct = 0.02 // breaker at a 20 loss

	ex := &scriptedExchange{markets: []domain.MarketSnapshot{market(0.40)}}
	sent := &fixedSentiment{score: domain.SentimentScore{Score: 0.8, Confidence: 0.9}}
	e := newTestEngine(ex, sent, settings)

	e.RunOnce(context.Background())
	require.Len(t, e.deps.Positions.ListOpen(), 1)

	// Stop-loss exit realizes a 25 loss, crossing the 20 limit.
	ex.markets = []domain.MarketSnapshot{market(0.30)}
	e.RunOnce(context.Background())
	require.Empty(t, e.deps.Positions.ListOpen())
	assert.True(t, e.Status().BreakerTripped)

	// The signal is still strong, but the latched breaker rejects it.
	ex.markets = []domain.MarketSnapshot{market(0.40)}
	e.RunOnce(context.Background())
	assert.Empty(t, e.deps.Positions.ListOpen())
}

func TestCycleSurvivesMarketFetchFailure(t *testing.T) {
	ex := &scriptedExchange{marketsErr: errors.New("exchange down")}
	e := newTestEngine(ex, nil, loopSettings())

	e.RunOnce(context.Background())
	status := e.Status()
	assert.Equal(t, int64(1), status.CycleCount)
	assert.Empty(t, e.deps.Positions.ListOpen())
}

func TestCycleSurvivesSentimentFailure(t *testing.T) {
	ex := &scriptedExchange{markets: []domain.MarketSnapshot{market(0.40)}}
	sent := &fixedSentiment{err: errors.New("provider down")}
	e := newTestEngine(ex, sent, loopSettings())

	e.RunOnce(context.Background())
	assert.Empty(t, e.deps.Positions.ListOpen())
	assert.Equal(t, int64(1), e.Status().CycleCount)
}

func TestOrderSubmissionRetriesOnce(t *testing.T) {
	ex := &scriptedExchange{
		markets:    []domain.MarketSnapshot{market(0.40)},
		submitErrs: []error{domain.ErrOrderRejected},
	}
	sent := &fixedSentiment{score: domain.SentimentScore{Score: 0.8, Confidence: 0.9}}
	e := newTestEngine(ex, sent, loopSettings())

	// First submission fails, the retry fills.
	e.RunOnce(context.Background())
	assert.Len(t, e.deps.Positions.ListOpen(), 1)
	assert.Equal(t, 2, ex.submits)
}

func TestOrderFailingTwiceIsDroppedForTheCycle(t *testing.T) {
	ex := &scriptedExchange{
		markets:    []domain.MarketSnapshot{market(0.40)},
		submitErrs: []error{domain.ErrOrderRejected, domain.ErrOrderRejected},
	}
	sent := &fixedSentiment{score: domain.SentimentScore{Score: 0.8, Confidence: 0.9}}
	e := newTestEngine(ex, sent, loopSettings())

	e.RunOnce(context.Background())
	assert.Empty(t, e.deps.Positions.ListOpen())
	assert.Equal(t, 2, ex.submits)
}

func TestMonitorModeAdmitsNothingButManagesExits(t *testing.T) {
	ex := &scriptedExchange{markets: []domain.MarketSnapshot{market(0.40)}}
	sent := &fixedSentiment{score: domain.SentimentScore{Score: 0.8, Confidence: 0.9}}
	e := newTestEngine(ex, sent, loopSettings())
	e.deps.Mode = ModeMonitor

	// A strong signal opens nothing in monitor mode.
	e.RunOnce(context.Background())
	assert.Empty(t, e.deps.Positions.ListOpen())
	assert.Zero(t, ex.submits)

	// An existing position is still exit-managed.
	_, err := e.deps.Positions.Open(context.Background(),
		domain.TradeCandidate{MarketID: "MKT-1", Direction: domain.DirectionLong, Sources: []string{"sentiment"}},
		market(0.40),
		domain.Fill{Price: 0.40, Quantity: 50},
		e.deps.Settings.Snapshot().Risk)
	require.NoError(t, err)

	ex.markets = []domain.MarketSnapshot{market(0.30)}
	e.RunOnce(context.Background())

	assert.Empty(t, e.deps.Positions.ListOpen())
	assert.Equal(t, 1, e.Performance().TotalTrades)
}
