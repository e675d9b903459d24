// Package engine runs the sequential trading loop: snapshot the markets,
// evaluate signal sources, aggregate, size and admit candidates, manage
// exits, and publish a cycle summary. Cycles never overlap; everything the
// loop touches is read through one settings snapshot per cycle.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/notify"
	"github.com/alanyoungcy/kalshibot/internal/position"
	"github.com/alanyoungcy/kalshibot/internal/risk"
	"github.com/alanyoungcy/kalshibot/internal/strategy"
)

// Run modes. Trade submits live orders, paper fills against simulated
// balances, monitor only manages exits on an existing book.
const (
	ModeTrade   = "trade"
	ModePaper   = "paper"
	ModeMonitor = "monitor"
)

// Status is the engine's point-in-time answer to "what are you doing".
type Status struct {
	Running           bool          `json:"running"`
	Mode              string        `json:"mode"`
	CycleCount        int64         `json:"cycle_count"`
	LastCycleAt       time.Time     `json:"last_cycle_at"`
	LastCycleDuration time.Duration `json:"last_cycle_duration"`
	OpenPositions     int           `json:"open_positions"`
	BreakerTripped    bool          `json:"breaker_tripped"`
	SettingsVersion   int64         `json:"settings_version"`
}

// Deps collects everything the engine needs. Sentiment, cache, bus, and
// notifier are optional; the loop degrades rather than depends on them.
type Deps struct {
	Exchange  domain.ExchangeClient
	Sentiment domain.SentimentProvider
	Settings  *SettingsService
	Risk      *risk.Manager
	Positions *position.Manager
	Perf      *PerformanceTracker
	History   *strategy.HistoryBook
	Cache     domain.PriceCache
	Bus       domain.EventBus
	Notifier  *notify.Notifier
	Mode      string
	Logger    *slog.Logger
}

// Engine is the trading loop.
type Engine struct {
	deps      Deps
	sentiment *strategy.Sentiment
	statArb   *strategy.StatArb
	vol       *strategy.Volatility
	logger    *slog.Logger

	mu         sync.Mutex
	running    bool
	cycleCount int64
	lastCycle  time.Time
	lastTook   time.Duration
	tripped    bool
	trippedDay time.Time
}

// New creates an engine from its dependencies.
func New(deps Deps) *Engine {
	logger := deps.Logger.With(slog.String("component", "engine"))
	return &Engine{
		deps:      deps,
		sentiment: strategy.NewSentiment(deps.Logger),
		statArb:   strategy.NewStatArb(deps.Logger),
		vol:       strategy.NewVolatility(deps.Logger),
		logger:    logger,
	}
}

// Run executes trading cycles at the configured interval until the context
// is cancelled. Cycles run strictly one at a time on this goroutine; a slow
// cycle delays the next tick rather than overlapping it.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.logger.Info("engine starting", slog.String("mode", e.deps.Mode))
	if e.deps.Notifier != nil {
		e.deps.Notifier.Lifecycle(ctx, "started in "+e.deps.Mode+" mode")
	}

	interval := e.deps.Settings.Snapshot().TradeInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping")
			if e.deps.Notifier != nil {
				e.deps.Notifier.Lifecycle(context.WithoutCancel(ctx), "stopped")
			}
			return ctx.Err()
		case <-ticker.C:
			e.runCycle(ctx)
			if next := e.deps.Settings.Snapshot().TradeInterval; next != interval {
				interval = next
				ticker.Reset(interval)
				e.logger.Info("trade interval changed", slog.Duration("interval", interval))
			}
		}
	}
}

// RunOnce executes a single trading cycle immediately.
func (e *Engine) RunOnce(ctx context.Context) {
	e.runCycle(ctx)
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Running:           e.running,
		Mode:              e.deps.Mode,
		CycleCount:        e.cycleCount,
		LastCycleAt:       e.lastCycle,
		LastCycleDuration: e.lastTook,
		OpenPositions:     len(e.deps.Positions.ListOpen()),
		BreakerTripped:    e.tripped,
		SettingsVersion:   e.deps.Settings.Snapshot().Version,
	}
}

// Performance returns the current performance report.
func (e *Engine) Performance() PerformanceReport {
	return e.deps.Perf.Report()
}

// cycleStats is what one cycle reports about itself.
type cycleStats struct {
	Cycle      int64         `json:"cycle"`
	Markets    int           `json:"markets"`
	Signals    int           `json:"signals"`
	Candidates int           `json:"candidates"`
	Opened     int           `json:"opened"`
	Closed     int           `json:"closed"`
	Rejected   int           `json:"rejected"`
	Duration   time.Duration `json:"duration_ns"`
}

func (e *Engine) runCycle(ctx context.Context) {
	start := time.Now()
	settings := e.deps.Settings.Snapshot()

	e.mu.Lock()
	e.cycleCount++
	cycle := e.cycleCount
	e.resetBreakerLocked(start)
	e.mu.Unlock()

	stats := cycleStats{Cycle: cycle}

	markets, err := e.deps.Exchange.GetMarkets(ctx)
	if err != nil {
		e.logger.Error("market snapshot failed, skipping cycle",
			slog.Int64("cycle", cycle), slog.Any("error", err))
		e.finishCycle(ctx, start, stats)
		return
	}
	stats.Markets = len(markets)

	byID := make(map[string]domain.MarketSnapshot, len(markets))
	for _, m := range markets {
		byID[m.ID] = m
		e.deps.History.Track(m.ID, m.YesPrice, m.FetchedAt)
		if e.deps.Cache != nil {
			if err := e.deps.Cache.SetPrice(ctx, m.ID, m.YesPrice, m.FetchedAt); err != nil {
				e.logger.Warn("price cache write failed",
					slog.String("market_id", m.ID), slog.Any("error", err))
			}
		}
	}

	signals := e.evaluateSources(ctx, markets, settings)
	stats.Signals = len(signals)

	candidates := strategy.Aggregate(signals)
	stats.Candidates = len(candidates)

	// Monitor mode manages exits on the existing book but admits nothing new.
	if e.deps.Mode != ModeMonitor {
		stats.Opened, stats.Rejected = e.admitAndEnter(ctx, candidates, byID, settings)
	}

	regimes := e.regimes(markets, settings)
	closed := e.deps.Positions.CheckExits(ctx, byID, regimes, settings, time.Now().UTC())
	stats.Closed = len(closed)
	for _, trade := range closed {
		e.deps.Perf.Record(trade)
		e.publish(ctx, domain.ChannelTrades, map[string]any{
			"event": "trade_closed",
			"trade": trade,
		})
		if e.deps.Notifier != nil {
			e.deps.Notifier.TradeClosed(ctx, trade)
		}
	}

	e.checkBreaker(ctx, settings)
	e.finishCycle(ctx, start, stats)
}

// evaluateSources runs every enabled source on every market. A failing
// source loses only its own contribution for the cycle.
func (e *Engine) evaluateSources(ctx context.Context, markets []domain.MarketSnapshot, settings domain.Settings) []domain.Signal {
	var signals []domain.Signal
	for _, m := range markets {
		mctx := strategy.MarketContext{
			Market:   m,
			History:  e.deps.History.Prices(m.ID),
			Settings: settings,
		}
		if settings.StatArbEnabled {
			mctx.Related = e.relatedHistories(m, markets)
		}
		if settings.SentimentEnabled && e.deps.Sentiment != nil {
			score, ok, err := e.deps.Sentiment.Sentiment(ctx, m.ID)
			if err != nil {
				e.logger.Warn("sentiment provider failed",
					slog.String("market_id", m.ID), slog.Any("error", err))
			} else if ok {
				mctx.Sentiment = &score
			}
		}

		for _, src := range e.enabledSources(settings) {
			sig, ok, err := src.Evaluate(ctx, mctx)
			if err != nil {
				e.logger.Warn("source failed",
					slog.String("source", src.Name()),
					slog.String("market_id", m.ID),
					slog.Any("error", err))
				continue
			}
			if ok {
				signals = append(signals, sig)
			}
		}
	}
	return signals
}

func (e *Engine) enabledSources(settings domain.Settings) []strategy.Source {
	var out []strategy.Source
	if settings.SentimentEnabled {
		out = append(out, e.sentiment)
	}
	if settings.StatArbEnabled {
		out = append(out, e.statArb)
	}
	if settings.VolatilityEnabled {
		out = append(out, e.vol)
	}
	return out
}

// relatedHistories collects price histories of sibling markets in the same
// event group.
func (e *Engine) relatedHistories(m domain.MarketSnapshot, markets []domain.MarketSnapshot) map[string][]float64 {
	if m.EventTicker == "" {
		return nil
	}
	related := make(map[string][]float64)
	for _, peer := range markets {
		if peer.ID == m.ID || peer.EventTicker != m.EventTicker {
			continue
		}
		if hist := e.deps.History.Prices(peer.ID); len(hist) > 0 {
			related[peer.ID] = hist
		}
	}
	return related
}

// admitAndEnter walks candidates in priority order, sizes each against the
// portfolio state, and opens positions for the admitted ones. The portfolio
// view is recomputed after every fill so later candidates see capacity
// consumed by earlier ones.
func (e *Engine) admitAndEnter(ctx context.Context, candidates []domain.TradeCandidate, byID map[string]domain.MarketSnapshot, settings domain.Settings) (opened, rejected int) {
	for _, c := range candidates {
		snap, ok := byID[c.MarketID]
		if !ok || e.deps.Positions.HasOpen(c.MarketID) {
			continue
		}

		portfolio := e.portfolio()
		decision := e.deps.Risk.SizeAndAdmit(c, snap, settings, portfolio)
		if !decision.Execute {
			rejected++
			e.publish(ctx, domain.ChannelRisk, map[string]any{
				"event":     "candidate_rejected",
				"market_id": c.MarketID,
				"reason":    decision.Reason,
			})
			continue
		}

		fill, err := e.submitWithRetry(ctx, c.MarketID, c.Direction, decision.Quantity)
		if err != nil {
			rejected++
			e.logger.Error("order submission failed",
				slog.String("market_id", c.MarketID), slog.Any("error", err))
			continue
		}

		pos, err := e.deps.Positions.Open(ctx, c, snap, fill, settings.Risk)
		if err != nil {
			e.logger.Error("position open failed",
				slog.String("market_id", c.MarketID), slog.Any("error", err))
			continue
		}
		opened++
		e.publish(ctx, domain.ChannelTrades, map[string]any{
			"event":    "trade_executed",
			"position": pos,
		})
		if e.deps.Notifier != nil {
			e.deps.Notifier.TradeOpened(ctx, pos)
		}
	}
	return opened, rejected
}

// submitWithRetry places an order, retrying once on failure.
func (e *Engine) submitWithRetry(ctx context.Context, marketID string, d domain.Direction, quantity int64) (domain.Fill, error) {
	fill, err := e.deps.Exchange.SubmitOrder(ctx, marketID, d, quantity)
	if err == nil {
		return fill, nil
	}
	e.logger.Warn("order submission failed, retrying once",
		slog.String("market_id", marketID), slog.Any("error", err))
	return e.deps.Exchange.SubmitOrder(ctx, marketID, d, quantity)
}

func (e *Engine) regimes(markets []domain.MarketSnapshot, settings domain.Settings) map[string]domain.VolRegime {
	regimes := make(map[string]domain.VolRegime, len(markets))
	for _, m := range markets {
		regimes[m.ID] = e.vol.Regime(e.deps.History.Prices(m.ID), settings.VolatilityWindow)
	}
	return regimes
}

func (e *Engine) portfolio() domain.PortfolioState {
	now := time.Now().UTC()
	realized := e.deps.Perf.RealizedSince(startOfDay(now))
	e.mu.Lock()
	tripped := e.tripped
	e.mu.Unlock()
	return e.deps.Positions.Portfolio(realized, tripped, now)
}

// checkBreaker latches the daily-loss circuit breaker when today's combined
// realized and unrealized loss crosses the configured fraction of bankroll.
// The latch holds until the next UTC trading day.
func (e *Engine) checkBreaker(ctx context.Context, settings domain.Settings) {
	state := e.portfolio()
	if state.DailyLossTripped {
		return
	}
	limit := settings.Risk.MaxDailyLossPct * settings.Risk.Bankroll
	loss := state.DailyLoss()
	if loss < limit {
		return
	}

	e.mu.Lock()
	e.tripped = true
	e.trippedDay = startOfDay(time.Now().UTC())
	e.mu.Unlock()

	e.logger.Warn("daily loss breaker tripped",
		slog.Float64("loss", loss), slog.Float64("limit", limit))
	e.publish(ctx, domain.ChannelRisk, map[string]any{
		"event": "risk_breach",
		"kind":  "daily_loss",
		"loss":  loss,
		"limit": limit,
	})
	if e.deps.Notifier != nil {
		e.deps.Notifier.BreakerTripped(ctx, loss, limit)
	}
}

// resetBreakerLocked clears the latch once a new UTC day begins.
func (e *Engine) resetBreakerLocked(now time.Time) {
	if e.tripped && startOfDay(now.UTC()).After(e.trippedDay) {
		e.tripped = false
		e.logger.Info("daily loss breaker reset")
	}
}

func (e *Engine) finishCycle(ctx context.Context, start time.Time, stats cycleStats) {
	stats.Duration = time.Since(start)
	e.mu.Lock()
	e.lastCycle = start
	e.lastTook = stats.Duration
	e.mu.Unlock()

	e.publish(ctx, domain.ChannelCycles, stats)
	e.logger.Info("cycle complete",
		slog.Int64("cycle", stats.Cycle),
		slog.Int("markets", stats.Markets),
		slog.Int("signals", stats.Signals),
		slog.Int("candidates", stats.Candidates),
		slog.Int("opened", stats.Opened),
		slog.Int("closed", stats.Closed),
		slog.Int("rejected", stats.Rejected),
		slog.Duration("took", stats.Duration))
}

func (e *Engine) publish(ctx context.Context, channel string, payload any) {
	if e.deps.Bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := e.deps.Bus.Publish(ctx, channel, data); err != nil {
		e.logger.Warn("event publish failed",
			slog.String("channel", channel), slog.Any("error", err))
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
