package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/engine"
	"github.com/alanyoungcy/kalshibot/internal/position"
	"github.com/alanyoungcy/kalshibot/internal/risk"
	"github.com/alanyoungcy/kalshibot/internal/strategy"
)

// restoredTradeLimit bounds how much of the ledger is replayed into the
// performance tracker at startup.
const restoredTradeLimit = 500

// historyBookLen bounds the in-memory per-market price history.
const historyBookLen = 500

// TradeMode runs the live trading loop against the real exchange.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")
	return a.runEngine(ctx, deps, engine.ModeTrade)
}

// PaperMode runs the full loop with simulated fills. Quotes still come from
// the live API; orders never leave the process.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")
	return a.runEngine(ctx, deps, engine.ModePaper)
}

// MonitorMode manages exits on the existing position book without admitting
// new trades.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runEngine(ctx, deps, engine.ModeMonitor)
}

// runEngine assembles the engine stack, restores persisted state, and runs
// the loop plus its supporting goroutines until the context is cancelled.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, mode string) error {
	settings := a.loadSettings(ctx, deps)

	settingsSvc := engine.NewSettingsService(settings, deps.SettingsStore, deps.Bus, deps.Notifier, a.logger)
	riskMgr := risk.NewManager(a.logger)
	posMgr := position.NewManager(deps.Exchange, deps.PositionStore, deps.TradeStore, a.logger)
	perf := engine.NewPerformanceTracker()

	if deps.PositionStore != nil {
		open, err := deps.PositionStore.ListOpen(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "position restore failed", slog.Any("error", err))
		} else {
			posMgr.Restore(open)
		}
	}
	if deps.TradeStore != nil {
		a.restorePerformance(ctx, deps.TradeStore, perf)
	}

	hist := strategy.NewHistoryBook(historyBookLen)
	if deps.PriceCache != nil {
		seedHistory(ctx, deps.Exchange, deps.PriceCache, hist, a.logger)
	}

	eng := engine.New(engine.Deps{
		Exchange:  deps.Exchange,
		Sentiment: deps.Sentiment,
		Settings:  settingsSvc,
		Risk:      riskMgr,
		Positions: posMgr,
		Perf:      perf,
		History:   hist,
		Cache:     deps.PriceCache,
		Bus:       deps.Bus,
		Notifier:  deps.Notifier,
		Mode:      mode,
		Logger:    a.logger,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(ctx)
	})

	if deps.Feed != nil {
		g.Go(func() error {
			a.runFeed(ctx, deps)
			return nil
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// restorePerformance replays the recent trade ledger into the tracker, then
// reconciles today's realized PnL against the store's authoritative sum so
// the daily-loss breaker sees the full figure even when the day's trade
// count exceeds the replay window.
func (a *App) restorePerformance(ctx context.Context, trades domain.TradeStore, perf *engine.PerformanceTracker) {
	recent, err := trades.ListRecent(ctx, restoredTradeLimit)
	if err != nil {
		a.logger.WarnContext(ctx, "trade restore failed", slog.Any("error", err))
		return
	}
	perf.Restore(recent)

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	total, err := trades.SumPnLSince(ctx, dayStart)
	if err != nil {
		a.logger.WarnContext(ctx, "daily pnl reconcile failed", slog.Any("error", err))
		return
	}
	if carry := total - perf.RealizedSince(dayStart); carry != 0 {
		perf.CarryRealized(dayStart, carry)
		a.logger.InfoContext(ctx, "daily pnl reconciled",
			slog.Float64("carried", carry))
	}
}

// seedHistory preloads per-market price history from the cache so the
// history-hungry signal sources do not start cold after a restart.
func seedHistory(ctx context.Context, exchange domain.ExchangeClient, cache domain.PriceCache, hist *strategy.HistoryBook, logger *slog.Logger) {
	markets, err := exchange.GetMarkets(ctx)
	if err != nil {
		logger.Warn("history seed market discovery failed", slog.Any("error", err))
		return
	}
	now := time.Now().UTC()
	seeded := 0
	for _, m := range markets {
		prices, err := cache.History(ctx, m.ID, historyBookLen)
		if err != nil {
			logger.Warn("history seed read failed",
				slog.String("market_id", m.ID), slog.Any("error", err))
			continue
		}
		if len(prices) == 0 {
			continue
		}
		hist.Seed(m.ID, prices, now)
		seeded++
	}
	if seeded > 0 {
		logger.Info("price history seeded", slog.Int("markets", seeded))
	}
}

// loadSettings prefers a persisted settings snapshot over the configuration
// file; the config seeds version 0 on first run.
func (a *App) loadSettings(ctx context.Context, deps *Dependencies) domain.Settings {
	settings := a.cfg.Settings()
	if deps.SettingsStore == nil {
		return settings
	}

	persisted, err := deps.SettingsStore.Load(ctx)
	switch {
	case err == nil && persisted.Version > 0:
		a.logger.InfoContext(ctx, "loaded persisted settings",
			slog.Int64("version", persisted.Version))
		return persisted
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		a.logger.WarnContext(ctx, "settings load failed, using config defaults",
			slog.Any("error", err))
	}
	return settings
}

// runFeed connects the ticker stream, subscribes to the watched markets, and
// keeps the subscription current as markets roll over. The feed reconnects
// on its own; this only manages lifecycle and subscriptions.
func (a *App) runFeed(ctx context.Context, deps *Dependencies) {
	defer deps.Feed.Close()

	if err := deps.Feed.Connect(ctx); err != nil {
		a.logger.WarnContext(ctx, "ticker feed unavailable", slog.Any("error", err))
		return
	}

	subscribed := make(map[string]struct{})
	refresh := func() {
		markets, err := deps.Exchange.GetMarkets(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "feed market discovery failed", slog.Any("error", err))
			return
		}
		var fresh []string
		for _, m := range markets {
			if _, ok := subscribed[m.ID]; !ok {
				fresh = append(fresh, m.ID)
			}
		}
		if len(fresh) == 0 {
			return
		}
		if err := deps.Feed.Subscribe(ctx, fresh); err != nil {
			a.logger.WarnContext(ctx, "feed subscribe failed",
				slog.Int("markets", len(fresh)), slog.Any("error", err))
			return
		}
		for _, id := range fresh {
			subscribed[id] = struct{}{}
		}
	}

	refresh()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
