// Package position owns the open position book and the exit rules that move
// positions through their lifecycle. The in-memory book is authoritative;
// the configured stores are best-effort mirrors for restart recovery.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Manager tracks open positions and evaluates exits once per cycle. All
// mutation goes through the manager; callers only ever see copies.
type Manager struct {
	exchange  domain.ExchangeClient
	positions domain.PositionStore
	trades    domain.TradeStore
	logger    *slog.Logger

	mu   sync.Mutex
	book map[string]*domain.Position // keyed by position ID
}

// NewManager creates a position manager. The position and trade stores may
// be nil when persistence is not configured.
func NewManager(exchange domain.ExchangeClient, positions domain.PositionStore, trades domain.TradeStore, logger *slog.Logger) *Manager {
	return &Manager{
		exchange:  exchange,
		positions: positions,
		trades:    trades,
		logger:    logger.With(slog.String("component", "position")),
		book:      make(map[string]*domain.Position),
	}
}

// Restore seeds the book from previously persisted open positions.
func (m *Manager) Restore(positions []domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range positions {
		p := p
		m.book[p.ID] = &p
	}
	if len(positions) > 0 {
		m.logger.Info("restored open positions", slog.Int("count", len(positions)))
	}
}

// HasOpen reports whether a position is already open in the given market.
func (m *Manager) HasOpen(marketID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.book {
		if p.MarketID == marketID {
			return true
		}
	}
	return false
}

// ListOpen returns a copy of the open position book.
func (m *Manager) ListOpen() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, 0, len(m.book))
	for _, p := range m.book {
		out = append(out, *p)
	}
	return out
}

// Open records a freshly filled entry as an open position. Fills arrive in
// the bought side's terms; short entries (NO fills) are converted to YES
// terms here so every tracked price shares one frame. The initial stop sits
// a fixed fraction below entry for longs and above it for shorts; the
// trailing high-water mark starts at entry.
func (m *Manager) Open(ctx context.Context, c domain.TradeCandidate, market domain.MarketSnapshot, fill domain.Fill, params domain.RiskParameters) (domain.Position, error) {
	m.mu.Lock()
	for _, p := range m.book {
		if p.MarketID == c.MarketID {
			m.mu.Unlock()
			return domain.Position{}, fmt.Errorf("position: open %s: %w", c.MarketID, domain.ErrAlreadyExists)
		}
	}

	entry := fill.Price
	if c.Direction == domain.DirectionShort {
		entry = 1 - fill.Price
	}
	source := ""
	if len(c.Sources) > 0 {
		source = c.Sources[0]
	}
	pos := domain.Position{
		ID:             uuid.NewString(),
		MarketID:       c.MarketID,
		EventTicker:    market.EventTicker,
		Category:       market.Category,
		StrategySource: source,
		Direction:      c.Direction,
		EntryPrice:     entry,
		CurrentPrice:   entry,
		Quantity:       fill.Quantity,
		StopLossPrice:  initialStop(c.Direction, entry, params.StopLossPct),
		TrailingHWM:    entry,
		Expiry:         market.Expiry,
		OpenedAt:       time.Now().UTC(),
		State:          domain.PositionStateOpened,
	}
	m.book[pos.ID] = &pos
	m.mu.Unlock()

	if m.positions != nil {
		if err := m.positions.Create(ctx, pos); err != nil {
			m.logger.Warn("position mirror write failed",
				slog.String("position_id", pos.ID), slog.Any("error", err))
		}
	}

	m.logger.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.String("market_id", pos.MarketID),
		slog.String("direction", string(pos.Direction)),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Int64("quantity", pos.Quantity),
		slog.Float64("stop_loss", pos.StopLossPrice))
	return pos, nil
}

func initialStop(d domain.Direction, entry, stopPct float64) float64 {
	if d == domain.DirectionShort {
		return entry * (1 + stopPct)
	}
	return entry * (1 - stopPct)
}

// CheckExits marks every open position to the latest snapshot, ratchets
// trailing stops, and closes positions whose exit conditions fire. Exit
// checks run in a fixed order per position: expiry floor, stop band, take
// profit. Each close produces exactly one trade record. Surviving positions
// are mirrored to the store so a ratcheted stop survives a restart.
func (m *Manager) CheckExits(
	ctx context.Context,
	markets map[string]domain.MarketSnapshot,
	regimes map[string]domain.VolRegime,
	settings domain.Settings,
	now time.Time,
) []domain.Trade {
	params := settings.Risk

	type exit struct {
		pos    domain.Position
		reason domain.ExitReason
	}
	var exits []exit
	var corrupt []domain.Position
	var updated []domain.Position

	m.mu.Lock()
	for _, p := range m.book {
		if p.Quantity <= 0 || p.EntryPrice <= 0 || p.EntryPrice >= 1 {
			corrupt = append(corrupt, *p)
			delete(m.book, p.ID)
			continue
		}
		snap, ok := markets[p.MarketID]
		if !ok {
			continue // no fresh quote this cycle, hold the last mark
		}
		price := snap.YesPrice
		if price <= 0 || price >= 1 {
			continue
		}
		p.CurrentPrice = price
		if p.State == domain.PositionStateOpened {
			p.State = domain.PositionStateMonitoring
		}

		if params.TrailingStopEnabled {
			ratchet(p, params.StopLossPct)
		}

		if reason, due := exitReason(p, price, regimes[p.MarketID], settings, now); due {
			exits = append(exits, exit{pos: *p, reason: reason})
		} else {
			updated = append(updated, *p)
		}
	}
	m.mu.Unlock()

	if m.positions != nil {
		for _, p := range updated {
			if err := m.positions.Update(ctx, p); err != nil {
				m.logger.Warn("position mirror update failed",
					slog.String("position_id", p.ID), slog.Any("error", err))
			}
		}
	}

	var closed []domain.Trade
	for _, p := range corrupt {
		closed = append(closed, m.forceClose(ctx, p))
	}
	for _, e := range exits {
		trade, err := m.close(ctx, e.pos, e.reason)
		if err != nil {
			m.logger.Error("exit failed",
				slog.String("position_id", e.pos.ID),
				slog.String("reason", string(e.reason)),
				slog.Any("error", err))
			continue
		}
		closed = append(closed, trade)
	}
	return closed
}

// ratchet advances the trailing high-water mark and pulls the stop along
// behind it. The stop only ever moves in the profit-protecting direction.
func ratchet(p *domain.Position, stopPct float64) {
	if p.Direction == domain.DirectionShort {
		if p.CurrentPrice < p.TrailingHWM {
			p.TrailingHWM = p.CurrentPrice
		}
		if stop := p.TrailingHWM * (1 + stopPct); stop < p.StopLossPrice {
			p.StopLossPrice = stop
		}
		return
	}
	if p.CurrentPrice > p.TrailingHWM {
		p.TrailingHWM = p.CurrentPrice
	}
	if stop := p.TrailingHWM * (1 - stopPct); stop > p.StopLossPrice {
		p.StopLossPrice = stop
	}
}

// exitReason decides whether the position should be closed at the current
// mark and why. The stop trigger is the stored stop level with its distance
// from the trailing reference scaled by the market's volatility regime, so
// choppy markets get more room and quiet markets less.
func exitReason(p *domain.Position, price float64, regime domain.VolRegime, settings domain.Settings, now time.Time) (domain.ExitReason, bool) {
	if !p.Expiry.IsZero() && p.Expiry.Sub(now) <= settings.ExpiryFloor {
		return domain.ExitReasonTimeDecay, true
	}

	params := settings.Risk
	scale := regime.StopBandScale()
	if p.Direction == domain.DirectionShort {
		trigger := p.TrailingHWM + (p.StopLossPrice-p.TrailingHWM)*scale
		if price >= trigger {
			return stopKind(p, params.StopLossPct), true
		}
	} else {
		trigger := p.TrailingHWM - (p.TrailingHWM-p.StopLossPrice)*scale
		if price <= trigger {
			return stopKind(p, params.StopLossPct), true
		}
	}

	if params.TakeProfitPct > 0 && p.UnrealizedPnL(price) >= params.TakeProfitPct*p.Notional() {
		return domain.ExitReasonTakeProfit, true
	}
	return "", false
}

// stopKind distinguishes a ratcheted trailing stop from the original
// entry-anchored stop.
func stopKind(p *domain.Position, stopPct float64) domain.ExitReason {
	if p.StopLossPrice != initialStop(p.Direction, p.EntryPrice, stopPct) {
		return domain.ExitReasonTrailingStop
	}
	return domain.ExitReasonStopLoss
}

// forceClose removes a position whose recorded state violates its own
// invariants. No unwinding order is submitted; there is nothing trustworthy
// to unwind. The trade record carries the last mark so the removal is
// visible in the ledger rather than silent.
func (m *Manager) forceClose(ctx context.Context, pos domain.Position) domain.Trade {
	now := time.Now().UTC()
	trade := domain.Trade{
		ID:             uuid.NewString(),
		PositionID:     pos.ID,
		MarketID:       pos.MarketID,
		StrategySource: pos.StrategySource,
		Direction:      pos.Direction,
		EntryPrice:     pos.EntryPrice,
		ExitPrice:      pos.CurrentPrice,
		Quantity:       pos.Quantity,
		OpenedAt:       pos.OpenedAt,
		ClosedAt:       now,
		ExitReason:     domain.ExitReasonManual,
	}

	m.logger.Error("inconsistent position force-closed",
		slog.String("position_id", pos.ID),
		slog.String("market_id", pos.MarketID),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Int64("quantity", pos.Quantity),
		slog.Any("error", domain.ErrInvalidPosition))

	if m.positions != nil {
		if err := m.positions.Close(ctx, pos.ID, pos.CurrentPrice, domain.ExitReasonManual, now); err != nil {
			m.logger.Warn("position mirror close failed",
				slog.String("position_id", pos.ID), slog.Any("error", err))
		}
	}
	if m.trades != nil {
		if err := m.trades.Insert(ctx, trade); err != nil {
			m.logger.Warn("trade mirror write failed",
				slog.String("trade_id", trade.ID), slog.Any("error", err))
		}
	}
	return trade
}

// ClosePosition closes one position on demand, outside the per-cycle exit
// checks.
func (m *Manager) ClosePosition(ctx context.Context, id string, reason domain.ExitReason) (domain.Trade, error) {
	m.mu.Lock()
	p, ok := m.book[id]
	if !ok {
		m.mu.Unlock()
		return domain.Trade{}, fmt.Errorf("position: close %s: %w", id, domain.ErrNotFound)
	}
	pos := *p
	m.mu.Unlock()

	return m.close(ctx, pos, reason)
}

// close unwinds the position on the exchange and converts it into its trade
// record. The position leaves the book only after the closing order fills,
// so a rejected order leaves it open for the next cycle. Closing buys the
// opposite side, which nets both legs at settlement; the fill arrives in
// that side's terms and is converted back to YES terms here.
func (m *Manager) close(ctx context.Context, pos domain.Position, reason domain.ExitReason) (domain.Trade, error) {
	fill, err := m.exchange.SubmitOrder(ctx, pos.MarketID, pos.Direction.Opposite(), pos.Quantity)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("position: close %s: %w", pos.ID, err)
	}
	exitPrice := fill.Price
	if pos.Direction == domain.DirectionLong {
		// Closing a long buys NO; the YES-terms exit is the complement.
		exitPrice = 1 - fill.Price
	}

	now := time.Now().UTC()
	trade := domain.Trade{
		ID:             uuid.NewString(),
		PositionID:     pos.ID,
		MarketID:       pos.MarketID,
		StrategySource: pos.StrategySource,
		Direction:      pos.Direction,
		EntryPrice:     pos.EntryPrice,
		ExitPrice:      exitPrice,
		Quantity:       pos.Quantity,
		PnL:            pos.UnrealizedPnL(exitPrice),
		OpenedAt:       pos.OpenedAt,
		ClosedAt:       now,
		ExitReason:     reason,
	}

	m.mu.Lock()
	delete(m.book, pos.ID)
	m.mu.Unlock()

	if m.positions != nil {
		if err := m.positions.Close(ctx, pos.ID, exitPrice, reason, now); err != nil {
			m.logger.Warn("position mirror close failed",
				slog.String("position_id", pos.ID), slog.Any("error", err))
		}
	}
	if m.trades != nil {
		if err := m.trades.Insert(ctx, trade); err != nil {
			m.logger.Warn("trade mirror write failed",
				slog.String("trade_id", trade.ID), slog.Any("error", err))
		}
	}

	m.logger.Info("position closed",
		slog.String("position_id", pos.ID),
		slog.String("market_id", pos.MarketID),
		slog.String("exit_reason", string(reason)),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("pnl", trade.PnL))
	return trade, nil
}

// Portfolio derives the current portfolio view from the open book and
// today's realized results. Exposure is grouped by event ticker, falling
// back to category for ungrouped markets.
func (m *Manager) Portfolio(realizedToday float64, breakerTripped bool, now time.Time) domain.PortfolioState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := domain.PortfolioState{
		OpenPositionsCount: len(m.book),
		RealizedPnLToday:   realizedToday,
		ExposureByGroup:    make(map[string]float64, len(m.book)),
		DailyLossTripped:   breakerTripped,
		ComputedAt:         now,
	}
	for _, p := range m.book {
		state.UnrealizedPnL += p.UnrealizedPnL(p.CurrentPrice)
		group := p.EventTicker
		if group == "" {
			group = p.Category
		}
		state.ExposureByGroup[group] += p.Notional()
	}
	return state
}
