// Package notify fans operator alerts out to the configured channels.
// Delivery is best-effort: a failing channel never blocks the trading loop,
// and event classes can be filtered so operators only hear about what they
// care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Event classes a notifier can be subscribed to.
const (
	EventTrades    = "trades"
	EventRisk      = "risk"
	EventLifecycle = "lifecycle"
	EventSettings  = "settings"
)

// Sender delivers one alert over one channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to every configured sender. An empty event
// filter admits everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier builds a notifier delivering to the given senders, restricted
// to the named event classes (all classes when the list is empty).
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// TradeOpened announces a newly opened position.
func (n *Notifier) TradeOpened(ctx context.Context, pos domain.Position) {
	n.notify(ctx, EventTrades, "Position opened",
		fmt.Sprintf("%s %s x%d @ %.2f (stop %.2f, source %s)",
			pos.Direction, pos.MarketID, pos.Quantity, pos.EntryPrice,
			pos.StopLossPrice, pos.StrategySource))
}

// TradeClosed announces a closed position and its result.
func (n *Notifier) TradeClosed(ctx context.Context, trade domain.Trade) {
	n.notify(ctx, EventTrades, "Position closed",
		fmt.Sprintf("%s %s x%d @ %.2f -> %.2f | PnL %+.2f (%s)",
			trade.Direction, trade.MarketID, trade.Quantity,
			trade.EntryPrice, trade.ExitPrice, trade.PnL, trade.ExitReason))
}

// BreakerTripped announces the daily-loss circuit breaker latching.
func (n *Notifier) BreakerTripped(ctx context.Context, loss, limit float64) {
	n.notify(ctx, EventRisk, "Daily loss breaker tripped",
		fmt.Sprintf("daily loss %.2f exceeded limit %.2f; no new entries until next trading day", loss, limit))
}

// SettingsChanged announces a settings update.
func (n *Notifier) SettingsChanged(ctx context.Context, version int64, fields []string) {
	n.notify(ctx, EventSettings, "Settings updated",
		fmt.Sprintf("version %d: %s", version, strings.Join(fields, ", ")))
}

// Lifecycle announces engine start/stop transitions.
func (n *Notifier) Lifecycle(ctx context.Context, message string) {
	n.notify(ctx, EventLifecycle, "Engine", message)
}

func (n *Notifier) notify(ctx context.Context, event, title, message string) {
	if n == nil {
		return
	}
	if len(n.events) > 0 && !n.events[event] {
		return
	}
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Warn("sender failed",
				slog.String("sender", s.Name()),
				slog.Any("error", err))
		}
	}
}
