package risk

import (
	"log/slog"
	"math"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Manager gates trade candidates through the portfolio's risk limits and
// converts the survivors into order quantities.
type Manager struct {
	logger *slog.Logger
}

// NewManager creates a risk manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger.With(slog.String("component", "risk")),
	}
}

// SizeAndAdmit evaluates a single candidate against the current portfolio
// state and, if admitted, returns the order quantity to submit. Checks run
// in a fixed order so the cheapest disqualifiers fire first: open-position
// cap, daily-loss breaker, correlation-group exposure, then Kelly sizing
// and the minimum-quantity floor. The reject reason names the first check
// that failed.
func (m *Manager) SizeAndAdmit(
	candidate domain.TradeCandidate,
	market domain.MarketSnapshot,
	settings domain.Settings,
	portfolio domain.PortfolioState,
) domain.Decision {
	params := settings.Risk

	if portfolio.OpenPositionsCount >= params.MaxOpenPositions {
		return m.reject(candidate, domain.RejectMaxPositions)
	}

	if portfolio.DailyLossTripped {
		return m.reject(candidate, domain.RejectDailyLossBreaker)
	}

	groupCap := params.CorrelationLimit * params.Bankroll
	groupUsed := portfolio.ExposureByGroup[market.EventTicker]
	if groupUsed >= groupCap {
		return m.reject(candidate, domain.RejectCorrelationLimit)
	}

	price := market.Price(candidate.Direction)
	p := WinProbability(candidate.Strength, candidate.Confidence)
	b := PayoffRatio(price)
	f := KellyFraction(p, b)
	if f == 0 {
		return m.reject(candidate, domain.RejectNoEdge)
	}

	size := f * params.KellyScalingFactor * params.Bankroll
	if maxSize := params.MaxPositionPct * params.Bankroll; size > maxSize {
		size = maxSize
	}
	if remaining := groupCap - groupUsed; size > remaining {
		size = remaining
	}

	quantity := int64(math.Floor(size / price))
	if quantity < settings.MinQuantity {
		return m.reject(candidate, domain.RejectBelowMinimum)
	}

	m.logger.Debug("candidate admitted",
		slog.String("market_id", candidate.MarketID),
		slog.String("direction", string(candidate.Direction)),
		slog.Float64("win_probability", p),
		slog.Float64("kelly_fraction", f),
		slog.Int64("quantity", quantity))

	return domain.Decision{Execute: true, Quantity: quantity}
}

func (m *Manager) reject(candidate domain.TradeCandidate, reason string) domain.Decision {
	m.logger.Debug("candidate rejected",
		slog.String("market_id", candidate.MarketID),
		slog.String("reason", reason))
	return domain.Decision{Reason: reason}
}
