// Package strategy implements the engine's signal sources and the per-cycle
// signal aggregator. Sources are a closed set of variants behind one
// evaluation capability; the aggregator and the trading loop never depend on
// a concrete source's internals.
package strategy

import (
	"context"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// MarketContext bundles everything a source may evaluate for one market in
// one cycle. All rolling state is passed explicitly so sources stay
// deterministic given identical inputs.
type MarketContext struct {
	Market domain.MarketSnapshot
	// History holds recent YES prices in chronological order.
	History []float64
	// Related maps sibling markets in the same event group to their price
	// histories, for pair analysis.
	Related map[string][]float64
	// Sentiment is the externally supplied score for this market, nil when
	// absent this cycle.
	Sentiment *domain.SentimentScore
	// Settings is the cycle's settings snapshot.
	Settings domain.Settings
}

// Source is the shared capability all signal sources implement. A source
// never fails on missing or insufficient data: it returns ok=false (absence,
// not error). Errors are reserved for genuine faults and cause only that
// source's contribution to be dropped for the cycle.
type Source interface {
	Name() string
	Evaluate(ctx context.Context, mctx MarketContext) (domain.Signal, bool, error)
}
