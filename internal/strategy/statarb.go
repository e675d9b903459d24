package strategy

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// minPairHistory is the minimum aligned history length required before the
// cointegration model is fitted. Below it the source abstains.
const minPairHistory = 50

// zScoreCap is the |z-score| at which signal strength and confidence
// saturate at 1.
const zScoreCap = 3.0

// StatArb looks for a stable long-run relationship between a market and its
// event-group siblings, and signals mean reversion when the observed spread
// deviates far enough from its modeled equilibrium.
type StatArb struct {
	minHistory int
	logger     *slog.Logger
}

// NewStatArb creates the statistical-arbitrage source.
func NewStatArb(logger *slog.Logger) *StatArb {
	return &StatArb{
		minHistory: minPairHistory,
		logger:     logger.With(slog.String("source", "stat_arb")),
	}
}

// Name returns the source identifier.
func (a *StatArb) Name() string { return "stat_arb" }

// Evaluate tests this market against each related market for cointegration
// and emits a signal for the pair with the most extreme spread z-score
// beyond the arbitrage threshold. A positive z-score means this market is
// rich relative to its peer, so the signal is short; a negative z-score
// means it is cheap, so the signal is long.
func (a *StatArb) Evaluate(_ context.Context, mctx MarketContext) (domain.Signal, bool, error) {
	hist := mctx.History
	if len(hist) < a.minHistory || len(mctx.Related) == 0 {
		return domain.Signal{}, false, nil
	}

	peers := make([]string, 0, len(mctx.Related))
	for id := range mctx.Related {
		peers = append(peers, id)
	}
	sort.Strings(peers)

	threshold := mctx.Settings.ArbitrageThreshold
	var (
		bestZ    float64
		bestPeer string
		found    bool
	)
	for _, peerID := range peers {
		peerHist := mctx.Related[peerID]
		n := len(hist)
		if len(peerHist) < n {
			n = len(peerHist)
		}
		if n < a.minHistory {
			continue
		}
		own := hist[len(hist)-n:]
		peer := peerHist[len(peerHist)-n:]

		ct := testCointegration(own, peer)
		if !ct.cointegrated {
			continue
		}

		z, ok := spreadZScore(own, peer)
		if !ok || math.Abs(z) <= threshold {
			continue
		}
		if !found || math.Abs(z) > math.Abs(bestZ) {
			bestZ = z
			bestPeer = peerID
			found = true
		}
	}
	if !found {
		return domain.Signal{}, false, nil
	}

	dir := domain.DirectionLong
	if bestZ > 0 {
		dir = domain.DirectionShort
	}
	magnitude := math.Min(math.Abs(bestZ)/zScoreCap, 1)
	strength := magnitude
	if dir == domain.DirectionShort {
		strength = -magnitude
	}

	a.logger.Debug("stat-arb signal",
		slog.String("market", mctx.Market.ID),
		slog.String("peer", bestPeer),
		slog.Float64("z_score", bestZ),
	)

	return domain.Signal{
		Source:      a.Name(),
		MarketID:    mctx.Market.ID,
		Direction:   dir,
		Strength:    strength,
		Confidence:  magnitude,
		GeneratedAt: time.Now().UTC(),
	}, true, nil
}

// cointResult summarizes an Engle-Granger cointegration test.
type cointResult struct {
	cointegrated bool
	tStat        float64
	confidence   float64
}

// testCointegration runs the two-step Engle-Granger procedure: fit the
// long-run relationship y = alpha + beta*x by least squares, then apply a
// Dickey-Fuller test to the residuals. Critical values are the Engle-Granger
// two-variable values with a constant term.
func testCointegration(y, x []float64) cointResult {
	alpha, beta, ok := olsFit(x, y)
	if !ok {
		return cointResult{}
	}
	resid := make([]float64, len(y))
	for i := range y {
		resid[i] = y[i] - alpha - beta*x[i]
	}
	t, ok := dfTStat(resid)
	if !ok {
		return cointResult{}
	}

	res := cointResult{tStat: t}
	switch {
	case t < -3.90:
		res.confidence = 0.99
	case t < -3.34:
		res.confidence = 0.95
	case t < -3.04:
		res.confidence = 0.90
	}
	res.cointegrated = t < -3.34
	return res
}

// olsFit returns the intercept and slope of the least-squares line y on x.
// ok is false when x has no variance.
func olsFit(x, y []float64) (alpha, beta float64, ok bool) {
	n := float64(len(x))
	if n < 2 {
		return 0, 0, false
	}
	var sumX, sumY, sumXY, sumXX float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXX += x[i] * x[i]
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0, 0, false
	}
	beta = (n*sumXY - sumX*sumY) / den
	alpha = (sumY - beta*sumX) / n
	return alpha, beta, true
}

// dfTStat computes the no-constant Dickey-Fuller t-statistic for the
// regression of the first difference on the lagged level. A strongly
// negative value indicates the series mean-reverts.
func dfTStat(e []float64) (float64, bool) {
	n := len(e)
	if n < 3 {
		return 0, false
	}
	var sxy, sxx float64
	for t := 1; t < n; t++ {
		d := e[t] - e[t-1]
		sxy += e[t-1] * d
		sxx += e[t-1] * e[t-1]
	}
	if sxx == 0 {
		return 0, false
	}
	gamma := sxy / sxx

	var sse float64
	for t := 1; t < n; t++ {
		r := (e[t] - e[t-1]) - gamma*e[t-1]
		sse += r * r
	}
	dof := float64(n - 2)
	if dof <= 0 || sse == 0 {
		return 0, false
	}
	se := math.Sqrt(sse / dof / sxx)
	if se == 0 {
		return 0, false
	}
	return gamma / se, true
}

// spreadZScore standardizes both series, takes their difference, and
// returns the z-score of the latest spread observation relative to the
// spread's own mean and deviation. ok is false when either series is flat.
func spreadZScore(a, b []float64) (float64, bool) {
	an, ok := standardize(a)
	if !ok {
		return 0, false
	}
	bn, ok := standardize(b)
	if !ok {
		return 0, false
	}
	spread := make([]float64, len(an))
	for i := range an {
		spread[i] = an[i] - bn[i]
	}
	mean, std := meanStd(spread)
	if std == 0 {
		return 0, false
	}
	return (spread[len(spread)-1] - mean) / std, true
}

func standardize(xs []float64) ([]float64, bool) {
	mean, std := meanStd(xs)
	if std == 0 {
		return nil, false
	}
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = (x - mean) / std
	}
	return out, true
}

func meanStd(xs []float64) (mean, std float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= n
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= n
	return mean, math.Sqrt(variance)
}
