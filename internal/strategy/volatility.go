package strategy

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// GARCH(1,1) persistence and decay parameters for the conditional-volatility
// forecast. Alpha weights the latest squared shock, beta the previous
// conditional variance; omega is derived so the long-run variance matches
// the sample.
const (
	garchAlpha = 0.10
	garchBeta  = 0.85
)

// Trend thresholds: price must move more than this fraction over the window
// to count as a directional trend.
const trendThreshold = 0.02

// Volatility classifies each market's volatility regime from rolling
// historical volatility plus a GARCH-style conditional forecast, and emits
// mean-reversion signals in high-regime breakouts and momentum signals in
// sustained low-to-rising transitions.
type Volatility struct {
	logger *slog.Logger
}

// NewVolatility creates the volatility source.
func NewVolatility(logger *slog.Logger) *Volatility {
	return &Volatility{
		logger: logger.With(slog.String("source", "volatility")),
	}
}

// Name returns the source identifier.
func (v *Volatility) Name() string { return "volatility" }

// Evaluate computes the market's volatility regime and emits at most one
// signal per cycle. Insufficient history yields no signal, never an error.
func (v *Volatility) Evaluate(_ context.Context, mctx MarketContext) (domain.Signal, bool, error) {
	window := mctx.Settings.VolatilityWindow
	hist := mctx.History
	if window < 2 || len(hist) < 3*window {
		return domain.Signal{}, false, nil
	}

	returns := logReturns(hist)
	current := rollingVol(returns, window)
	if current == 0 {
		return domain.Signal{}, false, nil
	}

	regime, regimeConf := classifyRegime(returns, window)
	forecast := garchForecast(returns)
	rising := forecast > current*1.1
	trend := detectTrend(hist, window)

	var (
		dir      domain.Direction
		strength float64
		conf     float64
	)
	switch {
	case regime == domain.RegimeHigh && regimeConf > 0.6:
		// Breakout in a stretched regime: fade the move.
		switch trend {
		case trendUp:
			dir = domain.DirectionShort
			strength = -regimeConf
		case trendDown:
			dir = domain.DirectionLong
			strength = regimeConf
		default:
			return domain.Signal{}, false, nil
		}
		conf = regimeConf * 0.8
	case regime == domain.RegimeLow && regimeConf > 0.5 && rising:
		// Quiet market waking up: ride the move.
		switch trend {
		case trendUp:
			dir = domain.DirectionLong
			strength = regimeConf * 0.8
		case trendDown:
			dir = domain.DirectionShort
			strength = -regimeConf * 0.8
		default:
			return domain.Signal{}, false, nil
		}
		conf = regimeConf * 0.6
	default:
		return domain.Signal{}, false, nil
	}

	v.logger.Debug("volatility signal",
		slog.String("market", mctx.Market.ID),
		slog.String("regime", string(regime)),
		slog.Float64("current_vol", current),
		slog.Float64("forecast_vol", forecast),
	)

	return domain.Signal{
		Source:      v.Name(),
		MarketID:    mctx.Market.ID,
		Direction:   dir,
		Strength:    strength,
		Confidence:  conf,
		GeneratedAt: time.Now().UTC(),
	}, true, nil
}

// Regime classifies the market's current volatility regime from its price
// history, for callers outside signal evaluation (stop-band scaling).
func (v *Volatility) Regime(history []float64, window int) domain.VolRegime {
	if window < 2 || len(history) < 3*window {
		return domain.RegimeUnknown
	}
	regime, _ := classifyRegime(logReturns(history), window)
	return regime
}

type trendDir int

const (
	trendSideways trendDir = iota
	trendUp
	trendDown
)

// detectTrend compares the latest price against the price one window ago.
func detectTrend(prices []float64, window int) trendDir {
	if len(prices) < window+1 {
		return trendSideways
	}
	ref := prices[len(prices)-window-1]
	last := prices[len(prices)-1]
	if ref <= 0 {
		return trendSideways
	}
	change := (last - ref) / ref
	switch {
	case change > trendThreshold:
		return trendUp
	case change < -trendThreshold:
		return trendDown
	default:
		return trendSideways
	}
}

// logReturns returns the log-return series of the price history, skipping
// non-positive prices.
func logReturns(prices []float64) []float64 {
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		out = append(out, math.Log(prices[i]/prices[i-1]))
	}
	return out
}

// rollingVol is the population standard deviation of the trailing window of
// returns.
func rollingVol(returns []float64, window int) float64 {
	if len(returns) < window {
		return 0
	}
	_, std := meanStd(returns[len(returns)-window:])
	return std
}

// classifyRegime places the current rolling volatility within the trailing
// distribution of rolling volatilities and maps its percentile rank to a
// regime. Confidence grows with distance from the median.
func classifyRegime(returns []float64, window int) (domain.VolRegime, float64) {
	var vols []float64
	for end := window; end <= len(returns); end++ {
		_, std := meanStd(returns[end-window : end])
		vols = append(vols, std)
	}
	if len(vols) < 2 {
		return domain.RegimeUnknown, 0
	}
	current := vols[len(vols)-1]

	below := 0
	for _, v := range vols {
		if v < current {
			below++
		}
	}
	pct := float64(below) / float64(len(vols))

	regime := domain.RegimeNormal
	switch {
	case pct < 0.25:
		regime = domain.RegimeLow
	case pct > 0.75:
		regime = domain.RegimeHigh
	}
	conf := math.Min(math.Abs(pct-0.5)/0.25, 1)
	return regime, conf
}

// garchForecast runs the GARCH(1,1) variance recursion over the return
// series, seeded with the sample variance, and returns the one-step-ahead
// volatility forecast.
func garchForecast(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	_, std := meanStd(returns)
	longRun := std * std
	if longRun == 0 {
		return 0
	}
	omega := longRun * (1 - garchAlpha - garchBeta)

	sigma2 := longRun
	for _, r := range returns {
		sigma2 = omega + garchAlpha*r*r + garchBeta*sigma2
	}
	return math.Sqrt(sigma2)
}
