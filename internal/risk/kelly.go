// Package risk sizes trade candidates under the Kelly criterion and admits
// them against portfolio-level limits. It performs pure computation: risk
// counters are read here and mutated only by the trading loop and position
// manager.
package risk

import "math"

// Bounds keeping the win-probability estimate strictly inside (0, 1).
const (
	minWinProbability = 0.01
	maxWinProbability = 0.99
)

// WinProbability maps a candidate's strength and confidence to a win
// probability estimate. The mapping is monotonic in both inputs and bounded
// away from 0 and 1: p = 0.5 + 0.45*|strength|*confidence, clamped to
// [0.01, 0.99]. A candidate with no conviction prices as a coin flip.
func WinProbability(strength, confidence float64) float64 {
	p := 0.5 + 0.45*math.Abs(strength)*confidence
	if p < minWinProbability {
		return minWinProbability
	}
	if p > maxWinProbability {
		return maxWinProbability
	}
	return p
}

// KellyFraction returns the optimal bankroll fraction to wager given win
// probability p and payoff ratio b (win amount per unit risked). Degenerate
// inputs (p outside (0, 1), non-positive b) and negative-edge candidates
// yield 0.
func KellyFraction(p, b float64) float64 {
	if p <= 0 || p >= 1 || b <= 0 {
		return 0
	}
	f := (p*b - (1 - p)) / b
	if f <= 0 {
		return 0
	}
	return f
}

// PayoffRatio returns the payoff ratio implied by a binary contract price:
// a contract bought at price q pays 1 on a win, so the win amount per dollar
// risked is (1-q)/q. Prices outside (0, 1) yield 0.
func PayoffRatio(price float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	return (1 - price) / price
}
