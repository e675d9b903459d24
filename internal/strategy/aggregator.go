package strategy

import (
	"math"
	"sort"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Aggregate collects one cycle's signals into an ordered candidate list.
//
// Signals for the same market that agree on direction are merged: confidence
// is a confidence-weighted average of confidences and strength a
// confidence-weighted mean of strengths. If sources disagree on direction
// for a market, no candidate is produced for it this cycle: abstention beats
// guessing. Candidates are ordered by descending confidence, ties broken by
// descending strength magnitude, then market ID, so admission order is
// deterministic.
func Aggregate(signals []domain.Signal) []domain.TradeCandidate {
	byMarket := make(map[string][]domain.Signal)
	for _, sig := range signals {
		if sig.Direction == domain.DirectionFlat {
			continue
		}
		if sig.Confidence <= 0 {
			continue
		}
		byMarket[sig.MarketID] = append(byMarket[sig.MarketID], sig)
	}

	candidates := make([]domain.TradeCandidate, 0, len(byMarket))
	for marketID, group := range byMarket {
		dir := group[0].Direction
		conflict := false
		for _, sig := range group[1:] {
			if sig.Direction != dir {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}

		var weightSum, confSum, strengthSum float64
		sources := make([]string, 0, len(group))
		for _, sig := range group {
			weightSum += sig.Confidence
			confSum += sig.Confidence * sig.Confidence
			strengthSum += sig.Confidence * sig.Strength
			sources = append(sources, sig.Source)
		}
		sort.Strings(sources)

		candidates = append(candidates, domain.TradeCandidate{
			MarketID:   marketID,
			Direction:  dir,
			Strength:   strengthSum / weightSum,
			Confidence: confSum / weightSum,
			Sources:    sources,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		sa, sb := math.Abs(a.Strength), math.Abs(b.Strength)
		if sa != sb {
			return sa > sb
		}
		return a.MarketID < b.MarketID
	})
	return candidates
}
