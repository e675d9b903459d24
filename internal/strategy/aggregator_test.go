package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

func sig(market, source string, dir domain.Direction, strength, confidence float64) domain.Signal {
	return domain.Signal{
		Source:     source,
		MarketID:   market,
		Direction:  dir,
		Strength:   strength,
		Confidence: confidence,
	}
}

func TestAggregateSkipsFlatAndZeroConfidence(t *testing.T) {
	out := Aggregate([]domain.Signal{
		sig("A", "sentiment", domain.DirectionFlat, 0.5, 0.8),
		sig("B", "stat_arb", domain.DirectionLong, 0.5, 0),
	})
	assert.Empty(t, out)
}

func TestAggregateMergesAgreeingSignals(t *testing.T) {
	out := Aggregate([]domain.Signal{
		sig("A", "sentiment", domain.DirectionLong, 0.8, 0.6),
		sig("A", "volatility", domain.DirectionLong, 0.4, 0.2),
	})
	require.Len(t, out, 1)

	c := out[0]
	assert.Equal(t, "A", c.MarketID)
	assert.Equal(t, domain.DirectionLong, c.Direction)
	// Confidence-weighted: (0.6*0.8 + 0.2*0.4) / 0.8
	assert.InDelta(t, 0.70, c.Strength, 1e-9)
	// (0.6*0.6 + 0.2*0.2) / 0.8
	assert.InDelta(t, 0.50, c.Confidence, 1e-9)
	assert.Equal(t, []string{"sentiment", "volatility"}, c.Sources)
}

func TestAggregateConflictingDirectionsAbstain(t *testing.T) {
	out := Aggregate([]domain.Signal{
		sig("A", "sentiment", domain.DirectionLong, 0.8, 0.9),
		sig("A", "stat_arb", domain.DirectionShort, -0.8, 0.9),
		sig("B", "volatility", domain.DirectionShort, -0.5, 0.4),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "B", out[0].MarketID)
}

func TestAggregateOrdering(t *testing.T) {
	out := Aggregate([]domain.Signal{
		sig("C", "sentiment", domain.DirectionLong, 0.2, 0.5),
		sig("A", "sentiment", domain.DirectionShort, -0.9, 0.5),
		sig("B", "sentiment", domain.DirectionLong, 0.4, 0.8),
		sig("D", "sentiment", domain.DirectionLong, 0.2, 0.5),
	})
	require.Len(t, out, 4)

	// Highest confidence first, then larger |strength|, then market ID.
	assert.Equal(t, "B", out[0].MarketID)
	assert.Equal(t, "A", out[1].MarketID)
	assert.Equal(t, "C", out[2].MarketID)
	assert.Equal(t, "D", out[3].MarketID)
}
