package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Sentiment converts an externally supplied sentiment score into a
// directional signal. It emits only when the score's relevance-weighted
// confidence and magnitude both clear their thresholds.
type Sentiment struct {
	logger *slog.Logger
}

// NewSentiment creates the sentiment source.
func NewSentiment(logger *slog.Logger) *Sentiment {
	return &Sentiment{
		logger: logger.With(slog.String("source", "sentiment")),
	}
}

// Name returns the source identifier.
func (s *Sentiment) Name() string { return "sentiment" }

// Evaluate emits a signal when the market has sentiment this cycle with
// confidence above the relevance threshold and |score| above the sentiment
// threshold. Strength is the raw score; direction follows its sign.
func (s *Sentiment) Evaluate(_ context.Context, mctx MarketContext) (domain.Signal, bool, error) {
	score := mctx.Sentiment
	if score == nil {
		return domain.Signal{}, false, nil
	}
	if score.Confidence <= mctx.Settings.RelevanceThreshold {
		return domain.Signal{}, false, nil
	}
	mag := score.Score
	if mag < 0 {
		mag = -mag
	}
	if mag <= mctx.Settings.SentimentThreshold {
		return domain.Signal{}, false, nil
	}

	dir := domain.DirectionLong
	if score.Score < 0 {
		dir = domain.DirectionShort
	}

	s.logger.Debug("sentiment signal",
		slog.String("market", mctx.Market.ID),
		slog.Float64("score", score.Score),
		slog.Float64("confidence", score.Confidence),
	)

	return domain.Signal{
		Source:      s.Name(),
		MarketID:    mctx.Market.ID,
		Direction:   dir,
		Strength:    score.Score,
		Confidence:  score.Confidence,
		GeneratedAt: time.Now().UTC(),
	}, true, nil
}
