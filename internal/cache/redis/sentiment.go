package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// SentimentProvider implements domain.SentimentProvider on Redis. Scores are
// written by an external analysis process; the engine only reads them.
//
// Key schema:
//
//	sent:{marketID} - hash with fields "score", "confidence", and "ts"
//	                  (Unix nanoseconds of when the score was computed)
//
// A score older than maxAge is treated as absent rather than stale input.
type SentimentProvider struct {
	rdb    *redis.Client
	maxAge time.Duration
}

// NewSentimentProvider creates a provider reading scores no older than
// maxAge. A non-positive maxAge disables the staleness check.
func NewSentimentProvider(c *Client, maxAge time.Duration) *SentimentProvider {
	return &SentimentProvider{rdb: c.Underlying(), maxAge: maxAge}
}

// Sentiment returns the current score for a market. The second return value
// is false when no fresh score exists, which is not an error.
func (p *SentimentProvider) Sentiment(ctx context.Context, marketID string) (domain.SentimentScore, bool, error) {
	fields, err := p.rdb.HGetAll(ctx, "sent:"+marketID).Result()
	if err != nil {
		return domain.SentimentScore{}, false, err
	}
	if len(fields) == 0 {
		return domain.SentimentScore{}, false, nil
	}

	score, err := strconv.ParseFloat(fields["score"], 64)
	if err != nil {
		return domain.SentimentScore{}, false, nil
	}
	confidence, err := strconv.ParseFloat(fields["confidence"], 64)
	if err != nil {
		return domain.SentimentScore{}, false, nil
	}

	if p.maxAge > 0 {
		ns, err := strconv.ParseInt(fields["ts"], 10, 64)
		if err != nil {
			return domain.SentimentScore{}, false, nil
		}
		if time.Since(time.Unix(0, ns)) > p.maxAge {
			return domain.SentimentScore{}, false, nil
		}
	}

	return domain.SentimentScore{Score: score, Confidence: confidence}, true, nil
}

var _ domain.SentimentProvider = (*SentimentProvider)(nil)
