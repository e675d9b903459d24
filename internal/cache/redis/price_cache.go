package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// historyMaxLen bounds the per-market price history list.
const historyMaxLen = 500

// PriceCache implements domain.PriceCache on Redis.
//
// Key schema:
//
//	px:{marketID}      - hash with fields "price" and "ts" (Unix nanoseconds)
//	px:hist:{marketID} - list of recent prices, oldest first, trimmed to 500
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID string) string   { return "px:" + marketID }
func historyKey(marketID string) string { return "px:hist:" + marketID }

// SetPrice stores the latest price and appends it to the bounded history.
func (pc *PriceCache) SetPrice(ctx context.Context, marketID string, price float64, ts time.Time) error {
	priceStr := strconv.FormatFloat(price, 'f', -1, 64)

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, priceKey(marketID), map[string]interface{}{
		"price": priceStr,
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	})
	pipe.RPush(ctx, historyKey(marketID), priceStr)
	pipe.LTrim(ctx, historyKey(marketID), -historyMaxLen, -1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", marketID, err)
	}
	return nil
}

// GetPrice retrieves the latest price and its timestamp. It returns
// domain.ErrNotFound when no price has been stored.
func (pc *PriceCache) GetPrice(ctx context.Context, marketID string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(marketID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", marketID, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", marketID, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// History returns up to limit recent prices in chronological order.
func (pc *PriceCache) History(ctx context.Context, marketID string, limit int) ([]float64, error) {
	if limit <= 0 || limit > historyMaxLen {
		limit = historyMaxLen
	}

	raw, err := pc.rdb.LRange(ctx, historyKey(marketID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: price history %s: %w", marketID, err)
	}

	out := make([]float64, 0, len(raw))
	for _, s := range raw {
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
