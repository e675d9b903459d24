package strategy

import (
	"sync"
	"time"
)

// pricePoint records a single price observation at a point in time.
type pricePoint struct {
	price float64
	at    time.Time
}

// HistoryBook maintains a bounded chronological price history per market.
// The trading loop records one point per market per cycle; sources receive
// copies so their inputs stay immutable. Safe for concurrent use.
type HistoryBook struct {
	mu     sync.RWMutex
	points map[string][]pricePoint
	maxLen int
}

// NewHistoryBook creates a HistoryBook that retains up to maxLen points per
// market; older points are discarded.
func NewHistoryBook(maxLen int) *HistoryBook {
	if maxLen < 2 {
		maxLen = 2
	}
	return &HistoryBook{
		points: make(map[string][]pricePoint),
		maxLen: maxLen,
	}
}

// Track records a new price observation for the given market.
func (h *HistoryBook) Track(marketID string, price float64, ts time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pts := append(h.points[marketID], pricePoint{price: price, at: ts})
	if overflow := len(pts) - h.maxLen; overflow > 0 {
		pts = append([]pricePoint(nil), pts[overflow:]...)
	}
	h.points[marketID] = pts
}

// Seed replaces a market's history with the given chronological prices,
// typically loaded from the price cache at startup.
func (h *HistoryBook) Seed(marketID string, prices []float64, ts time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := 0
	if overflow := len(prices) - h.maxLen; overflow > 0 {
		start = overflow
	}
	pts := make([]pricePoint, 0, len(prices)-start)
	for _, p := range prices[start:] {
		pts = append(pts, pricePoint{price: p, at: ts})
	}
	h.points[marketID] = pts
}

// Prices returns a copy of the market's price history in chronological
// order. The returned slice is safe to mutate.
func (h *HistoryBook) Prices(marketID string) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	pts := h.points[marketID]
	if len(pts) == 0 {
		return nil
	}
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.price
	}
	return out
}

// Len returns the number of recorded points for a market.
func (h *HistoryBook) Len(marketID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.points[marketID])
}
