package engine

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// StrategyPerformance is the per-source slice of the performance report.
type StrategyPerformance struct {
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	PnL     float64 `json:"pnl"`
	WinRate float64 `json:"win_rate"`
}

// PerformanceReport summarizes the closed trade ledger.
type PerformanceReport struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	TotalPnL    float64 `json:"total_pnl"`
	AvgReturn   float64 `json:"avg_return"`
	// SharpeRatio is the mean per-trade return over its standard
	// deviation; 0 until at least two trades have closed.
	SharpeRatio float64 `json:"sharpe_ratio"`
	// MaxDrawdown is the largest peak-to-trough fall of the cumulative
	// PnL curve, in dollars.
	MaxDrawdown float64                        `json:"max_drawdown"`
	ByStrategy  map[string]StrategyPerformance `json:"by_strategy"`
}

// PerformanceTracker accumulates closed trades and derives summary metrics
// on demand. Trades are ingested in close order; breakeven trades count as
// neither wins nor losses.
type PerformanceTracker struct {
	mu     sync.Mutex
	trades []domain.Trade

	// Realized PnL closed on carryDay that is absent from the replayed
	// ledger. Counted by RealizedSince only; per-trade metrics cannot
	// absorb a lump sum.
	carryDay time.Time
	carryPnL float64
}

// NewPerformanceTracker creates an empty tracker.
func NewPerformanceTracker() *PerformanceTracker {
	return &PerformanceTracker{}
}

// Restore seeds the tracker from persisted trades, oldest first.
func (t *PerformanceTracker) Restore(trades []domain.Trade) {
	sorted := make([]domain.Trade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ClosedAt.Before(sorted[j].ClosedAt)
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades = append(t.trades, sorted...)
}

// Record ingests one closed trade.
func (t *PerformanceTracker) Record(trade domain.Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades = append(t.trades, trade)
}

// CarryRealized records realized PnL closed on the given day that the
// replayed ledger does not contain, so the daily total stays correct when
// the day's trade count exceeds the replay window.
func (t *PerformanceTracker) CarryRealized(day time.Time, pnl float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.carryDay = day
	t.carryPnL = pnl
}

// RealizedSince sums the PnL of trades closed at or after the cutoff,
// including any carried amount from that window.
func (t *PerformanceTracker) RealizedSince(cutoff time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum float64
	for _, tr := range t.trades {
		if !tr.ClosedAt.Before(cutoff) {
			sum += tr.PnL
		}
	}
	if !t.carryDay.IsZero() && !t.carryDay.Before(cutoff) {
		sum += t.carryPnL
	}
	return sum
}

// Report derives the current performance summary.
func (t *PerformanceTracker) Report() PerformanceReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := PerformanceReport{
		ByStrategy: make(map[string]StrategyPerformance),
	}
	if len(t.trades) == 0 {
		return report
	}

	returns := make([]float64, 0, len(t.trades))
	var cumulative, peak float64
	for _, tr := range t.trades {
		report.TotalTrades++
		report.TotalPnL += tr.PnL
		returns = append(returns, tr.Return())

		switch {
		case tr.PnL > 0:
			report.Wins++
		case tr.PnL < 0:
			report.Losses++
		}

		cumulative += tr.PnL
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > report.MaxDrawdown {
			report.MaxDrawdown = dd
		}

		sp := report.ByStrategy[tr.StrategySource]
		sp.Trades++
		sp.PnL += tr.PnL
		if tr.PnL > 0 {
			sp.Wins++
		}
		report.ByStrategy[tr.StrategySource] = sp
	}

	report.WinRate = float64(report.Wins) / float64(report.TotalTrades)
	for source, sp := range report.ByStrategy {
		sp.WinRate = float64(sp.Wins) / float64(sp.Trades)
		report.ByStrategy[source] = sp
	}

	mean := meanOf(returns)
	report.AvgReturn = mean
	if sd := stddevOf(returns, mean); sd > 0 {
		report.SharpeRatio = mean / sd
	}
	return report
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddevOf is the sample standard deviation; 0 for fewer than two samples.
func stddevOf(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
