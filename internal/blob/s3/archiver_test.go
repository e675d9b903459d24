package s3blob

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

type capturedPut struct {
	path        string
	contentType string
	body        string
}

type fakeWriter struct {
	puts []capturedPut
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	body, _ := io.ReadAll(data)
	f.puts = append(f.puts, capturedPut{path: path, contentType: contentType, body: string(body)})
	return nil
}

type fakeTradeStore struct {
	trades []domain.Trade
}

func (f *fakeTradeStore) Insert(context.Context, domain.Trade) error { return nil }

func (f *fakeTradeStore) ListSince(_ context.Context, since time.Time) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, t := range f.trades {
		if !t.ClosedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTradeStore) ListRecent(context.Context, int) ([]domain.Trade, error) {
	return f.trades, nil
}

func (f *fakeTradeStore) SumPnLSince(context.Context, time.Time) (float64, error) {
	return 0, nil
}

func TestArchiveDayUploadsDailyShard(t *testing.T) {
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	store := &fakeTradeStore{trades: []domain.Trade{
		{
			ID: "t1", PositionID: "p1", MarketID: "MKT-1",
			StrategySource: "sentiment", Direction: domain.DirectionLong,
			EntryPrice: 0.40, ExitPrice: 0.55, Quantity: 100, PnL: 15,
			OpenedAt: day.Add(2 * time.Hour), ClosedAt: day.Add(6 * time.Hour),
			ExitReason: domain.ExitReasonTakeProfit,
		},
		{
			// Closed the following day: outside the shard.
			ID: "t2", ClosedAt: day.AddDate(0, 0, 1).Add(time.Hour),
			Direction: domain.DirectionLong, ExitReason: domain.ExitReasonStopLoss,
		},
	}}
	w := &fakeWriter{}
	a := NewArchiver(w, store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, a.ArchiveDay(context.Background(), day))
	require.Len(t, w.puts, 1)
	assert.Equal(t, "archive/trades/2026/08/30.csv", w.puts[0].path)
	assert.Equal(t, "text/csv", w.puts[0].contentType)

	lines := strings.Split(strings.TrimSpace(w.puts[0].body), "\n")
	require.Len(t, lines, 2) // header + one trade
	assert.Contains(t, lines[0], "strategy_source")
	assert.Contains(t, lines[1], "t1")
	assert.Contains(t, lines[1], "take_profit")
	assert.NotContains(t, w.puts[0].body, "t2")
}

func TestArchiveDaySkipsEmptyDays(t *testing.T) {
	w := &fakeWriter{}
	a := NewArchiver(w, &fakeTradeStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, a.ArchiveDay(context.Background(), time.Now().UTC()))
	assert.Empty(t, w.puts)
}
