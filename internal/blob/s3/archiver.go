package s3blob

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// BlobWriter is the narrow upload capability the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver periodically exports the closed trade ledger to object storage
// as daily CSV shards. Archival is additive: nothing is deleted from the
// primary store here.
type Archiver struct {
	writer BlobWriter
	trades domain.TradeStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer BlobWriter, trades domain.TradeStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		trades: trades,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Run uploads yesterday's shard once at startup and then once per day until
// the context is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	if err := a.ArchiveDay(ctx, time.Now().UTC().AddDate(0, 0, -1)); err != nil {
		a.logger.Error("archive failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.ArchiveDay(ctx, time.Now().UTC().AddDate(0, 0, -1)); err != nil {
				a.logger.Error("archive failed", slog.Any("error", err))
			}
		}
	}
}

// ArchiveDay uploads all trades closed on the given UTC day to
// archive/trades/YYYY/MM/DD.csv. Days with no trades upload nothing.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) error {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	trades, err := a.trades.ListSince(ctx, start)
	if err != nil {
		return fmt.Errorf("s3blob: archive query: %w", err)
	}

	var inDay []domain.Trade
	for _, t := range trades {
		if t.ClosedAt.Before(end) {
			inDay = append(inDay, t)
		}
	}
	if len(inDay) == 0 {
		return nil
	}

	buf, err := marshalCSV(inDay)
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := fmt.Sprintf("archive/trades/%04d/%02d/%02d.csv", start.Year(), start.Month(), start.Day())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "text/csv"); err != nil {
		return fmt.Errorf("s3blob: archive upload: %w", err)
	}

	a.logger.Info("trade ledger archived",
		slog.String("path", path), slog.Int("trades", len(inDay)))
	return nil
}

func marshalCSV(trades []domain.Trade) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"id", "position_id", "market_id", "strategy_source", "direction",
		"entry_price", "exit_price", "quantity", "pnl",
		"opened_at", "closed_at", "exit_reason",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, t := range trades {
		record := []string{
			t.ID, t.PositionID, t.MarketID, t.StrategySource, string(t.Direction),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			strconv.FormatInt(t.Quantity, 10),
			strconv.FormatFloat(t.PnL, 'f', -1, 64),
			t.OpenedAt.UTC().Format(time.RFC3339),
			t.ClosedAt.UTC().Format(time.RFC3339),
			string(t.ExitReason),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
