package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a store backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, position_id, market_id, strategy_source, direction,
	entry_price, exit_price, quantity, pnl, opened_at, closed_at, exit_reason`

func scanTrades(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var direction, reason string
		if err := rows.Scan(
			&t.ID, &t.PositionID, &t.MarketID, &t.StrategySource, &direction,
			&t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.PnL,
			&t.OpenedAt, &t.ClosedAt, &reason,
		); err != nil {
			return nil, err
		}
		t.Direction = domain.Direction(direction)
		t.ExitReason = domain.ExitReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert appends one trade to the ledger. Trades are immutable; a repeated
// insert of the same ID fails.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, position_id, market_id, strategy_source, direction,
			entry_price, exit_price, quantity, pnl, opened_at, closed_at, exit_reason
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11, $12
		)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.PositionID, t.MarketID, t.StrategySource, string(t.Direction),
		t.EntryPrice, t.ExitPrice, t.Quantity, t.PnL, t.OpenedAt, t.ClosedAt, string(t.ExitReason),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListSince returns trades closed at or after the cutoff, oldest first.
func (s *TradeStore) ListSince(ctx context.Context, since time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE closed_at >= $1
		 ORDER BY closed_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades since: %w", err)
	}
	defer rows.Close()

	trades, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// ListRecent returns the most recently closed trades, newest first.
func (s *TradeStore) ListRecent(ctx context.Context, limit int) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 ORDER BY closed_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// SumPnLSince sums realized PnL for trades closed at or after the cutoff.
func (s *TradeStore) SumPnLSince(ctx context.Context, since time.Time) (float64, error) {
	var sum float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE closed_at >= $1`, since,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum pnl: %w", err)
	}
	return sum, nil
}
