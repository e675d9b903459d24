package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a store backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, market_id, event_ticker, category, strategy_source,
	direction, entry_price, current_price, quantity, stop_loss_price,
	trailing_hwm, expiry, opened_at, state`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var direction, state string
	var expiry *time.Time

	err := row.Scan(
		&p.ID, &p.MarketID, &p.EventTicker, &p.Category, &p.StrategySource,
		&direction, &p.EntryPrice, &p.CurrentPrice, &p.Quantity, &p.StopLossPrice,
		&p.TrailingHWM, &expiry, &p.OpenedAt, &state,
	)
	if err != nil {
		return domain.Position{}, err
	}
	if expiry != nil {
		p.Expiry = *expiry
	}
	p.Direction = domain.Direction(direction)
	p.State = domain.PositionState(state)
	return p, nil
}

// Create inserts a new open position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, market_id, event_ticker, category, strategy_source,
			direction, entry_price, current_price, quantity, stop_loss_price,
			trailing_hwm, expiry, opened_at, state, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.MarketID, p.EventTicker, p.Category, p.StrategySource,
		string(p.Direction), p.EntryPrice, p.CurrentPrice, p.Quantity, p.StopLossPrice,
		p.TrailingHWM, nullableTime(p.Expiry), p.OpenedAt, string(p.State),
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces the mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			current_price   = $2,
			stop_loss_price = $3,
			trailing_hwm    = $4,
			state           = $5,
			updated_at      = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.CurrentPrice, p.StopLossPrice, p.TrailingHWM, string(p.State),
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Close marks a position as closed with its exit details.
func (s *PositionStore) Close(ctx context.Context, id string, exitPrice float64, reason domain.ExitReason, closedAt time.Time) error {
	const query = `
		UPDATE positions SET
			state       = 'closed',
			exit_price  = $2,
			exit_reason = $3,
			closed_at   = $4,
			updated_at  = NOW()
		WHERE id = $1 AND state <> 'closed'`

	tag, err := s.pool.Exec(ctx, query, id, exitPrice, string(reason), closedAt)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOpen returns every position not yet closed, oldest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE state <> 'closed'
		 ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan open position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	return positions, nil
}

// GetByID retrieves a single position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
