package domain

import (
	"context"
	"time"
)

// PositionStore mirrors the engine's open position book to durable storage.
// The in-memory book owned by the position manager is authoritative; store
// writes are best-effort mirrors for restart recovery and audit.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	Close(ctx context.Context, id string, exitPrice float64, reason ExitReason, closedAt time.Time) error
	ListOpen(ctx context.Context) ([]Position, error)
	GetByID(ctx context.Context, id string) (Position, error)
}

// TradeStore persists the immutable trade ledger.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	ListSince(ctx context.Context, since time.Time) ([]Trade, error)
	ListRecent(ctx context.Context, limit int) ([]Trade, error)
	SumPnLSince(ctx context.Context, since time.Time) (float64, error)
}

// SettingsStore persists the versioned settings snapshot.
type SettingsStore interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}
