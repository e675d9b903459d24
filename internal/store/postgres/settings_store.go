package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// SettingsStore implements domain.SettingsStore using a single-row JSONB
// payload. The whole snapshot is written atomically on every save.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a store backed by the given connection pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Load returns the persisted settings snapshot, or domain.ErrNotFound when
// none has been saved yet.
func (s *SettingsStore) Load(ctx context.Context) (domain.Settings, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM settings WHERE id = 1`,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settings{}, domain.ErrNotFound
		}
		return domain.Settings{}, fmt.Errorf("postgres: load settings: %w", err)
	}

	var out domain.Settings
	if err := json.Unmarshal(payload, &out); err != nil {
		return domain.Settings{}, fmt.Errorf("postgres: decode settings: %w", err)
	}
	return out, nil
}

// Save upserts the settings snapshot.
func (s *SettingsStore) Save(ctx context.Context, settings domain.Settings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("postgres: encode settings: %w", err)
	}

	const query = `
		INSERT INTO settings (id, version, payload, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			version    = EXCLUDED.version,
			payload    = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`

	if _, err := s.pool.Exec(ctx, query, settings.Version, payload, settings.UpdatedAt); err != nil {
		return fmt.Errorf("postgres: save settings: %w", err)
	}
	return nil
}
