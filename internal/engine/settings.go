package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/notify"
)

// SettingsService owns the live settings snapshot. Updates are applied
// wholesale: the patched snapshot must validate in full or nothing changes.
// The trading loop reads one consistent snapshot per cycle via Snapshot.
type SettingsService struct {
	store    domain.SettingsStore
	bus      domain.EventBus
	notifier *notify.Notifier
	logger   *slog.Logger

	mu      sync.RWMutex
	current domain.Settings
}

// NewSettingsService creates the service seeded with the given snapshot.
// The store, bus, and notifier may be nil when persistence, eventing, or
// alerting is not configured.
func NewSettingsService(initial domain.Settings, store domain.SettingsStore, bus domain.EventBus, notifier *notify.Notifier, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		store:    store,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "settings")),
		current:  initial,
	}
}

// Snapshot returns the current settings.
func (s *SettingsService) Snapshot() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies a partial update. The patched snapshot is validated as a
// whole before adoption; on success the version is bumped, the snapshot is
// persisted, and a settings_changed event is published and the operator
// channels notified, both naming the changed fields.
func (s *SettingsService) Update(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	fields := patch.Fields()
	if len(fields) == 0 {
		return s.Snapshot(), nil
	}

	s.mu.Lock()
	next := patch.Apply(s.current)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return domain.Settings{}, fmt.Errorf("engine: %w: %v", domain.ErrInvalidSettings, err)
	}
	next.Version = s.current.Version + 1
	next.UpdatedAt = time.Now().UTC()
	s.current = next
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(ctx, next); err != nil {
			s.logger.Warn("settings persist failed", slog.Any("error", err))
		}
	}
	s.publishChanged(ctx, next, fields)
	if s.notifier != nil {
		s.notifier.SettingsChanged(ctx, next.Version, fields)
	}

	s.logger.Info("settings updated",
		slog.Int64("version", next.Version),
		slog.Any("fields", fields))
	return next, nil
}

func (s *SettingsService) publishChanged(ctx context.Context, next domain.Settings, fields []string) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event":      "settings_changed",
		"version":    next.Version,
		"fields":     fields,
		"updated_at": next.UpdatedAt,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelSettings, payload); err != nil {
		s.logger.Warn("settings event publish failed", slog.Any("error", err))
	}
}
