package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/notify"
)

func validSettings() domain.Settings {
	return domain.Settings{
		Version: 1,
		Risk: domain.RiskParameters{
			Bankroll:           1000,
			KellyScalingFactor: 0.5,
			MaxPositionPct:     0.10,
			MaxDailyLossPct:    0.05,
			MaxOpenPositions:   5,
			CorrelationLimit:   0.20,
			StopLossPct:        0.05,
		},
		SentimentThreshold: 0.3,
		RelevanceThreshold: 0.5,
		ArbitrageThreshold: 2.0,
		VolatilityWindow:   20,
		TradeInterval:      time.Minute,
		ExpiryFloor:        time.Hour,
		MinQuantity:        1,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSettingsUpdateAppliesAndBumpsVersion(t *testing.T) {
	svc := NewSettingsService(validSettings(), nil, nil, nil, discardLogger())

	kelly := 0.25
	updated, err := svc.Update(context.Background(), domain.SettingsPatch{KellyScalingFactor: &kelly})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.InDelta(t, 0.25, updated.Risk.KellyScalingFactor, 1e-9)
	assert.False(t, updated.UpdatedAt.IsZero())

	// The service now serves the updated snapshot.
	assert.Equal(t, updated, svc.Snapshot())
}

func TestSettingsUpdateRejectsInvalidWholesale(t *testing.T) {
	svc := NewSettingsService(validSettings(), nil, nil, nil, discardLogger())

	// One valid field and one invalid field in the same patch: neither
	// is applied.
	kelly := 0.25
	stop := 0.9 // out of (0, 0.5]
	_, err := svc.Update(context.Background(), domain.SettingsPatch{
		KellyScalingFactor: &kelly,
		StopLossPct:        &stop,
	})
	require.ErrorIs(t, err, domain.ErrInvalidSettings)

	current := svc.Snapshot()
	assert.Equal(t, int64(1), current.Version)
	assert.InDelta(t, 0.5, current.Risk.KellyScalingFactor, 1e-9)
	assert.InDelta(t, 0.05, current.Risk.StopLossPct, 1e-9)
}

func TestSettingsUpdateEmptyPatchIsNoop(t *testing.T) {
	svc := NewSettingsService(validSettings(), nil, nil, nil, discardLogger())

	updated, err := svc.Update(context.Background(), domain.SettingsPatch{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)
}

// memorySender records every alert it is asked to deliver.
type memorySender struct {
	titles   []string
	messages []string
}

func (s *memorySender) Send(_ context.Context, title, message string) error {
	s.titles = append(s.titles, title)
	s.messages = append(s.messages, message)
	return nil
}

func (s *memorySender) Name() string { return "memory" }

func TestSettingsUpdateNotifiesOperators(t *testing.T) {
	sender := &memorySender{}
	notifier := notify.NewNotifier([]notify.Sender{sender}, []string{notify.EventSettings}, discardLogger())
	svc := NewSettingsService(validSettings(), nil, nil, notifier, discardLogger())

	kelly := 0.25
	_, err := svc.Update(context.Background(), domain.SettingsPatch{KellyScalingFactor: &kelly})
	require.NoError(t, err)

	require.Len(t, sender.titles, 1)
	assert.Equal(t, "Settings updated", sender.titles[0])
	assert.Contains(t, sender.messages[0], "kelly_scaling_factor")

	// A rejected patch changes nothing and alerts no one.
	bad := 0.9
	_, err = svc.Update(context.Background(), domain.SettingsPatch{StopLossPct: &bad})
	require.ErrorIs(t, err, domain.ErrInvalidSettings)
	assert.Len(t, sender.titles, 1)
}

func TestSettingsUpdateConvertsIntervalSeconds(t *testing.T) {
	svc := NewSettingsService(validSettings(), nil, nil, nil, discardLogger())

	secs := 120
	updated, err := svc.Update(context.Background(), domain.SettingsPatch{TradeIntervalSeconds: &secs})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, updated.TradeInterval)

	// Below the 10s floor the whole patch is rejected.
	tooFast := 5
	_, err = svc.Update(context.Background(), domain.SettingsPatch{TradeIntervalSeconds: &tooFast})
	require.ErrorIs(t, err, domain.ErrInvalidSettings)
}
