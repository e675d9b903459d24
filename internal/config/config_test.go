package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeConfig() Config {
	cfg := Defaults()
	cfg.Kalshi.ApiKey = "key-id"
	cfg.Kalshi.RsaPrivateKeyPath = "/etc/kalshibot/key.pem"
	return cfg
}

func TestDefaultsValidateWithCredentials(t *testing.T) {
	cfg := completeConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := completeConfig()
	cfg.Mode = "turbo"
	cfg.Kalshi.ApiKey = ""
	cfg.Trading.StopLossPct = 0.9

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "api_key")
	assert.Contains(t, err.Error(), "stop_loss_pct")
}

func TestValidateSkipsDisabledBackends(t *testing.T) {
	cfg := completeConfig()
	cfg.Postgres.Enabled = false
	cfg.Postgres.Host = ""
	cfg.Redis.Enabled = false
	cfg.Redis.Addr = ""
	cfg.S3.Enabled = false
	cfg.S3.Bucket = ""

	require.NoError(t, cfg.Validate())

	cfg.Redis.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "trade"

[kalshi]
api_key = "file-key"
rsa_private_key_path = "/keys/kalshi.pem"
series = "KXBTC"

[trading]
bankroll = 2500.0
trade_interval = "30s"

[redis]
enabled = true
addr = "redis.internal:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("KALSHIBOT_KALSHI_API_KEY", "env-key")
	t.Setenv("KALSHIBOT_TRADING_MAX_OPEN_POSITIONS", "8")
	t.Setenv("KALSHIBOT_NOTIFY_EVENTS", "trades, risk")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Env beats file, file beats defaults.
	assert.Equal(t, "env-key", cfg.Kalshi.ApiKey)
	assert.Equal(t, "trade", cfg.Mode)
	assert.Equal(t, "KXBTC", cfg.Kalshi.Series)
	assert.Equal(t, 2500.0, cfg.Trading.Bankroll)
	assert.Equal(t, 30*time.Second, cfg.Trading.TradeInterval.Duration)
	assert.Equal(t, 8, cfg.Trading.MaxOpenPositions)
	assert.Equal(t, []string{"trades", "risk"}, cfg.Notify.Events)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)

	// Untouched sections keep their defaults.
	assert.Equal(t, 0.5, cfg.Trading.KellyScalingFactor)
	assert.Equal(t, 100, cfg.Kalshi.MarketLimit)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestSettingsMapping(t *testing.T) {
	cfg := completeConfig()
	cfg.Trading.Bankroll = 5000
	cfg.Trading.TradeInterval = duration{45 * time.Second}
	cfg.Trading.StatArbEnabled = false

	s := cfg.Settings()
	assert.Equal(t, int64(0), s.Version)
	assert.Equal(t, 5000.0, s.Risk.Bankroll)
	assert.Equal(t, 45*time.Second, s.TradeInterval)
	assert.False(t, s.StatArbEnabled)
	assert.True(t, s.SentimentEnabled)
	require.NoError(t, s.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := completeConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "tok"
	cfg.Notify.Events = []string{"trades"}

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Kalshi.ApiKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Empty(t, red.Redis.Password)

	red.Notify.Events[0] = "mutated"
	assert.Equal(t, "trades", cfg.Notify.Events[0])

	// Original remains intact.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
