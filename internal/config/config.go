// Package config defines the bot's configuration schema: a root Config
// populated from a TOML file and then optionally overridden by KALSHIBOT_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Config is the root configuration object.
type Config struct {
	Kalshi   KalshiConfig   `toml:"kalshi"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Trading  TradingConfig  `toml:"trading"`
	Notify   NotifyConfig   `toml:"notify"`

	// Mode selects the run mode: "trade", "paper", or "monitor".
	Mode string `toml:"mode"`

	// LogLevel is one of: debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// KalshiConfig holds Kalshi API credentials and endpoints.
type KalshiConfig struct {
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	BaseURL           string `toml:"base_url"`
	WsURL             string `toml:"ws_url"`

	// Series restricts market discovery to one series ticker. Empty scans
	// all open markets up to MarketLimit.
	Series      string `toml:"series"`
	MarketLimit int    `toml:"market_limit"`
}

// PostgresConfig holds Postgres connection parameters. When DSN is set it
// wins over the individual fields.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object-storage parameters for trade-ledger archival.
// Any S3-compatible provider works (MinIO, R2, AWS).
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TradingConfig holds the initial risk parameters, source toggles, and loop
// timing. These seed the runtime settings; a persisted settings row with a
// higher version takes precedence at startup.
type TradingConfig struct {
	Bankroll            float64 `toml:"bankroll"`
	KellyScalingFactor  float64 `toml:"kelly_scaling_factor"`
	MaxPositionPct      float64 `toml:"max_position_pct"`
	MaxDailyLossPct     float64 `toml:"max_daily_loss_pct"`
	MaxOpenPositions    int     `toml:"max_open_positions"`
	CorrelationLimit    float64 `toml:"correlation_limit"`
	StopLossPct         float64 `toml:"stop_loss_pct"`
	TakeProfitPct       float64 `toml:"take_profit_pct"`
	TrailingStopEnabled bool    `toml:"trailing_stop_enabled"`

	SentimentEnabled  bool `toml:"sentiment_enabled"`
	StatArbEnabled    bool `toml:"statarb_enabled"`
	VolatilityEnabled bool `toml:"volatility_enabled"`

	SentimentThreshold float64 `toml:"sentiment_threshold"`
	RelevanceThreshold float64 `toml:"relevance_threshold"`
	ArbitrageThreshold float64 `toml:"arbitrage_threshold"`
	VolatilityWindow   int     `toml:"volatility_window"`

	TradeInterval duration `toml:"trade_interval"`
	ExpiryFloor   duration `toml:"expiry_floor"`
	MinQuantity   int64    `toml:"min_quantity"`
}

// NotifyConfig holds notification channel credentials. Events filters which
// event classes are sent; empty means all.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL:     "https://api.elections.kalshi.com/trade-api/v2",
			WsURL:       "wss://api.elections.kalshi.com/trade-api/ws/v2",
			MarketLimit: 100,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "kalshibot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "kalshibot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Trading: TradingConfig{
			Bankroll:            1000,
			KellyScalingFactor:  0.5,
			MaxPositionPct:      0.10,
			MaxDailyLossPct:     0.05,
			MaxOpenPositions:    5,
			CorrelationLimit:    0.20,
			StopLossPct:         0.05,
			TakeProfitPct:       0.20,
			TrailingStopEnabled: true,
			SentimentEnabled:    true,
			StatArbEnabled:      true,
			VolatilityEnabled:   true,
			SentimentThreshold:  0.3,
			RelevanceThreshold:  0.5,
			ArbitrageThreshold:  2.0,
			VolatilityWindow:    20,
			TradeInterval:       duration{60 * time.Second},
			ExpiryFloor:         duration{1 * time.Hour},
			MinQuantity:         1,
		},
		Notify: NotifyConfig{
			Events: []string{"trades", "risk", "lifecycle"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"paper":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. The trading section is
// validated through domain.Settings so the startup check and the runtime
// update check enforce identical ranges.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Kalshi credentials are only required when orders or quotes hit the
	// real exchange. Paper mode still quotes through the live API.
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Kalshi.ApiKey == "" {
		errs = append(errs, "kalshi: api_key must not be empty")
	}
	if c.Kalshi.RsaPrivateKeyPath == "" {
		errs = append(errs, "kalshi: rsa_private_key_path must not be empty")
	}
	if c.Kalshi.MarketLimit < 1 || c.Kalshi.MarketLimit > 1000 {
		errs = append(errs, fmt.Sprintf("kalshi: market_limit must be 1-1000, got %d", c.Kalshi.MarketLimit))
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if err := c.Settings().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Settings converts the trading section into the engine's initial runtime
// settings snapshot at version 0.
func (c *Config) Settings() domain.Settings {
	t := c.Trading
	return domain.Settings{
		Risk: domain.RiskParameters{
			Bankroll:            t.Bankroll,
			KellyScalingFactor:  t.KellyScalingFactor,
			MaxPositionPct:      t.MaxPositionPct,
			MaxDailyLossPct:     t.MaxDailyLossPct,
			MaxOpenPositions:    t.MaxOpenPositions,
			CorrelationLimit:    t.CorrelationLimit,
			StopLossPct:         t.StopLossPct,
			TakeProfitPct:       t.TakeProfitPct,
			TrailingStopEnabled: t.TrailingStopEnabled,
		},
		SentimentEnabled:   t.SentimentEnabled,
		StatArbEnabled:     t.StatArbEnabled,
		VolatilityEnabled:  t.VolatilityEnabled,
		SentimentThreshold: t.SentimentThreshold,
		RelevanceThreshold: t.RelevanceThreshold,
		ArbitrageThreshold: t.ArbitrageThreshold,
		VolatilityWindow:   t.VolatilityWindow,
		TradeInterval:      t.TradeInterval.Duration,
		ExpiryFloor:        t.ExpiryFloor.Duration,
		MinQuantity:        t.MinQuantity,
	}
}
