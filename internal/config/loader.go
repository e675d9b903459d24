package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies KALSHIBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known KALSHIBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKey, "KALSHIBOT_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "KALSHIBOT_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "KALSHIBOT_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WsURL, "KALSHIBOT_KALSHI_WS_URL")
	setStr(&cfg.Kalshi.Series, "KALSHIBOT_KALSHI_SERIES")
	setInt(&cfg.Kalshi.MarketLimit, "KALSHIBOT_KALSHI_MARKET_LIMIT")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "KALSHIBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "KALSHIBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "KALSHIBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "KALSHIBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "KALSHIBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "KALSHIBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "KALSHIBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "KALSHIBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "KALSHIBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "KALSHIBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "KALSHIBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "KALSHIBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "KALSHIBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KALSHIBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KALSHIBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "KALSHIBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "KALSHIBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "KALSHIBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "KALSHIBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "KALSHIBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "KALSHIBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "KALSHIBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "KALSHIBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "KALSHIBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "KALSHIBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "KALSHIBOT_S3_FORCE_PATH_STYLE")

	// ── Trading ──
	setFloat64(&cfg.Trading.Bankroll, "KALSHIBOT_TRADING_BANKROLL")
	setFloat64(&cfg.Trading.KellyScalingFactor, "KALSHIBOT_TRADING_KELLY_SCALING_FACTOR")
	setFloat64(&cfg.Trading.MaxPositionPct, "KALSHIBOT_TRADING_MAX_POSITION_PCT")
	setFloat64(&cfg.Trading.MaxDailyLossPct, "KALSHIBOT_TRADING_MAX_DAILY_LOSS_PCT")
	setInt(&cfg.Trading.MaxOpenPositions, "KALSHIBOT_TRADING_MAX_OPEN_POSITIONS")
	setFloat64(&cfg.Trading.CorrelationLimit, "KALSHIBOT_TRADING_CORRELATION_LIMIT")
	setFloat64(&cfg.Trading.StopLossPct, "KALSHIBOT_TRADING_STOP_LOSS_PCT")
	setFloat64(&cfg.Trading.TakeProfitPct, "KALSHIBOT_TRADING_TAKE_PROFIT_PCT")
	setBool(&cfg.Trading.TrailingStopEnabled, "KALSHIBOT_TRADING_TRAILING_STOP_ENABLED")
	setBool(&cfg.Trading.SentimentEnabled, "KALSHIBOT_TRADING_SENTIMENT_ENABLED")
	setBool(&cfg.Trading.StatArbEnabled, "KALSHIBOT_TRADING_STATARB_ENABLED")
	setBool(&cfg.Trading.VolatilityEnabled, "KALSHIBOT_TRADING_VOLATILITY_ENABLED")
	setFloat64(&cfg.Trading.SentimentThreshold, "KALSHIBOT_TRADING_SENTIMENT_THRESHOLD")
	setFloat64(&cfg.Trading.RelevanceThreshold, "KALSHIBOT_TRADING_RELEVANCE_THRESHOLD")
	setFloat64(&cfg.Trading.ArbitrageThreshold, "KALSHIBOT_TRADING_ARBITRAGE_THRESHOLD")
	setInt(&cfg.Trading.VolatilityWindow, "KALSHIBOT_TRADING_VOLATILITY_WINDOW")
	setDuration(&cfg.Trading.TradeInterval, "KALSHIBOT_TRADING_TRADE_INTERVAL")
	setDuration(&cfg.Trading.ExpiryFloor, "KALSHIBOT_TRADING_EXPIRY_FLOOR")
	setInt64(&cfg.Trading.MinQuantity, "KALSHIBOT_TRADING_MIN_QUANTITY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "KALSHIBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "KALSHIBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "KALSHIBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "KALSHIBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "KALSHIBOT_MODE")
	setStr(&cfg.LogLevel, "KALSHIBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
