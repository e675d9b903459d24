package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	s3blob "github.com/alanyoungcy/kalshibot/internal/blob/s3"
	"github.com/alanyoungcy/kalshibot/internal/cache/redis"
	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/engine"
	"github.com/alanyoungcy/kalshibot/internal/notify"
	"github.com/alanyoungcy/kalshibot/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshibot/internal/platform/paper"
	"github.com/alanyoungcy/kalshibot/internal/store/postgres"
)

// sentimentMaxAge bounds how old an externally written sentiment score may
// be before the engine treats it as absent.
const sentimentMaxAge = 15 * time.Minute

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
// Stores, caches, blob storage, the sentiment provider, and the ticker feed
// are nil when their backend is not configured; the engine degrades rather
// than depends on them.
type Dependencies struct {
	// Exchange is the order and quote boundary the engine trades through.
	// In paper mode it is the simulated exchange wrapping the live client.
	Exchange domain.ExchangeClient

	// Stores
	PositionStore domain.PositionStore
	TradeStore    domain.TradeStore
	SettingsStore domain.SettingsStore

	// Caches
	PriceCache domain.PriceCache
	Bus        domain.EventBus
	Sentiment  domain.SentimentProvider

	// Feed streams ticker updates into the price cache between cycles.
	Feed *kalshi.TickerFeed

	// Archiver ships the closed-trade ledger to object storage.
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Kalshi client ---
	opts := []kalshi.Option{kalshi.WithMarketLimit(cfg.Kalshi.MarketLimit)}
	if cfg.Kalshi.Series != "" {
		opts = append(opts, kalshi.WithSeries(cfg.Kalshi.Series))
	}
	client := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.ApiKey, opts...)

	pemBytes, err := os.ReadFile(cfg.Kalshi.RsaPrivateKeyPath)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: read rsa key: %w", err)
	}
	if err := client.SetRSAPrivateKey(pemBytes); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: rsa key: %w", err)
	}

	deps.Exchange = client
	if cfg.Mode == engine.ModePaper {
		deps.Exchange = paper.NewExchange(client, cfg.Trading.Bankroll, logger)
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.SettingsStore = postgres.NewSettingsStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.Bus = redis.NewEventBus(redisClient)
		deps.Sentiment = redis.NewSentimentProvider(redisClient, sentimentMaxAge)

		if cfg.Kalshi.WsURL != "" {
			deps.Feed = kalshi.NewTickerFeed(cfg.Kalshi.WsURL, deps.PriceCache, logger)
		}
	}

	// --- S3 blob storage (trade archival needs the ledger store) ---
	if cfg.S3.Enabled && deps.TradeStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.TradeStore, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}
