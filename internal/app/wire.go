package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/hedgebot/internal/blob/s3"
	"github.com/alanyoungcy/hedgebot/internal/book"
	"github.com/alanyoungcy/hedgebot/internal/cache/redis"
	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/exchange"
	"github.com/alanyoungcy/hedgebot/internal/notify"
	"github.com/alanyoungcy/hedgebot/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application modes need.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Market data
	Replica1 *book.Replica
	Replica2 *book.Replica

	// Trading (hedge mode only)
	Trader1 exchange.Trader
	Trader2 exchange.Trader

	// Persistence
	Postgres  *postgres.Client
	ExecStore domain.HedgeExecutionStore

	// Caches
	Redis        *redis.Client
	FundingCache domain.FundingCache

	// Blob storage
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
	Events   domain.EventSink
}

// needsTraders returns true for modes that place orders.
func needsTraders(mode string) bool {
	return mode == "hedge"
}

// needsFeeds returns true for modes that consume live order books.
func needsFeeds(mode string) bool {
	switch mode {
	case "hedge", "monitor":
		return true
	default:
		return false
	}
}

// Wire constructs the concrete dependency implementations for the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Order-book replicas ---
	if needsFeeds(cfg.Mode) {
		dialer1, err := exchange.NewFeedDialer(cfg.Exchange1)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: feed dialer %s: %w", cfg.Exchange1.Name, err)
		}
		dialer2, err := exchange.NewFeedDialer(cfg.Exchange2)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: feed dialer %s: %w", cfg.Exchange2.Name, err)
		}
		deps.Replica1 = book.NewReplica(dialer1, cfg.Trade.Symbol, book.Options{}, logger)
		deps.Replica2 = book.NewReplica(dialer2, cfg.Trade.Symbol, book.Options{}, logger)
		closers = append(closers, deps.Replica1.Close, deps.Replica2.Close)
	}

	// --- Trading clients ---
	if needsTraders(cfg.Mode) {
		trader1, err := exchange.NewTrader(cfg.Exchange1, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: trader %s: %w", cfg.Exchange1.Name, err)
		}
		trader2, err := exchange.NewTrader(cfg.Exchange2, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: trader %s: %w", cfg.Exchange2.Name, err)
		}
		deps.Trader1 = trader1
		deps.Trader2 = trader2
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, cfg.Postgres)
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

		deps.Postgres = pgClient
		deps.ExecStore = postgres.NewHedgeExecutionStore(pgClient.Pool())
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.FundingCache = redis.NewFundingCache(redisClient)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		if deps.ExecStore == nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3 archival requires postgres to be enabled")
		}
		s3Client, err := s3blob.New(ctx, cfg.S3)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.ExecStore, logger)
	}

	// --- Notifications and operational events ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	var stream domain.EventStream
	if deps.Redis != nil {
		stream = redis.NewEventStream(deps.Redis)
	}
	deps.Events = notify.NewEventBridge(deps.Notifier, stream, logger)

	return deps, cleanup, nil
}
