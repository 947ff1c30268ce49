package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/convexbot/internal/blob/s3"
	"github.com/alanyoungcy/convexbot/internal/cache/redis"
	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/config"
	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/notify"
	"github.com/alanyoungcy/convexbot/internal/server/handler"
	"github.com/alanyoungcy/convexbot/internal/service"
	"github.com/alanyoungcy/convexbot/internal/store/clickhouse"
	"github.com/alanyoungcy/convexbot/internal/store/postgres"
)

// redisKeyPrefix namespaces every cache, lock and limiter key this process
// writes.
const redisKeyPrefix = "convexbot"

// Dependencies bundles the infrastructure adapters the operating modes use.
// Every member is optional: a disabled backend leaves its fields nil and the
// modes skip the outputs that depend on it.
type Dependencies struct {
	// Stores
	TradeStore    domain.TradeStore
	AuditStore    domain.AuditStore
	SnapshotStore domain.SnapshotStore
	TickSink      domain.TickSink

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	SnapshotArchive domain.SnapshotArchive

	// Notifications
	Notifier *notify.Notifier

	// Pingers are reported by the health endpoint, keyed by backend name.
	Pingers map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Pingers: make(map[string]handler.Pinger)}

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
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
			for _, name := range applied {
				logger.Info("applied migration", slog.String("migration", name))
			}
		}

		pool := pgClient.Pool()
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.SnapshotStore = postgres.NewSnapshotStore(pool)
		deps.Pingers["postgres"] = pgClient
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
			KeyPrefix:  redisKeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, clock.Real{})
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Pingers["redis"] = redisClient
	} else {
		deps.RateLimiter = service.NewLocalRateLimiter(clock.Real{})
	}

	// --- S3 snapshot archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.SnapshotArchive = s3blob.NewSnapshotArchive(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client))
		deps.Pingers["s3"] = handler.PingFunc(s3Client.Health)
	}

	// --- ClickHouse tick history ---
	if cfg.ClickHouse.Enabled {
		conn, err := clickhouse.NewConn(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })

		if err := conn.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: clickhouse schema: %w", err)
		}
		deps.TickSink = clickhouse.NewTickStore(conn)
		deps.Pingers["clickhouse"] = handler.PingFunc(conn.Ping)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			notify.TelegramAPI,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
