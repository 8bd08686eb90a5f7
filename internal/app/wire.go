package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/nexusx/nexus/internal/blob/s3"
	cachemem "github.com/nexusx/nexus/internal/cache/memory"
	"github.com/nexusx/nexus/internal/cache/redis"
	"github.com/nexusx/nexus/internal/config"
	"github.com/nexusx/nexus/internal/crypto"
	"github.com/nexusx/nexus/internal/domain"
	"github.com/nexusx/nexus/internal/events/kafka"
	"github.com/nexusx/nexus/internal/insight"
	"github.com/nexusx/nexus/internal/notify"
	"github.com/nexusx/nexus/internal/server/handler"
	"github.com/nexusx/nexus/internal/service"
	"github.com/nexusx/nexus/internal/store/leveldb"
	"github.com/nexusx/nexus/internal/store/memory"
	"github.com/nexusx/nexus/internal/store/postgres"
)

// Dependencies bundles every dependency the run modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	SnapshotStore domain.SnapshotStore
	AuditStore    domain.AuditStore

	// Caches
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage; Archiver is nil unless S3 is enabled.
	Archiver *s3blob.LedgerArchiver

	Events   domain.EventPublisher
	Notifier *notify.Notifier
	Tokens   *crypto.TokenSigner

	// Services
	Quotes   *service.QuoteService
	Ledgers  *service.LedgerService
	Sessions *service.SessionService
	Insights *service.InsightService

	// HealthChecks are probed by GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete implementations from cfg and returns them
// together with a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}

	// --- Snapshot storage ---
	switch strings.ToLower(cfg.Storage.Driver) {
	case "memory":
		deps.SnapshotStore = memory.NewSnapshotStore()
		deps.AuditStore = memory.NewAuditStore()

	case "leveldb":
		db, err := leveldb.Open(cfg.Storage.LevelDBPath)
		if err != nil {
			return fail(fmt.Errorf("wire: leveldb: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.SnapshotStore = db
		deps.AuditStore = memory.NewAuditStore()

	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.SnapshotStore = postgres.NewSnapshotStore(pgClient.Pool())
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
		deps.HealthChecks["postgres"] = pgClient.Ping

	default:
		return fail(fmt.Errorf("wire: unknown storage driver %q", cfg.Storage.Driver))
	}
	deps.HealthChecks["storage"] = storeCheck(deps.SnapshotStore)

	// --- Redis (optional; in-process equivalents otherwise) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.QuoteCache = redis.NewQuoteCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		deps.RateLimiter = cachemem.NewRateLimiter()
		deps.SignalBus = cachemem.NewSignalBus()
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		pub := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, func() { _ = pub.Close() })
		deps.Events = pub
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

	tokens, err := crypto.NewTokenSigner(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL.Duration)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Tokens = tokens

	// --- Services ---
	quotes, err := service.NewQuoteService(ctx, deps.SnapshotStore, deps.QuoteCache, deps.SignalBus, deps.Notifier, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Quotes = quotes

	ledgers := service.NewLedgerService(deps.SnapshotStore, quotes, logger).
		WithBus(deps.SignalBus).
		WithAudit(deps.AuditStore).
		WithNotifier(deps.Notifier)
	if deps.LockManager != nil {
		ledgers = ledgers.WithLocks(deps.LockManager, cfg.Redis.LockTTL.Duration)
	}
	if deps.Events != nil {
		ledgers = ledgers.WithEvents(deps.Events)
	}
	deps.Ledgers = ledgers

	sessions, err := service.NewSessionService(ctx, deps.SnapshotStore, ledgers, cfg.Auth.DemoMode, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Sessions = sessions

	client := insight.New(insight.Config{
		APIKey:        cfg.Insight.APIKey,
		BaseURL:       cfg.Insight.BaseURL,
		AnalysisModel: cfg.Insight.AnalysisModel,
		StrategyModel: cfg.Insight.StrategyModel,
		Timeout:       cfg.Insight.Timeout.Duration,
	})
	deps.Insights = service.NewInsightService(client, quotes, ledgers, logger)

	// --- S3 ledger archive ---
	if cfg.S3.Enabled {
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewLedgerArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			ledgers,
			deps.AuditStore,
		)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	return deps, cleanup, nil
}

// storeCheck probes a snapshot store with a read of the listing record.
// A missing record still proves the store answers.
func storeCheck(store domain.SnapshotStore) handler.HealthCheck {
	return func(ctx context.Context) error {
		if _, err := store.Get(ctx, domain.KeyCoins); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return nil
	}
}
