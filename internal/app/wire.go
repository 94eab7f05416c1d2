package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/blob/s3"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/cache/redis"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/config"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/notify"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/server/handler"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/server/middleware"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/store/memory"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/store/postgres"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/store/sqlite"
)

// Dependencies bundles every concrete dependency the application modes need.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Storage names the active driver: postgres, sqlite or memory.
	Storage string

	// Stores
	ChallengeStore domain.ChallengeStore
	LedgerStore    domain.LedgerStore
	EventStore     domain.EventStore
	Committer      domain.Committer
	AuditStore     domain.AuditStore
	ArchiveStore   domain.ArchiveStore

	// StorePinger backs the health check; nil for the memory driver.
	StorePinger handler.Pinger

	// Caches and coordination. Cache and LockManager stay nil without Redis.
	Cache        domain.ChallengeCache
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	SignalBus    domain.SignalBus
	LocalLimiter *middleware.LocalRateLimiter

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsRedis returns true for modes that coordinate with other instances.
func needsRedis(cfg *config.Config) bool {
	return cfg.Redis.Enabled && strings.ToLower(cfg.Mode) == "server"
}

// needsS3 returns true when an archiver must be built.
func needsS3(cfg *config.Config) bool {
	mode := strings.ToLower(cfg.Mode)
	return mode == "archive" || (mode == "server" && cfg.Archive.Enabled)
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

	deps := &Dependencies{Storage: strings.ToLower(cfg.Storage.Driver)}
	mode := strings.ToLower(cfg.Mode)

	// --- Primary store ---
	switch deps.Storage {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// migrate mode always applies pending migrations.
		if cfg.Postgres.RunMigrations || mode == "migrate" {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		challenges := postgres.NewChallengeStore(pool)
		events := postgres.NewEventStore(pool)
		deps.ChallengeStore = challenges
		deps.ArchiveStore = challenges
		deps.LedgerStore = postgres.NewLedgerStore(pool)
		deps.EventStore = events
		deps.Committer = postgres.NewCommitter(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.StorePinger = pgClient

	case "sqlite":
		st, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = st.Close() })
		setSingleStore(deps, st)
		deps.StorePinger = st

	case "memory":
		logger.WarnContext(ctx, "wire: using in-memory store; state is lost on restart")
		setSingleStore(deps, memory.New())

	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown storage driver %q", cfg.Storage.Driver)
	}

	// --- Redis (or in-process equivalents) ---
	if needsRedis(cfg) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Cache = redis.NewChallengeCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	} else {
		deps.LocalLimiter = middleware.NewLocalRateLimiter(waitRate(cfg.Server))
		deps.RateLimiter = deps.LocalLimiter
		deps.SignalBus = memory.NewBus()
	}

	// --- S3 archive ---
	if needsS3(cfg) {
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
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "wire: s3 bucket not reachable yet", slog.String("error", err.Error()))
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			s3blob.NewReader(s3Client),
			s3blob.ArchiveSources{
				Archive: deps.ArchiveStore,
				Ledger:  deps.LedgerStore,
				Events:  deps.EventStore,
				Audit:   deps.AuditStore,
			},
			s3blob.ArchiverConfig{
				BatchSize:          cfg.Archive.BatchSize,
				MultipartThreshold: int64(cfg.Archive.MultipartThresholdMB) << 20,
				PartSize:           int64(cfg.Archive.PartSizeMB) << 20,
			},
			logger,
		)
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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.QueueSize, logger)

	return deps, cleanup, nil
}

// singleStore is a backend that implements every store interface on one
// value, as the sqlite and memory stores do.
type singleStore interface {
	domain.ChallengeStore
	domain.LedgerStore
	domain.EventStore
	domain.Committer
	domain.AuditStore
	domain.ArchiveStore
}

func setSingleStore(deps *Dependencies, s singleStore) {
	deps.ChallengeStore = s
	deps.LedgerStore = s
	deps.EventStore = s
	deps.Committer = s
	deps.AuditStore = s
	deps.ArchiveStore = s
}

// waitRate converts the per-window API limit to a per-second rate for
// RateLimiter.Wait.
func waitRate(cfg config.ServerConfig) float64 {
	if cfg.RateLimit <= 0 || cfg.RateWindow.Duration <= 0 {
		return 1
	}
	return float64(cfg.RateLimit) / cfg.RateWindow.Seconds()
}
