package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/tradexec/internal/blob/s3"
	"github.com/alanyoungcy/tradexec/internal/cache/redis"
	"github.com/alanyoungcy/tradexec/internal/config"
	"github.com/alanyoungcy/tradexec/internal/domain"
	"github.com/alanyoungcy/tradexec/internal/ledger"
	"github.com/alanyoungcy/tradexec/internal/notify"
	"github.com/alanyoungcy/tradexec/internal/store/postgres"
)

// Dependencies bundles the infrastructure-level dependencies of the execution
// service. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Audit trail: JSONL writer is authoritative, the fan-out adds the
	// database mirror behind it.
	AuditWriter *ledger.AuditWriter
	Audit       domain.AuditSink

	// Ledgers
	OrderLog  domain.OrderLedgerStore
	Positions domain.PositionLedgerStore

	// Redis
	ResultCache domain.ResultCache
	Recon       domain.ReconPublisher
	Intents     *redis.StreamConsumer
	Commands    *redis.StreamConsumer

	// Blob storage (nil when archival is not configured)
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Audit trail (local JSONL segments) ---
	auditWriter, err := ledger.NewAuditWriter(cfg.Audit.Dir, cfg.Audit.MaxSegmentSize)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: audit writer: %w", err)
	}
	closers = append(closers, func() { _ = auditWriter.Close() })
	deps.AuditWriter = auditWriter

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.Options{
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
	deps.OrderLog = postgres.NewOrderLedgerStore(pool)
	deps.Positions = postgres.NewPositionLedgerStore(pool)
	deps.Audit = ledger.NewFanoutSink(auditWriter, postgres.NewAuditStore(pool))

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.Options{
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

	deps.ResultCache = redis.NewResultCache(redisClient)
	deps.Recon = redis.NewReconBus(redisClient, cfg.Redis.StreamMaxLen)

	consumer := "tradexec-" + cfg.Execution.Session
	deps.Intents = redis.NewStreamConsumer(redisClient, redis.IntentStream, "tradexec", consumer)
	deps.Commands = redis.NewStreamConsumer(redisClient, redis.CommandStream, "tradexec", consumer)

	// --- S3 audit archival (optional) ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.Options{
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			auditWriter,
			cfg.S3.ArchiveInterval.Duration,
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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
