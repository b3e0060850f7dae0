package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/paperbot/internal/blob/s3"
	"github.com/alanyoungcy/paperbot/internal/cache/redis"
	"github.com/alanyoungcy/paperbot/internal/config"
	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/ledger"
	"github.com/alanyoungcy/paperbot/internal/notify"
	"github.com/alanyoungcy/paperbot/internal/store/jsonfile"
	"github.com/alanyoungcy/paperbot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Persistence
	Store domain.LedgerStore

	// Redis-backed collaborators (nil when Redis is disabled)
	Snapshots   domain.SnapshotCache
	EventBus    domain.EventBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Blob storage (nil when S3 is disabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Ledger engine
	Ledger *ledger.Service
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

	deps := &Dependencies{}

	// --- Persistence backend ---
	switch strings.ToLower(cfg.Ledger.Backend) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Store = postgres.NewLedgerStore(pgClient.Pool())

	default:
		store, err := jsonfile.New(cfg.Ledger.DataDir)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: jsonfile store: %w", err)
		}
		deps.Store = store
	}

	// --- Redis (optional) ---
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

		deps.Snapshots = redis.NewSnapshotCache(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3 blob storage (optional) ---
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Store, logger)
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

	// --- Ledger engine ---
	engineCfg := ledgerConfig(cfg)
	opts := []ledger.Option{ledger.WithNotifier(deps.Notifier)}
	if deps.Snapshots != nil {
		opts = append(opts, ledger.WithSnapshotCache(deps.Snapshots))
	}
	if deps.EventBus != nil {
		opts = append(opts, ledger.WithEventBus(deps.EventBus))
	}
	if deps.LockManager != nil {
		opts = append(opts, ledger.WithLockManager(deps.LockManager))
	}
	deps.Ledger = ledger.New(deps.Store, engineCfg, logger, opts...)

	if err := deps.Ledger.InitDefaults(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: init default profile: %w", err)
	}

	return deps, cleanup, nil
}

// ledgerConfig translates the file/env configuration into engine parameters.
func ledgerConfig(cfg *config.Config) ledger.Config {
	return ledger.Config{
		FeeRate:             cfg.Execution.FeeRate,
		SlippagePerThousand: cfg.Execution.SlippagePerThousand,
		LatencyMin:          time.Duration(cfg.Execution.LatencyMinMs) * time.Millisecond,
		LatencyMax:          time.Duration(cfg.Execution.LatencyMaxMs) * time.Millisecond,
		LockTTL:             time.Duration(cfg.Execution.LockTTLSeconds) * time.Second,

		DefaultTP1Percent:      cfg.TPSL.TP1Percent,
		DefaultTP1SizePercent:  cfg.TPSL.TP1SizePercent,
		DefaultTP2Percent:      cfg.TPSL.TP2Percent,
		DefaultStopLossPercent: cfg.TPSL.StopLossPercent,

		DefaultProfileName: cfg.Profile.DefaultName,
		DefaultBalance:     cfg.Profile.DefaultBalance,
		DefaultSettings: domain.ProfileSettings{
			RiskPerTrade:     cfg.Profile.RiskPerTrade,
			AutoStopLoss:     cfg.Profile.AutoStopLoss,
			AutoTakeProfit:   cfg.Profile.AutoTakeProfit,
			MaxOpenPositions: cfg.Profile.MaxOpenPositions,
			AllowShorts:      cfg.Profile.AllowShorts,
		},
	}
}
