// Package bootstrap opens the process-wide resources both binaries share.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"posledger/backend/internal/config"
	"posledger/backend/internal/realtime"
	"posledger/backend/internal/store"
	"posledger/backend/internal/store/memory"
	pgstore "posledger/backend/internal/store/postgres"
)

// Closer releases a resource at shutdown.
type Closer func() error

// OpenRepository connects to Postgres when DATABASE_URL is set and falls back
// to the seeded in-memory store otherwise. A configured but unreachable
// database is an error.
func OpenRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Repository, Closer, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("repository ready", slog.String("driver", "memory"))
		return memory.NewSeeded(), func() error { return nil }, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	logger.Info("repository ready", slog.String("driver", "postgres"))
	return pg, pg.Close, nil
}

// OpenBroker returns a Redis pub/sub broker when REDIS_ADDR is set and
// reachable, otherwise an in-process hub.
func OpenBroker(ctx context.Context, cfg config.Config, logger *slog.Logger) (realtime.Broker, Closer) {
	if !cfg.RedisEnabled() {
		logger.Info("event broker ready", slog.String("driver", "hub"))
		return realtime.NewHub(64), func() error { return nil }
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	broker := realtime.NewRedisBroker(client, cfg.RealtimeChannel, logger)
	if err := broker.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, using in-process event hub",
			slog.String("addr", cfg.RedisAddr),
			slog.Any("error", err),
		)
		_ = broker.Close()
		return realtime.NewHub(64), func() error { return nil }
	}
	logger.Info("event broker ready", slog.String("driver", "redis"), slog.String("channel", cfg.RealtimeChannel))
	return broker, broker.Close
}
