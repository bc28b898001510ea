package app

import (
	"context"
	"fmt"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/ctxlog"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/exclusive"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/exclusive/redislock"
	"github.com/redis/go-redis/v9"
)

// newBroker returns the exclusivity broker selected by the configuration and
// a function releasing its resources.
func (a *App) newBroker(ctx context.Context) (exclusive.Broker, func(), error) {
	logger := ctxlog.FromContext(ctx)
	cfg := a.config.Exclusive

	if cfg.Backend != BackendRedis {
		logger.Debug("Using in-process exclusivity backend.")
		return exclusive.Default(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("Using redis exclusivity backend.", "addr", cfg.RedisAddr, "prefix", cfg.Prefix)

	release := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close redis client.", "error", err)
		}
	}
	return redislock.New(client, cfg.Prefix), release, nil
}
