package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/relister/internal/claim"
	"github.com/jonesrussell/north-cloud/relister/internal/config"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
)

const redisPingTimeout = 5 * time.Second

// ErrRedisDisabled indicates Redis is disabled or not configured.
var ErrRedisDisabled = errors.New("redis disabled")

// CreateRedisClient creates a Redis client from config and checks it is reachable.
// Returns ErrRedisDisabled if Redis is disabled.
func CreateRedisClient(ctx context.Context, redisCfg config.RedisConfig) (*redis.Client, error) {
	if !redisCfg.Enabled {
		return nil, ErrRedisDisabled
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Address,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", redisCfg.Address, err)
	}
	return client, nil
}

// SetupLocker returns the Redis locker when Redis is enabled, otherwise a
// process-local one. The returned client is nil for the local locker.
func SetupLocker(ctx context.Context, cfg *config.Config, log logger.Logger) (claim.Locker, *redis.Client, error) {
	client, err := CreateRedisClient(ctx, cfg.Redis)
	if errors.Is(err, ErrRedisDisabled) {
		log.Info("Redis disabled, listing claims are process-local")
		return claim.NewMemoryLocker(), nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	log.Info("Redis claim locker enabled", logger.String("address", cfg.Redis.Address))
	return claim.NewRedisLocker(client, cfg.Redis.Prefix+"claim:"), client, nil
}
