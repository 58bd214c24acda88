package database

import (
	"context"
	"fmt"

	"github.com/radiusdt/ppbot/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheClient is the Redis connection shared by every bot instance for
// cached report results. Prefix namespaces the keys of one deployment.
type CacheClient struct {
	Client *redis.Client
	Prefix string
	logger *zap.Logger
}

// NewCacheClient dials Redis for the result cache. Each chat update makes
// at most a couple of cache calls, so a small pool is enough.
func NewCacheClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*CacheClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("result cache redis %s: %w", cfg.Addr, err)
	}

	logger.Info("result cache connected to Redis",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("key_prefix", cfg.Prefix),
	)
	return &CacheClient{Client: client, Prefix: cfg.Prefix, logger: logger}, nil
}

// Health pings the cache.
func (c *CacheClient) Health(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// Close closes the client.
func (c *CacheClient) Close() error {
	if c.Client == nil {
		return nil
	}
	c.logger.Info("result cache Redis connection closed")
	return c.Client.Close()
}
