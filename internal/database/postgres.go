// Package database opens the optional backends of the bot: the Postgres
// pool behind the postback journal and the Redis client behind the shared
// result cache.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/ppbot/internal/config"
	"go.uber.org/zap"
)

// connectTimeout bounds the initial dial and ping of either backend.
const connectTimeout = 10 * time.Second

// JournalPool is the Postgres pool the postback journal writes to.
type JournalPool struct {
	Pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewJournalPool opens the journal database. The journal writes one row per
// postback, so the pool stays small and recycles idle connections quickly.
func NewJournalPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*JournalPool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("journal database config: %w", err)
	}
	pc.MaxConns = int32(cfg.MaxConns)
	pc.MinConns = int32(cfg.MinConns)
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.HealthCheckPeriod = time.Minute
	pc.ConnConfig.RuntimeParams["application_name"] = "ppbot-journal"

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open journal database %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.DBName, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal database %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.DBName, err)
	}

	logger.Info("postback journal database ready",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName),
		zap.Int32("max_conns", pc.MaxConns),
	)
	return &JournalPool{Pool: pool, logger: logger}, nil
}

// Health pings the journal database.
func (j *JournalPool) Health(ctx context.Context) error {
	return j.Pool.Ping(ctx)
}

// Close releases every pooled connection.
func (j *JournalPool) Close() {
	if j.Pool == nil {
		return
	}
	j.Pool.Close()
	j.logger.Info("postback journal database closed")
}
