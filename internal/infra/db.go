package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbConnectBudget = 30 * time.Second

// NewDBPool opens the pool for cfg.DatabaseURL. The first ping is retried with
// exponential backoff for up to 30s so the API can start alongside its
// database.
func NewDBPool(ctx context.Context, cfg *Config, logger Logger) (*pgxpool.Pool, error) {
	if cfg == nil || cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	// History writes and key lookups are short; a handful of connections
	// covers every in-flight generation.
	poolCfg.MaxConns = int32(max(4, cfg.MaxConcurrentFormats*2))
	poolCfg.MinConns = 1
	poolCfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = dbConnectBudget
	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return pool.Ping(pingCtx)
	}
	notify := func(err error, next time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", next).Msg("db: not reachable yet")
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(policy, ctx), notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// IsNoRows reports whether err signals an empty result set.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
