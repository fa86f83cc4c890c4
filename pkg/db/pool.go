// Package db stores call descriptors and the call journal in Postgres via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// Pool sizing for the relay. The journal writes once per call.
const (
	poolMaxConns = 20
	poolMinConns = 2
)

// NewPool connects to databaseURL and pings it. Pool limits given in the
// URL (pool_max_conns, pool_min_conns) win over the defaults.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("%s - empty database URL", logPrefix)
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}
	applyPoolDefaults(cfg, databaseURL)

	slog.Info(fmt.Sprintf("%s - Connecting to %s/%s (max %d conns)",
		logPrefix, cfg.ConnConfig.Host, cfg.ConnConfig.Database, cfg.MaxConns))

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}
	return pool, nil
}

func applyPoolDefaults(cfg *pgxpool.Config, databaseURL string) {
	if !hasPoolParam(databaseURL, "pool_max_conns") {
		cfg.MaxConns = poolMaxConns
	}
	if !hasPoolParam(databaseURL, "pool_min_conns") {
		cfg.MinConns = poolMinConns
	}
}

// hasPoolParam reports whether a URL or keyword/value DSN sets name.
func hasPoolParam(databaseURL, name string) bool {
	return strings.Contains(databaseURL, name+"=")
}
