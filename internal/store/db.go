// Package store provides the PostgreSQL-backed data source adapter for the
// recommendation pipeline. It reads order, activity, and catalog data from
// the store database (read-only) and produces deduplicated customer records.
// All queries are scoped by a configurable table-name prefix.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"recomail/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction, and tests can substitute a mock.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PoolConfig holds the connection pool parameters.
type PoolConfig struct {
	URL      types.SecretString
	MaxConns int32
}

// NewPool creates a pgx connection pool and verifies connectivity with a
// ping. A failure here is a fatal data source error: the run cannot start
// without a reachable store.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeDataSourceUnreachable,
			"invalid database connection string", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeDataSourceUnreachable,
			"failed to create connection pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, types.NewAppError(types.ErrCodeDataSourceUnreachable,
			fmt.Sprintf("store database is unreachable: %v", err), err)
	}

	return pool, nil
}
