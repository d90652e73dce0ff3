package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vellum/internal/domain/repositories"
)

// RepositoryConfig holds shared dependencies for repository implementations.
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds environment-prefixed table names (dev_/test_/prod_).
type TableNames struct {
	Projects   string
	Documents  string
	Operations string
}

// NewTableNames creates table names with the given prefix.
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Projects:   prefix + "projects",
		Documents:  prefix + "documents",
		Operations: prefix + "ai_operations",
	}
}

// CreateConnectionPool creates a pgx pool with PgBouncer compatibility.
//
// Supabase's transaction pooler (port 6543) does not support prepared
// statements, which pgx uses by default (QueryExecModeCacheStatement).
// When the pooler port is detected and the user hasn't overridden the mode
// via ?default_query_exec_mode=..., we switch to QueryExecModeCacheDescribe:
// it keeps the extended protocol (needed for JSONB parameter encoding) while
// caching only statement descriptions, which the pooler tolerates.
//
// The fmt-interpolated table prefixes used throughout this package are safe
// with prepared statements: the SQL text is fixed before it reaches the
// server, so each environment simply gets its own statements.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction from ctx when one is present,
// otherwise the pool, so repositories transparently join transactions.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
