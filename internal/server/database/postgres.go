package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations contains all database migrations in order.
// Each migration has a version key and SQL to execute.
var migrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_orders",
		SQL: `
			CREATE TABLE IF NOT EXISTS orders (
				id             UUID         PRIMARY KEY,
				subtotal       NUMERIC(12,2) NOT NULL DEFAULT 0,
				shipping_zone  TEXT         NOT NULL DEFAULT '',
				shipping_fee   NUMERIC(12,2) NOT NULL DEFAULT 0,
				total          NUMERIC(12,2) NOT NULL DEFAULT 0,
				customer_name  TEXT         NOT NULL DEFAULT '',
				customer_email TEXT         NOT NULL DEFAULT '',
				customer_phone TEXT         NOT NULL DEFAULT '',
				notes          TEXT         NOT NULL DEFAULT '',
				created_at     TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE TABLE IF NOT EXISTS order_items (
				id         BIGSERIAL PRIMARY KEY,
				order_id   UUID      NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
				product_id TEXT      NOT NULL,
				title      TEXT      NOT NULL,
				price      NUMERIC(12,2) NOT NULL DEFAULT 0,
				qty        INTEGER   NOT NULL DEFAULT 1,
				type       TEXT      NOT NULL DEFAULT 'digital'
			);
			CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);
		`,
	},
	{
		Version: "000002_create_download_tokens",
		SQL: `
			CREATE TABLE IF NOT EXISTS download_tokens (
				token      VARCHAR(64) PRIMARY KEY,
				order_id   UUID        NOT NULL,
				product_id TEXT        NOT NULL,
				file_path  TEXT        NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL,
				remaining  INTEGER     NOT NULL CHECK (remaining >= 0),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_download_tokens_order_id ON download_tokens(order_id);
			CREATE INDEX IF NOT EXISTS idx_download_tokens_expires_at ON download_tokens(expires_at);
		`,
	},
}

// DB wraps a pgxpool connection pool and provides health checks and migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database")
	return &DB{Pool: pool}, nil
}

// RunMigrations applies all pending database migrations in order.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", m.Version, err)
		}
		if exists {
			continue
		}

		// Execute migration in a transaction
		tx, err := db.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}

		slog.Info("applied migration", "version", m.Version)
	}

	return nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
