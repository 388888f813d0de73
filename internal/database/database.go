// Package database owns the Postgres side of the upload journal.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig builds the pool settings for a journal process. Each journal
// worker holds at most one connection while it stores a row, plus one spare
// for schema setup and `snapdrop history` reads.
func PoolConfig(dsn string, workers int) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if workers < 1 {
		workers = 1
	}
	cfg.MaxConns = int32(workers) + 1
	cfg.MinConns = 0
	cfg.MaxConnIdleTime = time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.ConnConfig.RuntimeParams["application_name"] = "snapdrop-journal"
	return cfg, nil
}

// Connect opens a pool sized for workers concurrent writers and checks that
// the server answers.
func Connect(ctx context.Context, dsn string, workers int) (*pgxpool.Pool, error) {
	cfg, err := PoolConfig(dsn, workers)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open journal pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reach journal database: %w", err)
	}
	return pool, nil
}

// schema is idempotent; job_id is the upsert key so a redelivered task
// overwrites its own row.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS uploads (
	job_id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size BIGINT NOT NULL,
	status TEXT NOT NULL,
	identifier TEXT,
	url TEXT,
	reason TEXT,
	backend TEXT NOT NULL,
	target TEXT NOT NULL,
	settled_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_uploads_settled_at ON uploads(settled_at DESC)`,
}

// EnsureSchema creates the journal table and the index `history` sorts on.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure journal schema: %w", err)
		}
	}
	return nil
}
