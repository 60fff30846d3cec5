package pg

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB creates a database/sql connection to Postgres using pgx driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("postgres connected", "dsn_len", len(dsn))
	return db, nil
}

// Store implements store.Store on Postgres.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS vidcoach_runs (
		id UUID PRIMARY KEY,
		goal VARCHAR(4096) NOT NULL,
		provider VARCHAR(64) NOT NULL DEFAULT '',
		model VARCHAR(128) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL,
		error TEXT,
		final_text TEXT,
		observations JSONB NOT NULL DEFAULT '[]',
		turns JSONB NOT NULL DEFAULT '[]',
		input_tokens BIGINT NOT NULL DEFAULT 0,
		output_tokens BIGINT NOT NULL DEFAULT 0,
		estimated_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		round_trips INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vidcoach_runs_started ON vidcoach_runs(started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS vidcoach_spans (
		id UUID PRIMARY KEY,
		trace_id UUID NOT NULL,
		parent_span_id UUID,
		span_type VARCHAR(16) NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT '',
		error TEXT,
		provider VARCHAR(64),
		model VARCHAR(128),
		input_tokens INTEGER,
		output_tokens INTEGER,
		finish_reason VARCHAR(32),
		tool_name VARCHAR(128),
		tool_call_id VARCHAR(128),
		input_preview TEXT,
		output_preview TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vidcoach_spans_trace ON vidcoach_spans(trace_id, start_time)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}
