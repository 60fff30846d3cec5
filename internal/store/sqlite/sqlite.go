// Package sqlite is the default local archive: runs and spans in a single
// SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/vidcoach/internal/store"
)

// Store implements store.Store on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; also keeps ":memory:" on a single shared connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("run archive opened", "driver", "sqlite", "path", path)
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			goal TEXT NOT NULL,
			provider TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			final_text TEXT NOT NULL DEFAULT '',
			observations TEXT NOT NULL DEFAULT '[]',
			turns TEXT NOT NULL DEFAULT '[]',
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			estimated_cost REAL NOT NULL DEFAULT 0,
			round_trips INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			ended_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		`CREATE TABLE IF NOT EXISTS spans (
			id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL,
			parent_span_id TEXT,
			span_type TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			start_time INTEGER NOT NULL,
			end_time INTEGER,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			finish_reason TEXT NOT NULL DEFAULT '',
			tool_name TEXT NOT NULL DEFAULT '',
			tool_call_id TEXT NOT NULL DEFAULT '',
			input_preview TEXT NOT NULL DEFAULT '',
			output_preview TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_trace ON spans(trace_id, start_time)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

func (s *Store) SaveRun(ctx context.Context, run *store.RunData) error {
	if err := store.ValidateRun(run); err != nil {
		return err
	}
	obs, err := json.Marshal(orEmpty(run.Observations))
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}
	turns, err := json.Marshal(run.Turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO runs (id, goal, provider, model, status, error, final_text,
			observations, turns, input_tokens, output_tokens, estimated_cost, round_trips, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, error = excluded.error, final_text = excluded.final_text,
			observations = excluded.observations, turns = excluded.turns,
			input_tokens = excluded.input_tokens, output_tokens = excluded.output_tokens,
			estimated_cost = excluded.estimated_cost, round_trips = excluded.round_trips,
			ended_at = excluded.ended_at`,
		run.ID.String(), run.Goal, run.Provider, run.Model, run.Status, run.Error, run.FinalText,
		string(obs), string(turns), run.InputTokens, run.OutputTokens, run.EstimatedCost, run.RoundTrips,
		run.StartedAt.UnixMilli(), millisOrNil(run.EndedAt))
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*store.RunData, error) {
	row := s.db.QueryRowContext(ctx, `SELECT goal, provider, model, status, error, final_text, observations, turns,
			input_tokens, output_tokens, estimated_cost, round_trips, started_at, ended_at
		FROM runs WHERE id = ?`, id.String())

	run := &store.RunData{ID: id}
	var obs, turns string
	var started int64
	var ended sql.NullInt64
	err := row.Scan(&run.Goal, &run.Provider, &run.Model, &run.Status, &run.Error, &run.FinalText, &obs, &turns,
		&run.InputTokens, &run.OutputTokens, &run.EstimatedCost, &run.RoundTrips, &started, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if err := json.Unmarshal([]byte(obs), &run.Observations); err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}
	if err := json.Unmarshal([]byte(turns), &run.Turns); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	run.EndedAt = timeOrNil(ended)
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, opts store.ListRunsOpts) ([]store.RunSummary, error) {
	q := `SELECT id, goal, model, status, round_trips, input_tokens + output_tokens, estimated_cost, started_at, ended_at
		FROM runs`
	var args []any
	if opts.Status != "" {
		q += ` WHERE status = ?`
		args = append(args, opts.Status)
	}
	q += ` ORDER BY started_at DESC, id DESC`
	if opts.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []store.RunSummary
	for rows.Next() {
		var rs store.RunSummary
		var id string
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&id, &rs.Goal, &rs.Model, &rs.Status, &rs.RoundTrips, &rs.TotalTokens,
			&rs.EstimatedCost, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if rs.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		rs.StartedAt = time.UnixMilli(started).UTC()
		rs.EndedAt = timeOrNil(ended)
		out = append(out, rs)
	}
	return out, rows.Err()
}

func (s *Store) BatchCreateSpans(ctx context.Context, spans []store.SpanData) error {
	if len(spans) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO spans (id, trace_id, parent_span_id, span_type, name,
			start_time, end_time, duration_ms, status, error, provider, model, input_tokens, output_tokens,
			finish_reason, tool_name, tool_call_id, input_preview, output_preview, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare span insert: %w", err)
	}
	defer stmt.Close()

	for _, sp := range spans {
		var parent any
		if sp.ParentSpanID != nil && *sp.ParentSpanID != uuid.Nil {
			parent = sp.ParentSpanID.String()
		}
		if _, err := stmt.ExecContext(ctx, sp.ID.String(), sp.TraceID.String(), parent, sp.SpanType, sp.Name,
			sp.StartTime.UnixMilli(), millisOrNil(sp.EndTime), sp.DurationMS, sp.Status, sp.Error,
			sp.Provider, sp.Model, sp.InputTokens, sp.OutputTokens, sp.FinishReason, sp.ToolName, sp.ToolCallID,
			store.TruncatePreview(sp.InputPreview), store.TruncatePreview(sp.OutputPreview),
			sp.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("insert span %s: %w", sp.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListSpans(ctx context.Context, traceID uuid.UUID) ([]store.SpanData, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, parent_span_id, span_type, name, start_time, end_time,
			duration_ms, status, error, provider, model, input_tokens, output_tokens, finish_reason,
			tool_name, tool_call_id, input_preview, output_preview, created_at
		FROM spans WHERE trace_id = ? ORDER BY start_time, created_at`, traceID.String())
	if err != nil {
		return nil, fmt.Errorf("list spans: %w", err)
	}
	defer rows.Close()

	var out []store.SpanData
	for rows.Next() {
		sp := store.SpanData{TraceID: traceID}
		var id string
		var parent sql.NullString
		var start, created int64
		var end sql.NullInt64
		if err := rows.Scan(&id, &parent, &sp.SpanType, &sp.Name, &start, &end, &sp.DurationMS, &sp.Status,
			&sp.Error, &sp.Provider, &sp.Model, &sp.InputTokens, &sp.OutputTokens, &sp.FinishReason,
			&sp.ToolName, &sp.ToolCallID, &sp.InputPreview, &sp.OutputPreview, &created); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		if sp.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("span id %q: %w", id, err)
		}
		if parent.Valid {
			if p, err := uuid.Parse(parent.String); err == nil {
				sp.ParentSpanID = &p
			}
		}
		sp.StartTime = time.UnixMilli(start).UTC()
		sp.EndTime = timeOrNil(end)
		sp.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, sp)
	}
	return out, rows.Err()
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func millisOrNil(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
