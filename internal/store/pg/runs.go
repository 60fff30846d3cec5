package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/vidcoach/internal/store"
)

func (s *Store) SaveRun(ctx context.Context, run *store.RunData) error {
	if err := store.ValidateRun(run); err != nil {
		return err
	}
	obs, err := jsonArray(run.Observations)
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}
	turns, err := jsonArray(run.Turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO vidcoach_runs (id, goal, provider, model, status, error, final_text,
			observations, turns, input_tokens, output_tokens, estimated_cost, round_trips, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, error = EXCLUDED.error, final_text = EXCLUDED.final_text,
			observations = EXCLUDED.observations, turns = EXCLUDED.turns,
			input_tokens = EXCLUDED.input_tokens, output_tokens = EXCLUDED.output_tokens,
			estimated_cost = EXCLUDED.estimated_cost, round_trips = EXCLUDED.round_trips,
			ended_at = EXCLUDED.ended_at`,
		run.ID, run.Goal, run.Provider, run.Model, run.Status, nilStr(run.Error), nilStr(run.FinalText),
		obs, turns, run.InputTokens, run.OutputTokens, run.EstimatedCost, run.RoundTrips,
		run.StartedAt, nilTime(run.EndedAt))
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*store.RunData, error) {
	run := &store.RunData{ID: id}
	var errMsg, finalText *string
	var obs, turns []byte
	err := s.db.QueryRowContext(ctx, `SELECT goal, provider, model, status, error, final_text, observations, turns,
			input_tokens, output_tokens, estimated_cost, round_trips, started_at, ended_at
		FROM vidcoach_runs WHERE id = $1`, id).
		Scan(&run.Goal, &run.Provider, &run.Model, &run.Status, &errMsg, &finalText, &obs, &turns,
			&run.InputTokens, &run.OutputTokens, &run.EstimatedCost, &run.RoundTrips, &run.StartedAt, &run.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	run.Error, run.FinalText = derefStr(errMsg), derefStr(finalText)
	if err := json.Unmarshal(obs, &run.Observations); err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}
	if err := json.Unmarshal(turns, &run.Turns); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, opts store.ListRunsOpts) ([]store.RunSummary, error) {
	var where []string
	var args []any
	if opts.Status != "" {
		args = append(args, opts.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	q := `SELECT id, goal, model, status, round_trips, input_tokens + output_tokens, estimated_cost, started_at, ended_at
		FROM vidcoach_runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC, id DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []store.RunSummary
	for rows.Next() {
		var rs store.RunSummary
		if err := rows.Scan(&rs.ID, &rs.Goal, &rs.Model, &rs.Status, &rs.RoundTrips, &rs.TotalTokens,
			&rs.EstimatedCost, &rs.StartedAt, &rs.EndedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
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

	for _, sp := range spans {
		created := sp.CreatedAt
		if created.IsZero() {
			created = nowUTC()
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO vidcoach_spans (id, trace_id, parent_span_id, span_type, name,
				start_time, end_time, duration_ms, status, error, provider, model, input_tokens, output_tokens,
				finish_reason, tool_name, tool_call_id, input_preview, output_preview, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
			ON CONFLICT (id) DO NOTHING`,
			sp.ID, sp.TraceID, nilUUID(sp.ParentSpanID), sp.SpanType, sp.Name,
			sp.StartTime, nilTime(sp.EndTime), sp.DurationMS, sp.Status, nilStr(sp.Error),
			nilStr(sp.Provider), nilStr(sp.Model), nilInt(sp.InputTokens), nilInt(sp.OutputTokens),
			nilStr(sp.FinishReason), nilStr(sp.ToolName), nilStr(sp.ToolCallID),
			nilStr(store.TruncatePreview(sp.InputPreview)), nilStr(store.TruncatePreview(sp.OutputPreview)), created)
		if err != nil {
			return fmt.Errorf("insert span %s: %w", sp.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListSpans(ctx context.Context, traceID uuid.UUID) ([]store.SpanData, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, parent_span_id, span_type, name, start_time, end_time,
			duration_ms, status, error, provider, model, input_tokens, output_tokens, finish_reason,
			tool_name, tool_call_id, input_preview, output_preview, created_at
		FROM vidcoach_spans WHERE trace_id = $1 ORDER BY start_time, created_at`, traceID)
	if err != nil {
		return nil, fmt.Errorf("list spans: %w", err)
	}
	defer rows.Close()

	var out []store.SpanData
	for rows.Next() {
		sp := store.SpanData{TraceID: traceID}
		var parent *uuid.UUID
		var end *time.Time
		var errMsg, provider, model, finish, toolName, toolCallID, in, outPreview *string
		var inTok, outTok *int
		if err := rows.Scan(&sp.ID, &parent, &sp.SpanType, &sp.Name, &sp.StartTime, &end, &sp.DurationMS,
			&sp.Status, &errMsg, &provider, &model, &inTok, &outTok, &finish, &toolName, &toolCallID,
			&in, &outPreview, &sp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		sp.ParentSpanID, sp.EndTime = parent, end
		sp.Error, sp.Provider, sp.Model = derefStr(errMsg), derefStr(provider), derefStr(model)
		sp.InputTokens, sp.OutputTokens = derefInt(inTok), derefInt(outTok)
		sp.FinishReason, sp.ToolName, sp.ToolCallID = derefStr(finish), derefStr(toolName), derefStr(toolCallID)
		sp.InputPreview, sp.OutputPreview = derefStr(in), derefStr(outPreview)
		out = append(out, sp)
	}
	return out, rows.Err()
}
