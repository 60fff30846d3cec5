package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// RunStore archives analysis runs.
type RunStore interface {
	// SaveRun inserts or replaces a run by id.
	SaveRun(ctx context.Context, run *RunData) error
	GetRun(ctx context.Context, id uuid.UUID) (*RunData, error)
	// ListRuns returns summaries, newest first.
	ListRuns(ctx context.Context, opts ListRunsOpts) ([]RunSummary, error)
}

// TracingStore persists spans flushed by the tracing collector.
type TracingStore interface {
	BatchCreateSpans(ctx context.Context, spans []SpanData) error
	ListSpans(ctx context.Context, traceID uuid.UUID) ([]SpanData, error)
}

// Store is a complete archive backend.
type Store interface {
	RunStore
	TracingStore
	Close() error
}
