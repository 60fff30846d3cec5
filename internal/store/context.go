package store

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// RunIDKey is the context key for the id of the run a call belongs to.
const RunIDKey contextKey = "vidcoach_run_id"

// WithRunID returns a new context carrying the run id.
func WithRunID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// RunIDFromContext extracts the run id from context. Returns uuid.Nil if not set.
func RunIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(RunIDKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}
