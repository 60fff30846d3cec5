package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/vidcoach/internal/transcript"
)

// GenNewID generates a new UUID v7 (time-ordered).
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Span types.
const (
	SpanTypeRun      = "run"
	SpanTypeLLMCall  = "llm_call"
	SpanTypeToolCall = "tool_call"
)

// Span statuses.
const (
	SpanStatusOK    = "ok"
	SpanStatusError = "error"
)

// RunData is one archived analysis run with its full transcript.
type RunData struct {
	ID            uuid.UUID         `json:"id"`
	Goal          string            `json:"goal"`
	Provider      string            `json:"provider"`
	Model         string            `json:"model"`
	Status        string            `json:"status"`
	Error         string            `json:"error,omitempty"`
	FinalText     string            `json:"final_text,omitempty"`
	Observations  []string          `json:"observations,omitempty"`
	Turns         []transcript.Turn `json:"turns"`
	InputTokens   int64             `json:"input_tokens"`
	OutputTokens  int64             `json:"output_tokens"`
	EstimatedCost float64           `json:"estimated_cost"`
	RoundTrips    int               `json:"round_trips"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
}

// RunSummary is a list row for archived runs.
type RunSummary struct {
	ID            uuid.UUID  `json:"id"`
	Goal          string     `json:"goal"`
	Model         string     `json:"model"`
	Status        string     `json:"status"`
	RoundTrips    int        `json:"round_trips"`
	TotalTokens   int64      `json:"total_tokens"`
	EstimatedCost float64    `json:"estimated_cost"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// ListRunsOpts filters ListRuns. Zero values mean no filter.
type ListRunsOpts struct {
	Status string
	Limit  int
}

// SpanData is one timed step of a run: a model round-trip or a capability
// dispatch. TraceID is the run id.
type SpanData struct {
	ID            uuid.UUID  `json:"id"`
	TraceID       uuid.UUID  `json:"trace_id"`
	ParentSpanID  *uuid.UUID `json:"parent_span_id,omitempty"`
	SpanType      string     `json:"span_type"`
	Name          string     `json:"name"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	DurationMS    int        `json:"duration_ms"`
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	Provider      string     `json:"provider,omitempty"`
	Model         string     `json:"model,omitempty"`
	InputTokens   int        `json:"input_tokens,omitempty"`
	OutputTokens  int        `json:"output_tokens,omitempty"`
	FinishReason  string     `json:"finish_reason,omitempty"`
	ToolName      string     `json:"tool_name,omitempty"`
	ToolCallID    string     `json:"tool_call_id,omitempty"`
	InputPreview  string     `json:"input_preview,omitempty"`
	OutputPreview string     `json:"output_preview,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
