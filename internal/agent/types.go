package agent

import (
	"context"

	"github.com/nextlevelbuilder/vidcoach/internal/store"
	"github.com/nextlevelbuilder/vidcoach/internal/usage"
)

// Agent is the core abstraction for an analysis run.
// Implemented by *Loop; extracted as an interface for testability.
type Agent interface {
	ID() string
	Run(ctx context.Context, goal string) (*FinalAnswer, error)
	IsRunning() bool
	Model() string
}

// FinalAnswer is what a successful run hands to the presentation layer.
type FinalAnswer struct {
	RunID        string       `json:"run_id"`
	Text         string       `json:"text"`
	Observations []string     `json:"observations"`
	Usage        usage.Record `json:"usage"`
	Turns        int          `json:"turns"`
}

// AgentEvent reports run progress. Type is one of the protocol.AgentEvent*
// names; Payload depends on the type.
type AgentEvent struct {
	Type    string `json:"type"`
	RunID   string `json:"run_id"`
	Payload any    `json:"payload,omitempty"`
}

// ToolCallPayload accompanies tool.call events.
type ToolCallPayload struct {
	RequestID  string         `json:"request_id"`
	Capability string         `json:"capability"`
	Arguments  map[string]any `json:"arguments,omitempty"`
}

// ToolResultPayload accompanies tool.result events.
type ToolResultPayload struct {
	RequestID  string `json:"request_id"`
	Capability string `json:"capability"`
	Status     string `json:"status"`
	Kind       string `json:"kind,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// SpanEmitter receives finished spans. *tracing.Collector implements it.
type SpanEmitter interface {
	EmitSpan(span store.SpanData)
}
