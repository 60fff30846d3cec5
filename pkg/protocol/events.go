// Package protocol defines the progress event stream emitted by analysis
// runs (`vidcoach analyze --events`). One JSON object per line.
package protocol

import (
	"encoding/json"
	"time"
)

// Event stream version. Bumped when a payload changes shape.
const ProtocolVersion = 1

// Agent event types (EventFrame.Type).
const (
	AgentEventRunStarted   = "run.started"
	AgentEventRunCompleted = "run.completed"
	AgentEventRunFailed    = "run.failed"
	AgentEventToolCall     = "tool.call"
	AgentEventToolResult   = "tool.result"
)

// EventFrame is one line of the event stream.
type EventFrame struct {
	Version int             `json:"v"`
	Seq     int64           `json:"seq"`
	Type    string          `json:"type"`
	RunID   string          `json:"run_id"`
	Time    time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEventFrame encodes payload into a frame stamped with the current time.
func NewEventFrame(seq int64, eventType, runID string, payload any) (*EventFrame, error) {
	f := &EventFrame{
		Version: ProtocolVersion,
		Seq:     seq,
		Type:    eventType,
		RunID:   runID,
		Time:    time.Now().UTC(),
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		f.Payload = b
	}
	return f, nil
}
