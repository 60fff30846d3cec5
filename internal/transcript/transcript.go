// Package transcript holds the append-only record of one analysis run:
// the seed goal, every capability request the model issued, the results that
// answered them, and the final answer.
package transcript

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Role identifies what a turn carries.
type Role string

const (
	RoleGoal    Role = "goal"
	RoleRequest Role = "request"
	RoleResult  Role = "result"
	RoleFinal   Role = "final"
)

// Status is the outcome of a single capability invocation.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Request is one capability invocation emitted by the model.
type Request struct {
	ID         string         `json:"request_id"`
	Capability string         `json:"capability_name"`
	Arguments  map[string]any `json:"arguments"`
}

// Result answers exactly one Request. Data holds the structured payload on ok
// and optional classification details on error.
type Result struct {
	RequestID string `json:"request_id"`
	Status    Status `json:"status"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// Turn is one immutable entry. Seq is assigned by Append.
type Turn struct {
	Seq       int       `json:"sequence_index"`
	Role      Role      `json:"role"`
	Text      string    `json:"text,omitempty"`
	Requests  []Request `json:"requests,omitempty"`
	Results   []Result  `json:"results,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RequestIDs returns the ids of the turn's requests in order.
func (t Turn) RequestIDs() []string {
	ids := make([]string, len(t.Requests))
	for i, r := range t.Requests {
		ids[i] = r.ID
	}
	return ids
}

// ResultIDs returns the request ids addressed by the turn's results in order.
func (t Turn) ResultIDs() []string {
	ids := make([]string, len(t.Results))
	for i, r := range t.Results {
		ids[i] = r.RequestID
	}
	return ids
}

// Transcript is an ordered, append-only sequence of turns.
// Payloads stored in Arguments and Data are treated as read-only after append.
type Transcript struct {
	mu      sync.RWMutex
	turns   []Turn
	pending []string // request ids of the last request turn, until answered
	closed  bool
}

// New returns an empty transcript.
func New() *Transcript {
	return &Transcript{turns: make([]Turn, 0, 16)}
}

// Append validates ordering, assigns the next sequence index and stores the
// turn. The stored copy is returned.
func (t *Transcript) Append(turn Turn) (Turn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkLocked(turn); err != nil {
		return Turn{}, err
	}

	stored := cloneTurn(turn)
	stored.Seq = len(t.turns)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	t.turns = append(t.turns, stored)

	switch turn.Role {
	case RoleRequest:
		t.pending = stored.RequestIDs()
	case RoleResult:
		t.pending = nil
	case RoleFinal:
		t.closed = true
	}
	return cloneTurn(stored), nil
}

func (t *Transcript) checkLocked(turn Turn) error {
	if t.closed {
		return &OutOfOrderError{Role: turn.Role, Reason: "transcript already holds a final turn"}
	}
	if turn.Role != RoleGoal && len(t.turns) == 0 {
		return &OutOfOrderError{Role: turn.Role, Reason: "first turn must be the goal"}
	}

	switch turn.Role {
	case RoleGoal:
		if len(t.turns) > 0 {
			return &OutOfOrderError{Role: turn.Role, Reason: "goal can only be the first turn"}
		}
		if turn.Text == "" {
			return fmt.Errorf("transcript: goal turn has no text")
		}

	case RoleRequest:
		if len(t.pending) > 0 {
			return &OutOfOrderError{Role: turn.Role, Reason: "previous requests are unanswered", Pending: slices.Clone(t.pending)}
		}
		if len(turn.Requests) == 0 {
			return fmt.Errorf("transcript: request turn carries no requests")
		}
		seen := make(map[string]struct{}, len(turn.Requests))
		for _, r := range turn.Requests {
			if r.ID == "" {
				return fmt.Errorf("%w: empty request id for %q", ErrDuplicateRequestID, r.Capability)
			}
			if _, dup := seen[r.ID]; dup {
				return fmt.Errorf("%w: %s", ErrDuplicateRequestID, r.ID)
			}
			seen[r.ID] = struct{}{}
		}

	case RoleResult:
		got := turn.ResultIDs()
		if len(t.pending) == 0 {
			return &OutOfOrderError{Role: turn.Role, Reason: "no unanswered requests", Got: got}
		}
		if !slices.Equal(t.pending, got) {
			return &OutOfOrderError{Role: turn.Role, Reason: "results do not match pending requests", Pending: slices.Clone(t.pending), Got: got}
		}

	case RoleFinal:
		if len(t.pending) > 0 {
			return &OutOfOrderError{Role: turn.Role, Reason: "final answer with unanswered requests", Pending: slices.Clone(t.pending)}
		}

	default:
		return fmt.Errorf("transcript: unknown role %q", turn.Role)
	}
	return nil
}

// Render returns the full ordered history for building the next model query.
// It does not mutate the transcript and may be called any number of times.
func (t *Transcript) Render() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, len(t.turns))
	for i, turn := range t.turns {
		out[i] = cloneTurn(turn)
	}
	return out
}

// Len returns the number of appended turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Last returns the most recent turn.
func (t *Transcript) Last() (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return cloneTurn(t.turns[len(t.turns)-1]), true
}

// Pending returns the ids of requests still waiting for results.
func (t *Transcript) Pending() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.pending)
}

// Closed reports whether a final turn has been appended.
func (t *Transcript) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func cloneTurn(in Turn) Turn {
	out := in
	if in.Requests != nil {
		out.Requests = make([]Request, len(in.Requests))
		for i, r := range in.Requests {
			r.Arguments = maps.Clone(r.Arguments)
			out.Requests[i] = r
		}
	}
	if in.Results != nil {
		out.Results = slices.Clone(in.Results)
	}
	return out
}
