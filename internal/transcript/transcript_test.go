package transcript

import (
	"errors"
	"testing"
)

func seeded(t *testing.T) *Transcript {
	t.Helper()
	tr := New()
	if _, err := tr.Append(Turn{Role: RoleGoal, Text: "analyze https://example.com/v"}); err != nil {
		t.Fatalf("append goal: %v", err)
	}
	return tr
}

func requestTurn(ids ...string) Turn {
	reqs := make([]Request, len(ids))
	for i, id := range ids {
		reqs[i] = Request{ID: id, Capability: "cap", Arguments: map[string]any{"n": i}}
	}
	return Turn{Role: RoleRequest, Requests: reqs}
}

func resultTurn(ids ...string) Turn {
	res := make([]Result, len(ids))
	for i, id := range ids {
		res[i] = Result{RequestID: id, Status: StatusOK}
	}
	return Turn{Role: RoleResult, Results: res}
}

func TestTranscript_SequenceIndexes(t *testing.T) {
	tr := seeded(t)
	if _, err := tr.Append(requestTurn("a", "b")); err != nil {
		t.Fatalf("append request: %v", err)
	}
	stored, err := tr.Append(resultTurn("a", "b"))
	if err != nil {
		t.Fatalf("append result: %v", err)
	}
	if stored.Seq != 2 {
		t.Errorf("result seq = %d, want 2", stored.Seq)
	}
	final, err := tr.Append(Turn{Role: RoleFinal, Text: "done"})
	if err != nil {
		t.Fatalf("append final: %v", err)
	}
	if final.Seq != 3 {
		t.Errorf("final seq = %d, want 3", final.Seq)
	}

	for i, turn := range tr.Render() {
		if turn.Seq != i {
			t.Errorf("turn %d has seq %d", i, turn.Seq)
		}
	}
	if !tr.Closed() {
		t.Error("transcript should be closed after final turn")
	}
}

func TestTranscript_FirstTurnMustBeGoal(t *testing.T) {
	tr := New()
	_, err := tr.Append(requestTurn("a"))
	if !errors.Is(err, ErrOutOfOrderResult) {
		t.Fatalf("expected ErrOutOfOrderResult, got %v", err)
	}
	if tr.Len() != 0 {
		t.Errorf("rejected turn was stored")
	}
}

func TestTranscript_ResultMismatch(t *testing.T) {
	tests := []struct {
		name    string
		results []string
	}{
		{"missing", []string{"a"}},
		{"reordered", []string{"b", "a"}},
		{"extra", []string{"a", "b", "c"}},
		{"foreign", []string{"a", "z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := seeded(t)
			if _, err := tr.Append(requestTurn("a", "b")); err != nil {
				t.Fatalf("append request: %v", err)
			}
			_, err := tr.Append(resultTurn(tt.results...))
			var ooe *OutOfOrderError
			if !errors.As(err, &ooe) {
				t.Fatalf("expected OutOfOrderError, got %v", err)
			}
			if len(ooe.Pending) != 2 {
				t.Errorf("pending = %v, want [a b]", ooe.Pending)
			}
			if got := tr.Pending(); len(got) != 2 {
				t.Errorf("pending requests lost after rejected append: %v", got)
			}
		})
	}
}

func TestTranscript_ResultWithoutRequest(t *testing.T) {
	tr := seeded(t)
	if _, err := tr.Append(resultTurn("a")); !errors.Is(err, ErrOutOfOrderResult) {
		t.Fatalf("expected ErrOutOfOrderResult, got %v", err)
	}
}

func TestTranscript_RequestWhilePending(t *testing.T) {
	tr := seeded(t)
	if _, err := tr.Append(requestTurn("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Append(requestTurn("b")); !errors.Is(err, ErrOutOfOrderResult) {
		t.Fatalf("expected ErrOutOfOrderResult, got %v", err)
	}
	if _, err := tr.Append(Turn{Role: RoleFinal}); !errors.Is(err, ErrOutOfOrderResult) {
		t.Fatalf("final with pending requests: expected ErrOutOfOrderResult, got %v", err)
	}
}

func TestTranscript_DuplicateRequestIDs(t *testing.T) {
	tr := seeded(t)
	if _, err := tr.Append(requestTurn("a", "a")); !errors.Is(err, ErrDuplicateRequestID) {
		t.Fatalf("expected ErrDuplicateRequestID, got %v", err)
	}
	if _, err := tr.Append(requestTurn("")); !errors.Is(err, ErrDuplicateRequestID) {
		t.Fatalf("expected ErrDuplicateRequestID for empty id, got %v", err)
	}
}

func TestTranscript_AppendAfterFinal(t *testing.T) {
	tr := seeded(t)
	if _, err := tr.Append(Turn{Role: RoleFinal, Text: "ok"}); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Append(requestTurn("a")); !errors.Is(err, ErrOutOfOrderResult) {
		t.Fatalf("expected ErrOutOfOrderResult, got %v", err)
	}
}

func TestTranscript_RenderIsIsolated(t *testing.T) {
	tr := seeded(t)
	if _, err := tr.Append(requestTurn("a")); err != nil {
		t.Fatal(err)
	}

	first := tr.Render()
	first[1].Requests[0].Arguments["n"] = 99
	first[1].Requests[0].ID = "mutated"

	second := tr.Render()
	if second[1].Requests[0].ID != "a" {
		t.Errorf("render exposed internal request slice")
	}
	if second[1].Requests[0].Arguments["n"] != 0 {
		t.Errorf("render exposed internal arguments map")
	}
	if len(second) != tr.Len() {
		t.Errorf("render length %d != len %d", len(second), tr.Len())
	}
}
