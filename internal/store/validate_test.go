package store

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/vidcoach/internal/transcript"
)

func TestValidateRun(t *testing.T) {
	valid := func() *RunData {
		return &RunData{
			ID:     GenNewID(),
			Goal:   "analyze",
			Status: RunStatusCompleted,
			Turns: []transcript.Turn{
				{Seq: 0, Role: transcript.RoleGoal, Text: "analyze"},
				{Seq: 1, Role: transcript.RoleFinal, Text: "1. ok"},
			},
			RoundTrips: 1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *RunData)
		wantErr bool
	}{
		{"valid", func(*RunData) {}, false},
		{"nil id", func(r *RunData) { r.ID = uuid.Nil }, true},
		{"max goal", func(r *RunData) { r.Goal = strings.Repeat("a", MaxGoalLength) }, false},
		{"goal too long", func(r *RunData) { r.Goal = strings.Repeat("a", MaxGoalLength+1) }, true},
		{"bad status", func(r *RunData) { r.Status = "paused" }, true},
		{"negative usage", func(r *RunData) { r.InputTokens = -1 }, true},
		{"sequence gap", func(r *RunData) { r.Turns[1].Seq = 2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := ValidateRun(r)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRun() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if ValidateRun(nil) == nil {
		t.Error("expected error for nil run")
	}
}

func TestTruncatePreview(t *testing.T) {
	if got := TruncatePreview("short"); got != "short" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("é", MaxPreviewLength+10)
	got := TruncatePreview(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != MaxPreviewLength+3 {
		t.Errorf("unexpected truncation: %d runes", len([]rune(got)))
	}
}

func TestTruncateGoal(t *testing.T) {
	if got := TruncateGoal("short"); got != "short" {
		t.Errorf("got %q", got)
	}
	// "é" is two bytes, so an odd prefix would land mid-rune.
	long := "x" + strings.Repeat("é", MaxGoalLength)
	got := TruncateGoal(long)
	if !utf8.ValidString(got) {
		t.Fatal("truncated goal is not valid UTF-8")
	}
	if len(got) > MaxGoalLength || len(got) < MaxGoalLength-1 {
		t.Errorf("len = %d, want about %d", len(got), MaxGoalLength)
	}
	if err := ValidateRun(&RunData{ID: GenNewID(), Goal: got, Status: RunStatusCompleted}); err != nil {
		t.Errorf("ValidateRun: %v", err)
	}
}
