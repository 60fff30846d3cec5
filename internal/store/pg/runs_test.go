package pg

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/vidcoach/internal/store"
	"github.com/nextlevelbuilder/vidcoach/internal/transcript"
)

func TestHelpers(t *testing.T) {
	if nilStr("") != nil || *nilStr("x") != "x" {
		t.Error("nilStr")
	}
	if nilInt(0) != nil || *nilInt(3) != 3 {
		t.Error("nilInt")
	}
	zero := uuid.Nil
	if nilUUID(nil) != nil || nilUUID(&zero) != nil {
		t.Error("nilUUID should drop nil and uuid.Nil")
	}
	var zt time.Time
	if nilTime(&zt) != nil {
		t.Error("nilTime should drop zero time")
	}
	b, err := jsonArray([]string(nil))
	if err != nil || string(b) != "[]" {
		t.Errorf("jsonArray(nil) = %s, %v", b, err)
	}
}

// Runs against a live database when VIDCOACH_TEST_POSTGRES_DSN is set.
func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("VIDCOACH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VIDCOACH_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	started := time.Now().UTC().Truncate(time.Microsecond)
	run := &store.RunData{
		ID:     store.GenNewID(),
		Goal:   "Analyze https://youtu.be/abc",
		Status: store.RunStatusCompleted,
		Turns: []transcript.Turn{
			{Seq: 0, Role: transcript.RoleGoal, Text: "Analyze https://youtu.be/abc"},
			{Seq: 1, Role: transcript.RoleFinal, Text: "1. ok"},
		},
		Observations: []string{"ok"},
		RoundTrips:   1,
		StartedAt:    started,
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(got.Turns) != 2 || got.Observations[0] != "ok" {
		t.Errorf("unexpected run: %+v", got)
	}
	if _, err := s.GetRun(ctx, store.GenNewID()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	span := store.SpanData{ID: store.GenNewID(), TraceID: run.ID, SpanType: store.SpanTypeRun, StartTime: started}
	if err := s.BatchCreateSpans(ctx, []store.SpanData{span}); err != nil {
		t.Fatalf("BatchCreateSpans: %v", err)
	}
	spans, err := s.ListSpans(ctx, run.ID)
	if err != nil || len(spans) != 1 {
		t.Fatalf("ListSpans = %d, %v", len(spans), err)
	}
}
