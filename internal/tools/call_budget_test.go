package tools

import (
	"testing"
	"time"
)

func TestNewCallBudget_Disabled(t *testing.T) {
	for _, max := range []int{0, -5} {
		if b := NewCallBudget(max, time.Hour); b != nil {
			t.Errorf("expected nil for max=%d, got %v", max, b)
		}
	}
}

func TestCallBudget_BlockOverLimit(t *testing.T) {
	b := NewCallBudget(3, time.Hour)
	for i := 0; i < 3; i++ {
		if err := b.Allow("download_youtube_video"); err != nil {
			t.Fatalf("call %d should be allowed: %v", i, err)
		}
	}

	err := b.Allow("download_youtube_video")
	if err == nil {
		t.Fatal("4th call should be blocked")
	}
	if ClassOf(err) != ClassBudgetExceeded {
		t.Errorf("class = %q, want %q", ClassOf(err), ClassBudgetExceeded)
	}
	if got := b.Remaining("download_youtube_video"); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
}

func TestCallBudget_SeparateCapabilities(t *testing.T) {
	b := NewCallBudget(1, time.Hour)
	b.Allow("a")
	if err := b.Allow("a"); err == nil {
		t.Error("a should be blocked")
	}
	if err := b.Allow("b"); err != nil {
		t.Errorf("b should be allowed: %v", err)
	}
}

func TestCallBudget_WindowExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewCallBudget(2, time.Minute)
	b.nowFunc = func() time.Time { return now }

	b.Allow("k")
	b.Allow("k")
	if err := b.Allow("k"); err == nil {
		t.Fatal("should be blocked at limit")
	}

	now = now.Add(61 * time.Second)
	if err := b.Allow("k"); err != nil {
		t.Errorf("should be allowed after window expiry: %v", err)
	}
}

func TestCallBudget_Cleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewCallBudget(10, time.Minute)
	b.nowFunc = func() time.Time { return now }

	b.Allow("stale")
	now = now.Add(45 * time.Second)
	b.Allow("fresh")
	now = now.Add(30 * time.Second)
	b.Cleanup()

	if _, ok := b.calls["stale"]; ok {
		t.Error("stale entry should be removed")
	}
	if len(b.calls["fresh"]) != 1 {
		t.Errorf("fresh entries = %d, want 1", len(b.calls["fresh"]))
	}
}
