package tools

import (
	"sync"
	"time"
)

// CallBudget caps how many times each capability may run inside a sliding
// window. Downloads and vision calls cost real bandwidth and money, so a
// misbehaving conversation is cut off here rather than by the turn ceiling.
type CallBudget struct {
	mu      sync.Mutex
	calls   map[string][]time.Time
	max     int
	window  time.Duration
	nowFunc func() time.Time
}

// NewCallBudget returns nil when max <= 0, which disables budgeting.
func NewCallBudget(max int, window time.Duration) *CallBudget {
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Hour
	}
	return &CallBudget{
		calls:   make(map[string][]time.Time),
		max:     max,
		window:  window,
		nowFunc: time.Now,
	}
}

// Allow records one call to capability, or returns a budget_exceeded
// CapabilityError if the window is full.
func (b *CallBudget) Allow(capability string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	entries := b.prune(capability, now)
	if len(entries) >= b.max {
		return classified(ClassBudgetExceeded, "%s called %d times in the last %s", capability, b.max, b.window)
	}
	b.calls[capability] = append(entries, now)
	return nil
}

// Remaining returns how many more calls capability may make right now.
func (b *CallBudget) Remaining(capability string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max - len(b.prune(capability, b.nowFunc()))
}

// Cleanup drops capabilities with no calls inside the window.
func (b *CallBudget) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowFunc()
	for name := range b.calls {
		if len(b.prune(name, now)) == 0 {
			delete(b.calls, name)
		}
	}
}

// prune must be called with mu held.
func (b *CallBudget) prune(capability string, now time.Time) []time.Time {
	cutoff := now.Add(-b.window)
	entries := b.calls[capability]
	start := 0
	for start < len(entries) && entries[start].Before(cutoff) {
		start++
	}
	entries = entries[start:]
	if _, ok := b.calls[capability]; ok {
		b.calls[capability] = entries
	}
	return entries
}
