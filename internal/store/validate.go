package store

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxGoalLength bounds the goal column. Matches the VARCHAR(4096) constraint
	// in the postgres schema.
	MaxGoalLength = 4096

	// MaxPreviewLength bounds span input/output previews.
	MaxPreviewLength = 500
)

// ValidateRun checks a run before it is archived.
func ValidateRun(run *RunData) error {
	if run == nil {
		return fmt.Errorf("run is nil")
	}
	if run.ID == uuid.Nil {
		return fmt.Errorf("run id is empty")
	}
	if len(run.Goal) > MaxGoalLength {
		return fmt.Errorf("goal too long: %d chars (max %d)", len(run.Goal), MaxGoalLength)
	}
	switch run.Status {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
	default:
		return fmt.Errorf("invalid run status %q", run.Status)
	}
	if run.InputTokens < 0 || run.OutputTokens < 0 || run.EstimatedCost < 0 || run.RoundTrips < 0 {
		return fmt.Errorf("run %s has negative usage", run.ID)
	}
	for i, t := range run.Turns {
		if t.Seq != i {
			return fmt.Errorf("turn %d has sequence index %d", i, t.Seq)
		}
	}
	return nil
}

// TruncatePreview cuts s to MaxPreviewLength runes.
func TruncatePreview(s string) string {
	r := []rune(s)
	if len(r) <= MaxPreviewLength {
		return s
	}
	return string(r[:MaxPreviewLength]) + "..."
}

// TruncateGoal cuts s to at most MaxGoalLength bytes without splitting a rune.
func TruncateGoal(s string) string {
	if len(s) <= MaxGoalLength {
		return s
	}
	cut := MaxGoalLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
