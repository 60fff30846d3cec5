package agent

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyGoal           = errors.New("goal is empty")
	ErrNoCapabilities      = errors.New("no capabilities registered")
	ErrNoProvider          = errors.New("no model provider configured")
	ErrAlreadyRunning      = errors.New("agent is already running")
	ErrTurnCeilingExceeded = errors.New("turn ceiling exceeded")
	ErrModel               = errors.New("model round-trip failed")
	ErrInjectionBlocked    = errors.New("goal rejected by input guard")
)

// CeilingError reports a run that never reached a terminal answer.
type CeilingError struct {
	Limit int
}

func (e *CeilingError) Error() string {
	return fmt.Sprintf("%s: no final answer after %d model round-trips", ErrTurnCeilingExceeded, e.Limit)
}

func (e *CeilingError) Unwrap() error { return ErrTurnCeilingExceeded }

// ModelError wraps a failed round-trip to the model. It is not retried.
type ModelError struct {
	Iteration int
	Err       error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s (iteration %d): %v", ErrModel, e.Iteration, e.Err)
}

func (e *ModelError) Unwrap() []error { return []error{ErrModel, e.Err} }
