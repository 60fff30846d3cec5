package tools

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateCapability = errors.New("capability already registered")
	ErrUnknownCapability   = errors.New("unknown capability")
	ErrInvalidArguments    = errors.New("invalid arguments")
	ErrInvalidSchema       = errors.New("invalid capability schema")
)

// Error kinds carried by an error Result. These strings are stable: they are
// written into transcripts and archived runs.
const (
	KindUnknownCapability = "unknown_capability"
	KindInvalidArguments  = "invalid_arguments"
	KindExecution         = "capability_execution"
)

// Failure classes reported by capability implementations.
const (
	ClassInvalidLocator    = "invalid_locator"
	ClassNetwork           = "network_failure"
	ClassUpstream          = "upstream_failure"
	ClassUnreadableMedia   = "unreadable_media"
	ClassCorruptStream     = "corrupt_stream"
	ClassRateLimited       = "rate_limited"
	ClassMalformedInput    = "malformed_input"
	ClassMissingDependency = "missing_dependency"
	ClassBudgetExceeded    = "budget_exceeded"
)

// ExecutionError wraps a failure raised by a capability implementation.
type ExecutionError struct {
	Capability string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("capability %s failed: %v", e.Capability, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// CapabilityError is a classified failure from one of the media capabilities.
type CapabilityError struct {
	Class string
	Err   error
}

func (e *CapabilityError) Error() string {
	return e.Class + ": " + e.Err.Error()
}

func (e *CapabilityError) Unwrap() error { return e.Err }

func classified(class, format string, args ...any) *CapabilityError {
	return &CapabilityError{Class: class, Err: fmt.Errorf(format, args...)}
}

// ClassOf returns the failure class of err, or "" if it is unclassified.
func ClassOf(err error) string {
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ""
}
