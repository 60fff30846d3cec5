package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/vidcoach/internal/providers"
	"github.com/nextlevelbuilder/vidcoach/internal/store"
)

type entry struct {
	tool Tool
	spec Spec
}

// Registry maps capability names to their implementation and schema.
// Entries are registered once at startup and never replaced.
type Registry struct {
	entries   map[string]entry
	mu        sync.RWMutex
	budget    *CallBudget // nil = unlimited
	scrubbing bool        // scrub credentials from output (default true)
}

func NewRegistry() *Registry {
	return &Registry{
		entries:   make(map[string]entry),
		scrubbing: true,
	}
}

// SetCallBudget enables per-capability call budgeting.
func (r *Registry) SetCallBudget(b *CallBudget) {
	r.budget = b
}

// SetScrubbing enables or disables credential scrubbing on capability output.
func (r *Registry) SetScrubbing(enabled bool) {
	r.scrubbing = enabled
}

// Register adds a capability. It fails with ErrDuplicateCapability if the name
// is taken and ErrInvalidSchema if its parameter schema is malformed.
func (r *Registry) Register(tool Tool) error {
	spec := SpecOf(tool)
	if spec.Name == "" {
		return fmt.Errorf("%w: capability name is empty", ErrInvalidSchema)
	}
	if err := ValidateSchema(spec.Parameters); err != nil {
		return fmt.Errorf("register %s: %w", spec.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCapability, spec.Name)
	}
	r.entries[spec.Name] = entry{tool: tool, spec: spec}
	return nil
}

// RegisterFunc registers fn under spec.
func (r *Registry) RegisterFunc(spec Spec, fn func(ctx context.Context, args map[string]any) *Result) error {
	return r.Register(&funcTool{spec: spec, fn: fn})
}

// Get returns a capability by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.tool, ok
}

// Spec returns the registered spec for name.
func (r *Registry) Spec(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.spec, ok
}

// Specs returns every registered spec sorted by name.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(r.entries))
	for _, e := range r.entries {
		specs = append(specs, e.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Dispatch validates and runs one capability invocation. It never returns a Go
// error: every failure comes back as an error Result whose Kind is one of
// KindUnknownCapability, KindInvalidArguments or KindExecution, and whose Err
// wraps the matching sentinel or *ExecutionError.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) *Result {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownCapability, name)
		return ErrorResult(err.Error()).WithError(err).withKind(KindUnknownCapability)
	}

	if err := ValidateArguments(e.spec.Parameters, args); err != nil {
		return ErrorResult(err.Error()).WithError(err).withKind(KindInvalidArguments)
	}

	if r.budget != nil {
		if err := r.budget.Allow(name); err != nil {
			return r.executionFailure(name, err)
		}
	}

	start := time.Now()
	result := r.invoke(ctx, e.tool, args)
	duration := time.Since(start)

	if result.IsError {
		cause := result.Err
		if cause == nil {
			cause = errors.New(result.ForLLM)
		}
		class := result.Class
		result = r.executionFailure(name, cause)
		if result.Class == "" {
			result.Class = class
		}
	} else if r.scrubbing {
		result.Data = ScrubValue(result.Data)
	}

	slog.Debug("capability executed",
		"run_id", store.RunIDFromContext(ctx),
		"capability", name,
		"duration_ms", duration.Milliseconds(),
		"is_error", result.IsError,
		"class", result.Class,
	)
	return result
}

// invoke runs the implementation, converting a panic into an error result.
func (r *Registry) invoke(ctx context.Context, tool Tool, args map[string]any) (result *Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("capability panicked", "capability", tool.Name(), "panic", p)
			result = FailResult(fmt.Errorf("panic: %v", p))
		}
	}()
	result = tool.Execute(ctx, args)
	if result == nil {
		result = FailResult(errors.New("capability returned no result"))
	}
	return result
}

func (r *Registry) executionFailure(name string, cause error) *Result {
	err := &ExecutionError{Capability: name, Err: cause}
	msg := err.Error()
	if r.scrubbing {
		msg = ScrubCredentials(msg)
	}
	return ErrorResult(msg).WithError(err).withKind(KindExecution)
}

// ProviderDefs returns capability definitions for LLM provider APIs, sorted by
// name so the model sees a stable tool list across round-trips.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	specs := r.Specs()
	defs := make([]providers.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, ToProviderDef(s))
	}
	return defs
}

// List returns all registered capability names, sorted.
func (r *Registry) List() []string {
	specs := r.Specs()
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
