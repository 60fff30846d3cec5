package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// mockTool is a minimal capability for testing the registry.
type mockTool struct {
	name   string
	params map[string]any
	calls  int
	execFn func(ctx context.Context, args map[string]any) *Result
}

func (m *mockTool) Name() string        { return m.name }
func (m *mockTool) Description() string { return "mock capability" }
func (m *mockTool) Parameters() map[string]any {
	if m.params != nil {
		return m.params
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string"},
		},
		"required": []string{"url"},
	}
}
func (m *mockTool) Execute(ctx context.Context, args map[string]any) *Result {
	m.calls++
	if m.execFn != nil {
		return m.execFn(ctx, args)
	}
	return NewResult(map[string]any{"ok": true})
}

func mustRegister(t *testing.T, reg *Registry, tool Tool) {
	t.Helper()
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register(%s): %v", tool.Name(), err)
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, &mockTool{name: "test_tool"})

	got, ok := reg.Get("test_tool")
	if !ok {
		t.Fatal("tool not found")
	}
	if got.Name() != "test_tool" {
		t.Errorf("expected test_tool, got %s", got.Name())
	}
	spec, ok := reg.Spec("test_tool")
	if !ok || len(spec.Required()) != 1 || spec.Required()[0] != "url" {
		t.Errorf("spec = %+v", spec)
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, &mockTool{name: "t1"})

	err := reg.Register(&mockTool{name: "t1"})
	if !errors.Is(err, ErrDuplicateCapability) {
		t.Fatalf("expected ErrDuplicateCapability, got %v", err)
	}
	if reg.Count() != 1 {
		t.Errorf("count = %d, want 1", reg.Count())
	}
}

func TestRegistry_RegisterInvalidSchema(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"not object", map[string]any{"type": "string"}},
		{"bad property type", map[string]any{
			"type":       "object",
			"properties": map[string]any{"x": map[string]any{"type": "uuid"}},
		}},
		{"required undeclared", map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{"missing"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(&mockTool{name: "bad", params: tt.params})
			if !errors.Is(err, ErrInvalidSchema) {
				t.Errorf("expected ErrInvalidSchema, got %v", err)
			}
		})
	}
}

func TestRegistry_DispatchUnknownNeverInvokes(t *testing.T) {
	reg := NewRegistry()
	tool := &mockTool{name: "known"}
	mustRegister(t, reg, tool)

	result := reg.Dispatch(context.Background(), "missing", map[string]any{"url": "x"})
	if !result.IsError || result.Kind != KindUnknownCapability {
		t.Fatalf("result = %+v", result)
	}
	if !result.Is(ErrUnknownCapability) {
		t.Errorf("err = %v, want ErrUnknownCapability", result.Err)
	}
	if tool.calls != 0 {
		t.Errorf("registered implementation invoked %d times", tool.calls)
	}
}

func TestRegistry_DispatchMissingRequiredField(t *testing.T) {
	reg := NewRegistry()
	tool := &mockTool{name: "download"}
	mustRegister(t, reg, tool)

	for _, args := range []map[string]any{nil, {}, {"url": nil}} {
		result := reg.Dispatch(context.Background(), "download", args)
		if !result.IsError || result.Kind != KindInvalidArguments || !result.Is(ErrInvalidArguments) {
			t.Errorf("args %v: result = %+v", args, result)
		}
	}
	if tool.calls != 0 {
		t.Errorf("implementation invoked %d times on invalid arguments", tool.calls)
	}
}

func TestRegistry_DispatchExecutionFailure(t *testing.T) {
	cause := classified(ClassNetwork, "connection reset")
	reg := NewRegistry()
	mustRegister(t, reg, &mockTool{
		name: "flaky",
		execFn: func(ctx context.Context, args map[string]any) *Result {
			return FailResult(cause)
		},
	})

	result := reg.Dispatch(context.Background(), "flaky", map[string]any{"url": "x"})
	if !result.IsError || result.Kind != KindExecution {
		t.Fatalf("result = %+v", result)
	}
	var execErr *ExecutionError
	if !errors.As(result.Err, &execErr) || execErr.Capability != "flaky" {
		t.Fatalf("err = %v, want *ExecutionError", result.Err)
	}
	if !errors.Is(result.Err, cause) {
		t.Error("execution error should wrap the underlying cause")
	}
	if result.Class != ClassNetwork {
		t.Errorf("class = %q, want %q", result.Class, ClassNetwork)
	}
}

func TestRegistry_DispatchRecoversPanic(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, &mockTool{
		name: "boom",
		execFn: func(ctx context.Context, args map[string]any) *Result {
			panic("nil frame")
		},
	})

	result := reg.Dispatch(context.Background(), "boom", map[string]any{"url": "x"})
	if !result.IsError || result.Kind != KindExecution {
		t.Errorf("result = %+v", result)
	}
}

func TestRegistry_DispatchScrubsCredentials(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, &mockTool{
		name: "leaky",
		execFn: func(ctx context.Context, args map[string]any) *Result {
			return NewResult(map[string]any{"log": "key is sk-abcdefghijklmnopqrstuvwxyz1234567890"})
		},
	})
	mustRegister(t, reg, &mockTool{
		name: "leaky_err",
		execFn: func(ctx context.Context, args map[string]any) *Result {
			return ErrorResult("auth failed: token=abcdefghijklmnopqrs")
		},
	})

	ok := reg.Dispatch(context.Background(), "leaky", map[string]any{"url": "x"})
	if ok.Data.(map[string]any)["log"] != "key is [REDACTED]" {
		t.Errorf("data not scrubbed: %+v", ok.Data)
	}
	failed := reg.Dispatch(context.Background(), "leaky_err", map[string]any{"url": "x"})
	if failed.ForLLM == "" || strings.Contains(failed.ForLLM, "abcdefghijklmnopqrs") {
		t.Errorf("error text not scrubbed: %q", failed.ForLLM)
	}
}

func TestRegistry_DispatchScrubsPayloadStructs(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, &mockTool{
		name: "fetch",
		execFn: func(ctx context.Context, args map[string]any) *Result {
			return NewResult(Media{Handle: "media_1", Locator: "https://cdn.example.com/v.mp4?signature=abcdefghijklmnop"})
		},
	})

	res := reg.Dispatch(context.Background(), "fetch", map[string]any{"url": "x"})
	m, ok := res.Data.(Media)
	if !ok {
		t.Fatalf("payload type changed: %T", res.Data)
	}
	if strings.Contains(m.Locator, "abcdefghijklmnop") {
		t.Errorf("locator not scrubbed: %q", m.Locator)
	}
}

func TestRegistry_DispatchCallBudget(t *testing.T) {
	reg := NewRegistry()
	reg.SetCallBudget(NewCallBudget(2, time.Hour))
	tool := &mockTool{name: "download"}
	mustRegister(t, reg, tool)

	for i := 0; i < 2; i++ {
		if r := reg.Dispatch(context.Background(), "download", map[string]any{"url": "x"}); r.IsError {
			t.Fatalf("call %d should succeed: %s", i, r.ForLLM)
		}
	}
	r := reg.Dispatch(context.Background(), "download", map[string]any{"url": "x"})
	if !r.IsError || r.Kind != KindExecution || r.Class != ClassBudgetExceeded {
		t.Errorf("3rd call result = %+v", r)
	}
	if tool.calls != 2 {
		t.Errorf("calls = %d, want 2", tool.calls)
	}
}

func TestRegistry_RegisterFuncAndDefs(t *testing.T) {
	reg := NewRegistry()
	err := reg.RegisterFunc(Spec{
		Name:       "b_second",
		Parameters: map[string]any{"type": "object"},
		DependsOn:  []string{"a_first"},
	}, func(ctx context.Context, args map[string]any) *Result { return NewResult("done") })
	if err != nil {
		t.Fatal(err)
	}
	mustRegister(t, reg, &mockTool{name: "a_first"})

	names := reg.List()
	if len(names) != 2 || names[0] != "a_first" || names[1] != "b_second" {
		t.Errorf("names = %v", names)
	}
	defs := reg.ProviderDefs()
	if defs[1].Function.Name != "b_second" || defs[1].Type != "function" {
		t.Errorf("defs = %+v", defs)
	}
	spec, _ := reg.Spec("b_second")
	if !spec.Needs("a_first") || spec.Needs("b_second") {
		t.Errorf("depends_on = %v", spec.DependsOn)
	}
	if r := reg.Dispatch(context.Background(), "b_second", nil); r.IsError || r.Data != "done" {
		t.Errorf("result = %+v", r)
	}
}
