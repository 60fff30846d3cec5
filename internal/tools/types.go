package tools

import (
	"context"
	"slices"

	"github.com/nextlevelbuilder/vidcoach/internal/providers"
)

// Tool is the interface every capability implements.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) *Result
}

// DependentTool declares capabilities whose output it consumes. A request for
// it cannot share a batch with a request it depends on.
type DependentTool interface {
	DependsOn() []string
}

// Spec is the immutable description of a registered capability.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	DependsOn   []string       `json:"depends_on,omitempty"`
}

// Required lists the parameter names the schema marks as required.
func (s Spec) Required() []string {
	return stringList(s.Parameters["required"])
}

// Needs reports whether s consumes the output of capability name.
func (s Spec) Needs(name string) bool {
	return slices.Contains(s.DependsOn, name)
}

// SpecOf captures the spec of a tool at registration time.
func SpecOf(t Tool) Spec {
	s := Spec{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
	if d, ok := t.(DependentTool); ok {
		s.DependsOn = slices.Clone(d.DependsOn())
	}
	return s
}

// ToProviderDef converts a Spec to a providers.ToolDefinition for LLM APIs.
func ToProviderDef(s Spec) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Parameters,
		},
	}
}

// funcTool adapts a plain function to Tool.
type funcTool struct {
	spec Spec
	fn   func(ctx context.Context, args map[string]any) *Result
}

func (f *funcTool) Name() string               { return f.spec.Name }
func (f *funcTool) Description() string        { return f.spec.Description }
func (f *funcTool) Parameters() map[string]any { return f.spec.Parameters }
func (f *funcTool) DependsOn() []string        { return f.spec.DependsOn }
func (f *funcTool) Execute(ctx context.Context, args map[string]any) *Result {
	return f.fn(ctx, args)
}
