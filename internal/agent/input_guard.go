package agent

import (
	"fmt"
	"regexp"
	"sort"
)

// InputGuard screens run goals for prompt injection before the first
// round-trip. What happens on a match is set by agent.injection_action:
//   - "log":   info-level logging
//   - "warn":  warning-level logging (default)
//   - "block": the run is refused with ErrInjectionBlocked
//   - "off":   no screening
type InputGuard struct {
	patterns []guardPattern
}

type guardPattern struct {
	name    string
	pattern *regexp.Regexp
}

// NewInputGuard creates an InputGuard with the built-in patterns.
func NewInputGuard() *InputGuard {
	return &InputGuard{patterns: defaultGuardPatterns()}
}

// NewInputGuardWith creates an InputGuard with the built-in patterns plus
// extra, keyed by pattern name. Extra patterns are compiled case-insensitive.
func NewInputGuardWith(extra map[string]string) (*InputGuard, error) {
	g := NewInputGuard()
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		re, err := regexp.Compile("(?i)" + extra[name])
		if err != nil {
			return nil, fmt.Errorf("guard pattern %q: %w", name, err)
		}
		g.patterns = append(g.patterns, guardPattern{name: name, pattern: re})
	}
	return g, nil
}

// Scan returns the names of the patterns goal matches, or nil.
func (g *InputGuard) Scan(goal string) []string {
	if goal == "" {
		return nil
	}
	var matches []string
	for _, gp := range g.patterns {
		if gp.pattern.MatchString(goal) {
			matches = append(matches, gp.name)
		}
	}
	return matches
}

func (g *InputGuard) HasPatterns() bool { return len(g.patterns) > 0 }

func (g *InputGuard) PatternNames() []string {
	names := make([]string, len(g.patterns))
	for i, gp := range g.patterns {
		names[i] = gp.name
	}
	return names
}

func defaultGuardPatterns() []guardPattern {
	return []guardPattern{
		{
			name:    "ignore_instructions",
			pattern: regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier|preceding)\s+(instructions?|rules?|prompts?|directives?|guidelines?)`),
		},
		{
			name:    "role_override",
			pattern: regexp.MustCompile(`(?i)(you are now|from now on you are|pretend you are|act as if you are|imagine you are)\s+`),
		},
		{
			name:    "system_tags",
			pattern: regexp.MustCompile(`(?i)</?system>|\[SYSTEM\]|\[INST\]|<<SYS>>|<\|im_start\|>system`),
		},
		{
			name:    "instruction_injection",
			pattern: regexp.MustCompile(`(?i)(new instructions?:|override:|system prompt:|<\|system\|>)`),
		},
		{
			name:    "forged_tool_call",
			pattern: regexp.MustCompile(`(?i)</?(tool_use|tool_result|function_calls?)>|"tool_use_id"\s*:`),
		},
		{
			name:    "null_bytes",
			pattern: regexp.MustCompile(`\x00`),
		},
		{
			name:    "delimiter_escape",
			pattern: regexp.MustCompile(`(?i)(end of system|begin user input|</?(instructions?|rules|prompt|context)>)`),
		},
	}
}
