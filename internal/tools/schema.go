package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
)

var schemaTypes = []string{"object", "array", "string", "number", "integer", "boolean"}

// ValidateSchema checks that a parameter schema is a well-formed object schema
// in the subset the registry understands.
func ValidateSchema(schema map[string]any) error {
	if schema == nil {
		return fmt.Errorf("%w: schema is nil", ErrInvalidSchema)
	}
	if t, _ := schema["type"].(string); t != "object" {
		return fmt.Errorf("%w: root type must be \"object\", got %v", ErrInvalidSchema, schema["type"])
	}
	if problems := checkSchema("", schema); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSchema, strings.Join(problems, "; "))
	}
	return nil
}

func checkSchema(path string, schema map[string]any) []string {
	var problems []string
	t, ok := schema["type"].(string)
	if !ok || !slices.Contains(schemaTypes, t) {
		return append(problems, fmt.Sprintf("%s: unsupported type %v", label(path), schema["type"]))
	}

	switch t {
	case "object":
		props := map[string]any{}
		if raw, ok := schema["properties"]; ok {
			props, ok = raw.(map[string]any)
			if !ok {
				return append(problems, label(path)+": properties must be an object")
			}
		}
		for _, name := range sortedKeys(props) {
			sub, ok := props[name].(map[string]any)
			if !ok {
				problems = append(problems, fmt.Sprintf("%s: property schema must be an object", join(path, name)))
				continue
			}
			problems = append(problems, checkSchema(join(path, name), sub)...)
		}
		if raw, ok := schema["required"]; ok {
			req, ok := asSlice(raw)
			if !ok {
				return append(problems, label(path)+": required must be a list")
			}
			for _, r := range req {
				name, ok := r.(string)
				if !ok {
					problems = append(problems, fmt.Sprintf("%s: required entry %v is not a string", label(path), r))
					continue
				}
				if _, declared := props[name]; !declared {
					problems = append(problems, fmt.Sprintf("%s: required %q is not a declared property", label(path), name))
				}
			}
		}
	case "array":
		if raw, ok := schema["items"]; ok {
			items, ok := raw.(map[string]any)
			if !ok {
				return append(problems, label(path)+": items must be an object")
			}
			problems = append(problems, checkSchema(path+"[]", items)...)
		}
	}
	if raw, ok := schema["enum"]; ok {
		if _, ok := asSlice(raw); !ok {
			problems = append(problems, label(path)+": enum must be a list")
		}
	}
	return problems
}

// ValidateArguments checks args against a parameter schema. All violations are
// reported in a single error wrapping ErrInvalidArguments.
func ValidateArguments(schema map[string]any, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	if problems := checkValue("", schema, args); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(problems, "; "))
	}
	return nil
}

func checkValue(path string, schema map[string]any, v any) []string {
	t, _ := schema["type"].(string)
	var problems []string

	switch t {
	case "object":
		obj, ok := v.(map[string]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected object, got %s", label(path), typeName(v))}
		}
		props, _ := schema["properties"].(map[string]any)
		for _, name := range stringList(schema["required"]) {
			if val, present := obj[name]; !present || val == nil {
				problems = append(problems, fmt.Sprintf("%s: required field missing", join(path, name)))
			}
		}
		for _, name := range sortedKeys(obj) {
			sub, declared := props[name].(map[string]any)
			if !declared {
				if extra, ok := schema["additionalProperties"].(bool); ok && !extra {
					problems = append(problems, fmt.Sprintf("%s: unexpected field", join(path, name)))
				}
				continue
			}
			if obj[name] == nil {
				continue
			}
			problems = append(problems, checkValue(join(path, name), sub, obj[name])...)
		}
	case "array":
		items, ok := asSlice(v)
		if !ok {
			return []string{fmt.Sprintf("%s: expected array, got %s", label(path), typeName(v))}
		}
		if n, ok := toFloat(schema["minItems"]); ok && float64(len(items)) < n {
			problems = append(problems, fmt.Sprintf("%s: expected at least %d items, got %d", label(path), int(n), len(items)))
		}
		if n, ok := toFloat(schema["maxItems"]); ok && float64(len(items)) > n {
			problems = append(problems, fmt.Sprintf("%s: expected at most %d items, got %d", label(path), int(n), len(items)))
		}
		if sub, ok := schema["items"].(map[string]any); ok {
			for i, item := range items {
				problems = append(problems, checkValue(fmt.Sprintf("%s[%d]", path, i), sub, item)...)
			}
		}
	case "string":
		s, ok := v.(string)
		if !ok {
			return []string{fmt.Sprintf("%s: expected string, got %s", label(path), typeName(v))}
		}
		if n, ok := toFloat(schema["minLength"]); ok && float64(len(strings.TrimSpace(s))) < n {
			problems = append(problems, fmt.Sprintf("%s: must not be empty", label(path)))
		}
	case "number", "integer":
		f, ok := toFloat(v)
		if !ok {
			return []string{fmt.Sprintf("%s: expected %s, got %s", label(path), t, typeName(v))}
		}
		if t == "integer" && f != math.Trunc(f) {
			return []string{fmt.Sprintf("%s: expected integer, got %v", label(path), v)}
		}
		if lo, ok := toFloat(schema["minimum"]); ok && f < lo {
			problems = append(problems, fmt.Sprintf("%s: %v is below minimum %v", label(path), v, lo))
		}
		if hi, ok := toFloat(schema["maximum"]); ok && f > hi {
			problems = append(problems, fmt.Sprintf("%s: %v is above maximum %v", label(path), v, hi))
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return []string{fmt.Sprintf("%s: expected boolean, got %s", label(path), typeName(v))}
		}
	}

	if enum, ok := asSlice(schema["enum"]); ok && !inEnum(enum, v) {
		problems = append(problems, fmt.Sprintf("%s: %v is not one of %v", label(path), v, enum))
	}
	return problems
}

func inEnum(enum []any, v any) bool {
	for _, e := range enum {
		if fmt.Sprint(e) == fmt.Sprint(v) {
			return true
		}
	}
	return false
}

// asSlice accepts decoded JSON arrays as well as typed slices built in Go.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func stringList(v any) []string {
	items, _ := asSlice(v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	if _, ok := asSlice(v); ok {
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func label(path string) string {
	if path == "" {
		return "arguments"
	}
	return path
}
