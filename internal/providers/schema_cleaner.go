package providers

import "strings"

// Capability schemas are authored once and rendered for whichever provider
// drives the run. Keys a provider rejects are dropped recursively; "x-"
// vendor keys are local annotations and never leave the process.
var providerDropKeys = map[string][]string{
	"anthropic": {"$ref", "$defs", "$schema"},
	"gemini":    {"$ref", "$defs", "$schema", "additionalProperties", "examples", "default"},
}

// CleanToolSchemas returns copies of defs with parameters cleaned for
// providerName. Nil in, nil out.
func CleanToolSchemas(providerName string, defs []ToolDefinition) []ToolDefinition {
	if defs == nil {
		return nil
	}
	drop := dropFunc(providerName)
	out := make([]ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = ToolDefinition{
			Type: d.Type,
			Function: ToolFunctionSchema{
				Name:        d.Function.Name,
				Description: d.Function.Description,
				Parameters:  cleanMap(d.Function.Parameters, drop),
			},
		}
	}
	return out
}

// CleanSchemaForProvider cleans a single parameters schema.
func CleanSchemaForProvider(providerName string, params map[string]any) map[string]any {
	return cleanMap(params, dropFunc(providerName))
}

func dropFunc(providerName string) func(string) bool {
	name := strings.ToLower(providerName)
	var keys []string
	for prefix, k := range providerDropKeys {
		if name == prefix || strings.HasPrefix(name, prefix+"-") {
			keys = k
			break
		}
	}
	return func(key string) bool {
		if strings.HasPrefix(key, "x-") {
			return true
		}
		for _, k := range keys {
			if k == key {
				return true
			}
		}
		return false
	}
}

func cleanMap(schema map[string]any, drop func(string) bool) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		if drop(k) {
			continue
		}
		out[k] = cleanValue(v, drop)
	}
	return out
}

func cleanValue(v any, drop func(string) bool) any {
	switch val := v.(type) {
	case map[string]any:
		return cleanMap(val, drop)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = cleanValue(item, drop)
		}
		return items
	default:
		return v
	}
}
