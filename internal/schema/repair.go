package schema

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// repair walks value alongside schema and coerces what can be coerced.
// Fields that cannot be salvaged fall back to their schema default or null.
// value must already be normalized JSON (see normalize).
func repair(schema map[string]any, value any) any {
	if schema == nil || value == nil {
		return value
	}

	var out any
	switch primaryType(schema) {
	case "object":
		return repairObject(schema, value)
	case "array":
		return repairArray(schema, value)
	case "boolean":
		switch v := value.(type) {
		case bool:
			out = v
		case string:
			switch v {
			case "true":
				out = true
			case "false":
				out = false
			default:
				return fallback(schema)
			}
		default:
			return fallback(schema)
		}
	case "number", "integer":
		var f float64
		switch v := value.(type) {
		case float64:
			f = v
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fallback(schema)
			}
			f = parsed
		default:
			return fallback(schema)
		}
		if primaryType(schema) == "integer" && f != math.Trunc(f) {
			return fallback(schema)
		}
		out = f
	case "string":
		s, ok := value.(string)
		if !ok {
			return fallback(schema)
		}
		out = s
	default:
		out = value
	}

	if enum, ok := schema["enum"].([]any); ok && !inEnum(enum, out) {
		return fallback(schema)
	}
	return out
}

func repairObject(schema map[string]any, value any) any {
	obj, ok := value.(map[string]any)
	if !ok {
		return fallback(schema)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return obj
	}

	out := make(map[string]any, len(props))
	for name, raw := range props {
		propSchema, _ := raw.(map[string]any)
		v, present := obj[name]
		if !present {
			out[name] = fallback(propSchema)
			continue
		}
		out[name] = repair(propSchema, v)
	}
	if allowsAdditional(schema) {
		for name, v := range obj {
			if _, declared := props[name]; !declared {
				out[name] = v
			}
		}
	}
	return out
}

func repairArray(schema map[string]any, value any) any {
	items, _ := schema["items"].(map[string]any)
	arr, ok := value.([]any)
	if !ok {
		s, isString := value.(string)
		if !isString || !looksLikeJSON(s) {
			// A lone item is wrapped when it fits the item schema.
			item := repair(items, value)
			if item == nil {
				return fallback(schema)
			}
			return []any{item}
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return fallback(schema)
		}
		if arr, ok = parsed.([]any); !ok {
			return fallback(schema)
		}
	}

	out := make([]any, len(arr))
	for i, item := range arr {
		out[i] = repair(items, item)
	}
	return out
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{")
}

func fallback(schema map[string]any) any {
	if schema == nil {
		return nil
	}
	if d, ok := schema["default"]; ok {
		return d
	}
	return nil
}

func primaryType(schema map[string]any) string {
	switch t := schema["type"].(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s != "null" {
				return s
			}
		}
	case []string:
		for _, s := range t {
			if s != "null" {
				return s
			}
		}
	}
	if _, ok := schema["properties"]; ok {
		return "object"
	}
	if _, ok := schema["items"]; ok {
		return "array"
	}
	return ""
}

func allowsAdditional(schema map[string]any) bool {
	switch v := schema["additionalProperties"].(type) {
	case bool:
		return v
	case map[string]any:
		return true
	}
	return false
}

func inEnum(enum []any, v any) bool {
	for _, candidate := range enum {
		if reflect.DeepEqual(candidate, v) {
			return true
		}
		// Schema enums decoded by callers may hold ints.
		if f, ok := v.(float64); ok {
			if n, ok := candidate.(int); ok && float64(n) == f {
				return true
			}
		}
	}
	return false
}
