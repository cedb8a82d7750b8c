package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Issue is a single validation failure reported against an instance location.
type Issue struct {
	Path    string `json:"path"`
	Keyword string `json:"keyword"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	path := i.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s: %s", path, i.Message)
}

// Result is the outcome of Validate.
type Result struct {
	// Value is the input when it already conforms, otherwise the repaired copy.
	Value any
	// Issues lists what was wrong with the input before repair.
	Issues []Issue
	// Unresolved lists what is still wrong after repair.
	Unresolved []Issue
}

// Valid reports whether the input conformed without repair.
func (r Result) Valid() bool {
	return len(r.Issues) == 0
}

// Validate checks value against schema in strict mode and repairs what it
// can. In strict mode every declared property is required but nullable, and
// objects reject keys they do not declare unless additionalProperties says
// otherwise.
//
// The returned error is only non-nil when the schema itself cannot be
// compiled; validation failures are reported through the Result.
func Validate(schema map[string]any, value any) (Result, error) {
	compiled, err := compileStrict(schema)
	if err != nil {
		return Result{}, err
	}

	doc, err := normalize(value)
	if err != nil {
		return Result{}, fmt.Errorf("value is not JSON encodable: %w", err)
	}

	verr := compiled.Validate(doc)
	if verr == nil {
		return Result{Value: value}, nil
	}

	res := Result{Issues: collectIssues(verr)}
	res.Value = repair(schema, doc)
	if err := compiled.Validate(res.Value); err != nil {
		res.Unresolved = collectIssues(err)
	}
	return res, nil
}

func compileStrict(schema map[string]any) (*jsonschema.Schema, error) {
	if schema == nil {
		return nil, fmt.Errorf("schema is nil")
	}
	raw, err := json.Marshal(strictSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}

// strictSchema returns a copy of node with nullable types, required
// properties and closed objects.
func strictSchema(node any) any {
	switch n := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(n)+2)
		for k, v := range n {
			switch k {
			case "properties", "items", "$defs", "definitions":
				out[k] = strictChildren(k, v)
			default:
				out[k] = v
			}
		}
		if props, ok := n["properties"].(map[string]any); ok {
			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			sort.Strings(names)
			req := make([]any, len(names))
			for i, name := range names {
				req[i] = name
			}
			out["required"] = req
			if _, set := n["additionalProperties"]; !set {
				out["additionalProperties"] = false
			}
		}
		if t, ok := n["type"]; ok {
			out["type"] = nullableType(t)
		}
		if enum, ok := n["enum"].([]any); ok && !containsNull(enum) {
			withNull := make([]any, len(enum), len(enum)+1)
			copy(withNull, enum)
			out["enum"] = append(withNull, nil)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			out[i] = strictSchema(v)
		}
		return out
	}
	return node
}

func strictChildren(keyword string, v any) any {
	switch keyword {
	case "items":
		return strictSchema(v)
	default:
		children, ok := v.(map[string]any)
		if !ok {
			return v
		}
		out := make(map[string]any, len(children))
		for name, child := range children {
			out[name] = strictSchema(child)
		}
		return out
	}
}

func nullableType(t any) any {
	switch v := t.(type) {
	case string:
		if v == "null" {
			return v
		}
		return []any{v, "null"}
	case []any:
		if containsNull(v) {
			return v
		}
		out := make([]any, len(v), len(v)+1)
		copy(out, v)
		return append(out, "null")
	case []string:
		out := make([]any, 0, len(v)+1)
		hasNull := false
		for _, s := range v {
			out = append(out, s)
			hasNull = hasNull || s == "null"
		}
		if !hasNull {
			out = append(out, "null")
		}
		return out
	}
	return t
}

func containsNull(values []any) bool {
	for _, v := range values {
		if v == nil || v == "null" {
			return true
		}
	}
	return false
}

// normalize round-trips v through encoding/json so numbers become float64 and
// the result shares no memory with the caller's value.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func collectIssues(err error) []Issue {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []Issue{{Message: err.Error()}}
	}

	var issues []Issue
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			issues = append(issues, Issue{
				Path:    e.InstanceLocation,
				Keyword: lastSegment(e.KeywordLocation),
				Message: e.Message,
			})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	return issues
}

func lastSegment(pointer string) string {
	if i := strings.LastIndex(pointer, "/"); i >= 0 {
		return pointer[i+1:]
	}
	return pointer
}
