package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// finishResponse fills the mode-specific part of resp from the raw model
// output.
func finishResponse(mode OperationMode, content string, resp *Response) (*Response, error) {
	switch mode {
	case ModeRecognition:
		resp.Content = content
		return resp, nil
	case ModeExtraction:
		parsed, err := parseStructuredJSON(content)
		if err != nil {
			return nil, err
		}
		var obj map[string]any
		if err := json.Unmarshal(parsed, &obj); err != nil {
			return nil, fmt.Errorf("structured output is not a JSON object: %w", err)
		}
		resp.Extracted = obj
		return resp, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
}

// sanitizeSchemaForAnthropic strips integer minimum/maximum bounds, which
// Anthropic rejects in output schemas.
func sanitizeSchemaForAnthropic(schema map[string]any) map[string]any {
	raw, err := json.Marshal(schema)
	if err != nil {
		return schema
	}
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return schema
	}
	stripIntegerBounds(root)
	out, _ := root.(map[string]any)
	return out
}

func isAnthropicModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "anthropic/")
}

func stripIntegerBounds(node any) {
	switch n := node.(type) {
	case map[string]any:
		if schemaTypeIncludesInteger(n["type"]) {
			delete(n, "minimum")
			delete(n, "maximum")
			delete(n, "exclusiveMinimum")
			delete(n, "exclusiveMaximum")
		}
		for _, v := range n {
			stripIntegerBounds(v)
		}
	case []any:
		for _, v := range n {
			stripIntegerBounds(v)
		}
	}
}

func schemaTypeIncludesInteger(typeVal any) bool {
	switch t := typeVal.(type) {
	case string:
		return t == "integer"
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == "integer" {
				return true
			}
		}
	}
	return false
}

// parseStructuredJSON parses JSON from model output, with lightweight recovery
// for markdown code fences and surrounding text.
func parseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONCandidate(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}

	return nil, fmt.Errorf("failed to parse structured JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop first fence line.
	lines = lines[1:]
	// Drop trailing fence if present.
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractJSONCandidate returns the outermost object in content, ignoring
// any prose around it.
func extractJSONCandidate(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}
