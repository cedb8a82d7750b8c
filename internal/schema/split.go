// Package schema splits, validates and repairs the JSON Schemas used for
// structured extraction.
package schema

// passthroughKeys are top-level keywords copied into both halves of a split
// so that local references keep resolving.
var passthroughKeys = []string{"$schema", "$defs", "definitions"}

// Split partitions the top-level properties of schema into a document-level
// half and a per-page half. Property names listed in perPageKeys go to the
// per-page half, everything else to the document-level half. The required
// list is filtered to each half. A half with no properties is nil.
//
// With no perPageKeys the input schema is returned unchanged as the
// document-level half.
func Split(schema map[string]any, perPageKeys []string) (fullDoc, perPage map[string]any) {
	if len(perPageKeys) == 0 {
		return schema, nil
	}
	if schema == nil {
		return nil, nil
	}

	pageSet := make(map[string]struct{}, len(perPageKeys))
	for _, k := range perPageKeys {
		pageSet[k] = struct{}{}
	}

	props, _ := schema["properties"].(map[string]any)
	docProps := make(map[string]any)
	pageProps := make(map[string]any)
	for name, prop := range props {
		if _, ok := pageSet[name]; ok {
			pageProps[name] = prop
		} else {
			docProps[name] = prop
		}
	}

	required := stringList(schema["required"])
	return subSchema(schema, docProps, required), subSchema(schema, pageProps, required)
}

func subSchema(parent map[string]any, props map[string]any, required []string) map[string]any {
	if len(props) == 0 {
		return nil
	}

	typ := parent["type"]
	if typ == nil {
		typ = "object"
	}
	out := map[string]any{
		"type":       typ,
		"properties": props,
	}
	for _, k := range passthroughKeys {
		if v, ok := parent[k]; ok {
			out[k] = v
		}
	}

	var req []any
	for _, name := range required {
		if _, ok := props[name]; ok {
			req = append(req, name)
		}
	}
	if len(req) > 0 {
		out["required"] = req
	}
	return out
}

// stringList accepts both []string and the []any produced by encoding/json.
func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
