package schema

import "fmt"

// Schema is a composed structural description a JSON document is checked
// against. The underlying representation is plain JSON data (the exact shape
// persisted and served to form renderers), held privately so callers can
// never mutate the canonical copy.
type Schema struct {
	root    map[string]any
	version string
}

// Version returns the schema version tag pinned at composition time.
func (s *Schema) Version() string {
	return s.version
}

// Document returns a deep copy of the schema as plain JSON data. Every call
// yields an independent value; mutating it never affects the schema.
func (s *Schema) Document() map[string]any {
	return deepCopyObject(s.root)
}

// defs returns the flat definition table. References are resolved by name
// lookup into this table, never by pointer aliasing.
func (s *Schema) defs() map[string]any {
	defs, _ := s.root["$defs"].(map[string]any)
	return defs
}

// resolveRef looks up a "#/$defs/<name>" reference in the definition table.
func (s *Schema) resolveRef(ref string) (map[string]any, error) {
	const prefix = "#/$defs/"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return nil, fmt.Errorf("unsupported $ref %q", ref)
	}
	name := ref[len(prefix):]
	node, ok := s.defs()[name].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unresolved $ref %q", ref)
	}
	return node, nil
}

// selfCheck walks the schema once, resolving every reference and rejecting
// malformed nodes. A failure here is a startup-time defect, not a runtime
// validation error.
func (s *Schema) selfCheck() error {
	return s.checkNode(s.root, map[string]bool{})
}

func (s *Schema) checkNode(node map[string]any, seen map[string]bool) error {
	if ref, ok := node["$ref"].(string); ok {
		if seen[ref] {
			return nil
		}
		seen[ref] = true
		target, err := s.resolveRef(ref)
		if err != nil {
			return err
		}
		return s.checkNode(target, seen)
	}
	if props, ok := node["properties"].(map[string]any); ok {
		for name, sub := range props {
			child, ok := sub.(map[string]any)
			if !ok {
				return fmt.Errorf("property %q is not a schema object", name)
			}
			if err := s.checkNode(child, seen); err != nil {
				return err
			}
		}
	}
	if patterns, ok := node["patternProperties"].(map[string]any); ok {
		for pattern, sub := range patterns {
			child, ok := sub.(map[string]any)
			if !ok {
				return fmt.Errorf("pattern property %q is not a schema object", pattern)
			}
			if err := s.checkNode(child, seen); err != nil {
				return err
			}
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		if err := s.checkNode(items, seen); err != nil {
			return err
		}
	}
	if variants, ok := node["oneOf"].([]any); ok {
		for i, sub := range variants {
			child, ok := sub.(map[string]any)
			if !ok {
				return fmt.Errorf("oneOf variant %d is not a schema object", i)
			}
			if err := s.checkNode(child, seen); err != nil {
				return err
			}
		}
	}
	if extra, ok := node["additionalProperties"]; ok {
		if child, ok := extra.(map[string]any); ok {
			if err := s.checkNode(child, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func deepCopyObject(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyObject(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return t
	}
}
