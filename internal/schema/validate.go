package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Failure locates one structural violation. Coordinate is the dot-joined
// absolute path from the document root to the failing node, e.g.
// "steps.0.answers.1-2". The wire shape of this struct is part of the API
// contract and must stay stable.
type Failure struct {
	Coordinate string `json:"coordinate"`
	Message    string `json:"message"`
}

func (f Failure) Error() string {
	if f.Coordinate == "" {
		return f.Message
	}
	return fmt.Sprintf("%s (%s)", f.Message, f.Coordinate)
}

// Validate checks a decoded JSON value against the schema and returns nil on
// success. Validation stops at the first structural violation, so the result
// carries at most one failure; the slice shape leaves room to aggregate
// without breaking callers.
func Validate(doc any, s *Schema) []Failure {
	if f := s.validateNode(doc, s.root, nil); f != nil {
		return []Failure{*f}
	}
	return nil
}

func coordinate(path []string) string {
	return strings.Join(path, ".")
}

func fail(path []string, format string, args ...any) *Failure {
	return &Failure{Coordinate: coordinate(path), Message: fmt.Sprintf(format, args...)}
}

func (s *Schema) validateNode(value any, node map[string]any, path []string) *Failure {
	if ref, ok := node["$ref"].(string); ok {
		target, err := s.resolveRef(ref)
		if err != nil {
			return fail(path, "schema error: %v", err)
		}
		return s.validateNode(value, target, path)
	}

	if enum, ok := node["enum"].([]any); ok {
		if f := checkEnum(value, enum, path); f != nil {
			return f
		}
	}

	if typ, ok := node["type"]; ok {
		if f := checkType(value, typ, path); f != nil {
			return f
		}
	}

	if variants, ok := node["oneOf"].([]any); ok {
		if f := s.checkOneOf(value, variants, path); f != nil {
			return f
		}
	}

	switch v := value.(type) {
	case map[string]any:
		return s.validateObject(v, node, path)
	case []any:
		return s.validateArray(v, node, path)
	case string:
		return checkString(v, node, path)
	default:
		return checkNumberBounds(value, node, path)
	}
}

func (s *Schema) validateObject(obj map[string]any, node map[string]any, path []string) *Failure {
	props, _ := node["properties"].(map[string]any)
	patterns, _ := node["patternProperties"].(map[string]any)

	if required, ok := node["required"].([]any); ok {
		for _, r := range required {
			name, _ := r.(string)
			if _, present := obj[name]; !present {
				return fail(path, "%q is a required property", name)
			}
		}
	}

	// Deterministic iteration keeps the first-reported failure stable.
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		childPath := append(append([]string(nil), path...), key)
		if sub, declared := props[key]; declared {
			child, ok := sub.(map[string]any)
			if !ok {
				return fail(childPath, "schema error: property %q is not a schema object", key)
			}
			if f := s.validateNode(obj[key], child, childPath); f != nil {
				return f
			}
			continue
		}

		matched := false
		for pattern, sub := range patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fail(childPath, "schema error: invalid pattern %q", pattern)
			}
			if !re.MatchString(key) {
				continue
			}
			matched = true
			child, ok := sub.(map[string]any)
			if !ok {
				return fail(childPath, "schema error: pattern %q is not a schema object", pattern)
			}
			if f := s.validateNode(obj[key], child, childPath); f != nil {
				return f
			}
		}
		if matched {
			continue
		}

		// Closed-world objects reject undeclared keys unless the schema
		// explicitly allows extension.
		switch extra := node["additionalProperties"].(type) {
		case bool:
			if !extra {
				return fail(path, "additional property %q is not allowed", key)
			}
		case map[string]any:
			if f := s.validateNode(obj[key], extra, childPath); f != nil {
				return f
			}
		}
	}
	return nil
}

func (s *Schema) validateArray(arr []any, node map[string]any, path []string) *Failure {
	if min, ok := intConstraint(node["minItems"]); ok && len(arr) < min {
		return fail(path, "array is shorter than %d items", min)
	}
	if max, ok := intConstraint(node["maxItems"]); ok && len(arr) > max {
		return fail(path, "array is longer than %d items", max)
	}
	items, ok := node["items"].(map[string]any)
	if !ok {
		return nil
	}
	for i, elem := range arr {
		childPath := append(append([]string(nil), path...), strconv.Itoa(i))
		if f := s.validateNode(elem, items, childPath); f != nil {
			return f
		}
	}
	return nil
}

// checkOneOf accepts a value matching exactly one variant. Variant failures
// are intentionally not surfaced individually; the violation belongs to the
// value as a whole.
func (s *Schema) checkOneOf(value any, variants []any, path []string) *Failure {
	matches := 0
	for _, sub := range variants {
		child, ok := sub.(map[string]any)
		if !ok {
			return fail(path, "schema error: oneOf variant is not a schema object")
		}
		if s.validateNode(value, child, path) == nil {
			matches++
		}
	}
	if matches == 1 {
		return nil
	}
	if matches == 0 {
		return fail(path, "value is not valid under any of the allowed types")
	}
	return fail(path, "value is valid under more than one of the allowed types")
}

func checkString(v string, node map[string]any, path []string) *Failure {
	length := len([]rune(v))
	if min, ok := intConstraint(node["minLength"]); ok && length < min {
		return fail(path, "string is shorter than %d characters", min)
	}
	if max, ok := intConstraint(node["maxLength"]); ok && length > max {
		return fail(path, "string is longer than %d characters", max)
	}
	return nil
}

func checkNumberBounds(value any, node map[string]any, path []string) *Failure {
	num, ok := asFloat(value)
	if !ok {
		return nil
	}
	if min, isSet := floatConstraint(node["minimum"]); isSet && num < min {
		return fail(path, "%v is less than the minimum of %v", value, min)
	}
	if max, isSet := floatConstraint(node["maximum"]); isSet && num > max {
		return fail(path, "%v is greater than the maximum of %v", value, max)
	}
	return nil
}

func checkEnum(value any, enum []any, path []string) *Failure {
	for _, allowed := range enum {
		if valueEqual(value, allowed) {
			return nil
		}
	}
	return fail(path, "%v is not one of the allowed values", value)
}

func checkType(value any, typ any, path []string) *Failure {
	switch t := typ.(type) {
	case string:
		if !matchesType(value, t) {
			return fail(path, "%s is not of type %q", describeValue(value), t)
		}
	case []any:
		for _, one := range t {
			name, _ := one.(string)
			if matchesType(value, name) {
				return nil
			}
		}
		names := make([]string, 0, len(t))
		for _, one := range t {
			if name, ok := one.(string); ok {
				names = append(names, name)
			}
		}
		return fail(path, "%s is not of type %s", describeValue(value), strings.Join(names, " or "))
	}
	return nil
}

func matchesType(value any, name string) bool {
	switch name {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "null":
		return value == nil
	case "number":
		_, ok := asFloat(value)
		return ok
	case "integer":
		num, ok := asFloat(value)
		if !ok {
			return false
		}
		if _, isBool := value.(bool); isBool {
			return false
		}
		return num == float64(int64(num))
	default:
		return false
	}
}

func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		return 0, false
	default:
		return 0, false
	}
}

func intConstraint(raw any) (int, bool) {
	f, ok := asFloat(raw)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func floatConstraint(raw any) (float64, bool) {
	return asFloat(raw)
}

func valueEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func describeValue(value any) string {
	switch value.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", value)
	}
}
