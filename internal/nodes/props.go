package nodes

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/pkg/schema"
)

// Property helpers shared by all handler files. Authored properties are
// always strings; these parse them leniently and fall back to defaults.

func boolProp(props map[string]string, key string, defaultVal bool) bool {
	v, ok := props[key]
	if !ok || strings.TrimSpace(v) == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return defaultVal
	}
	return b
}

func intProp(props map[string]string, key string, defaultVal int) int {
	v, ok := props[key]
	if !ok {
		return defaultVal
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return defaultVal
	}
	return n
}

func floatPropPtr(props map[string]string, key string) *float64 {
	v, ok := props[key]
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil
	}
	return &f
}

func durationProp(props map[string]string, key string) time.Duration {
	v := strings.TrimSpace(props[key])
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// listProp splits a comma-separated property, dropping empty items.
func listProp(props map[string]string, key string) []string {
	var out []string
	for _, item := range strings.Split(props[key], ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// jsonMapProp parses an authored JSON object and resolves placeholders in
// each string value. A value that is exactly one placeholder keeps the
// referenced variable's type.
func jsonMapProp(raw map[string]string, key string, scope *expressions.Scope) (map[string]any, error) {
	text := strings.TrimSpace(raw[key])
	if text == "" {
		return nil, nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "property %q must be a JSON object: %v", key, err)
	}
	for k, v := range parsed {
		parsed[k] = resolveValue(v, scope)
	}
	return parsed, nil
}

// stringMapProp is jsonMapProp with every value stringified.
func stringMapProp(raw map[string]string, key string, scope *expressions.Scope) (map[string]string, error) {
	m, err := jsonMapProp(raw, key, scope)
	if err != nil || m == nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = expressions.Stringify(v)
	}
	return out, nil
}

func resolveValue(v any, scope *expressions.Scope) any {
	switch val := v.(type) {
	case string:
		if name, ok := singlePlaceholder(val); ok {
			if got, found := scope.Lookup(name); found {
				return got
			}
			return ""
		}
		return expressions.Resolve(val, scope)
	case map[string]any:
		for k, item := range val {
			val[k] = resolveValue(item, scope)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = resolveValue(item, scope)
		}
		return val
	default:
		return v
	}
}

// singlePlaceholder reports whether s is exactly one {{name}} reference.
func singlePlaceholder(s string) (string, bool) {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "{{") || !strings.HasSuffix(t, "}}") {
		return "", false
	}
	names := expressions.Placeholders(t)
	if len(names) != 1 {
		return "", false
	}
	return names[0], true
}

// decodeMaybeJSON returns the decoded value when text is a JSON object or
// array, and text itself otherwise.
func decodeMaybeJSON(text string) any {
	t := strings.TrimSpace(text)
	if t == "" || (t[0] != '{' && t[0] != '[') {
		return text
	}
	var decoded any
	if err := json.Unmarshal([]byte(t), &decoded); err != nil {
		return text
	}
	return decoded
}

func requireProps(node *schema.Node, names ...string) error {
	for _, name := range names {
		if strings.TrimSpace(node.Prop(name)) == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "%s node %q: missing required property %q",
				node.Type, node.ID, name).WithNode(node.ID)
		}
	}
	return nil
}

func validateJSONMapProp(node *schema.Node, key string) error {
	text := strings.TrimSpace(node.Prop(key))
	if text == "" {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s node %q: property %q must be a JSON object",
			node.Type, node.ID, key).WithNode(node.ID)
	}
	return nil
}
