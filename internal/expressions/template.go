package expressions

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Resolve replaces every {{name}} in text with the stringified scope value.
// Unknown names resolve to "". Substituted values are never re-scanned.
func Resolve(text string, scope *Scope) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if scope == nil {
			return ""
		}
		v, ok := scope.Lookup(name)
		if !ok {
			return ""
		}
		return Stringify(v)
	})
}

// ResolveProperties resolves every property value independently.
// Keys listed in skip are copied verbatim.
func ResolveProperties(props map[string]string, scope *Scope, skip ...string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		if contains(skip, k) {
			out[k] = v
			continue
		}
		out[k] = Resolve(v, scope)
	}
	return out
}

// Placeholders returns the names referenced by text, in order of appearance.
func Placeholders(text string) []string {
	matches := placeholderRe.FindAllStringSubmatch(text, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Stringify renders a scope value as text. Whole numbers print without a
// fractional part, structured values as compact JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatNumber(val)
	case float32:
		return formatNumber(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func formatNumber(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseLiteral interprets authored text as a typed value: numbers become
// float64, true/false become bool, JSON objects and arrays are decoded.
// Anything else stays a string.
func ParseLiteral(text string) any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text
	}
	if f, ok := parseNumber(trimmed); ok {
		return f
	}
	switch trimmed {
	case "true":
		return true
	case "false":
		return false
	}
	if (trimmed[0] == '{' && strings.HasSuffix(trimmed, "}")) ||
		(trimmed[0] == '[' && strings.HasSuffix(trimmed, "]")) {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return text
}

// parseNumber accepts plain decimal notation only; "Inf", "NaN" and hex stay strings.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789.-+eE", r) {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

type pathSeg struct {
	key   string
	index int
	isIdx bool
}

// splitPath parses "a.b[2].c" into segments. The first segment is always a key.
func splitPath(path string) ([]pathSeg, bool) {
	var segs []pathSeg
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, false
		}
		key := part
		var idxs []int
		if open := strings.IndexByte(part, '['); open >= 0 {
			key = part[:open]
			rest := part[open:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, false
				}
				end := strings.IndexByte(rest, ']')
				if end < 0 {
					return nil, false
				}
				n, err := strconv.Atoi(rest[1:end])
				if err != nil || n < 0 {
					return nil, false
				}
				idxs = append(idxs, n)
				rest = rest[end+1:]
			}
		}
		if key != "" {
			segs = append(segs, pathSeg{key: key})
		} else if len(segs) == 0 {
			return nil, false
		}
		for _, n := range idxs {
			segs = append(segs, pathSeg{index: n, isIdx: true})
		}
	}
	return segs, len(segs) > 0
}

func walkPath(v any, segs []pathSeg) (any, bool) {
	cur := v
	for _, seg := range segs {
		if s, ok := cur.(string); ok {
			// Variables written by http/json nodes may hold raw JSON text.
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return nil, false
			}
			cur = decoded
		}
		if seg.isIdx {
			arr, ok := cur.([]any)
			if !ok || seg.index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg.key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
