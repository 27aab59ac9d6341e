package expressions

import (
	"encoding/json"
	"sort"
	"sync"
)

// Scope is the mutable variable environment owned by one execution context.
// Values are normalized on insert: integer kinds become float64 and
// json.RawMessage is decoded, so templates and comparisons see one number type.
type Scope struct {
	mu   sync.RWMutex
	vars map[string]any
}

// NewScope creates a scope seeded with a deep copy of seed.
func NewScope(seed map[string]any) *Scope {
	s := &Scope{vars: make(map[string]any, len(seed))}
	for k, v := range seed {
		s.vars[k] = Normalize(v)
	}
	return s
}

// Get returns the value stored under name.
func (s *Scope) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Set stores value under name, replacing any previous value.
func (s *Scope) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = Normalize(value)
}

// Delete removes name from the scope.
func (s *Scope) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Len returns the number of variables.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}

// Names returns the variable names in sorted order.
func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.vars))
	for k := range s.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a deep copy of all variables.
func (s *Scope) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopyMap(s.vars)
}

// Lookup resolves a dotted/indexed path such as "user.tags[0]".
// A variable whose literal name matches the full path wins over traversal.
func (s *Scope) Lookup(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.vars[path]; ok {
		return v, true
	}
	segs, ok := splitPath(path)
	if !ok || len(segs) < 2 {
		return nil, false
	}
	root, ok := s.vars[segs[0].key]
	if !ok {
		return nil, false
	}
	return walkPath(root, segs[1:])
}

// Child derives an independent scope for a sub-workflow call.
// The input map is already resolved against the parent; nothing else is inherited.
func (s *Scope) Child(input map[string]any) *Scope {
	return NewScope(input)
}

// CopyOut copies child variables back into s.
// mapping is parent name -> child name; prefix, when non-empty, additionally
// copies every child variable as prefix+name.
func (s *Scope) CopyOut(child *Scope, mapping map[string]string, prefix string) {
	snap := child.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	for parentName, childName := range mapping {
		if v, ok := snap[childName]; ok {
			s.vars[parentName] = v
		}
	}
	if prefix != "" {
		for k, v := range snap {
			s.vars[prefix+k] = v
		}
	}
}

// Normalize converts Go native values into the scope's value domain:
// string, float64, bool, nil, map[string]any and []any.
func Normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(val, &decoded); err != nil {
			return string(val)
		}
		return decoded
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	default:
		return v
	}
}
