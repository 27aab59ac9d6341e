package expressions

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_NormalizesOnInsert(t *testing.T) {
	s := NewScope(map[string]any{"i": 3, "raw": json.RawMessage(`{"k":[1]}`)})
	s.Set("n", int64(7))
	s.Set("tags", []string{"a", "b"})

	v, ok := s.Get("i")
	require.True(t, ok)
	assert.Equal(t, float64(3), v)

	v, _ = s.Get("n")
	assert.Equal(t, float64(7), v)

	v, _ = s.Get("raw")
	assert.Equal(t, map[string]any{"k": []any{float64(1)}}, v)

	v, _ = s.Get("tags")
	assert.Equal(t, []any{"a", "b"}, v)
	assert.Equal(t, []string{"i", "n", "raw", "tags"}, s.Names())
}

func TestScope_SnapshotIsDeepCopy(t *testing.T) {
	s := NewScope(map[string]any{"cfg": map[string]any{"a": "1"}})
	snap := s.Snapshot()
	snap["cfg"].(map[string]any)["a"] = "changed"
	snap["new"] = true

	v, _ := s.Lookup("cfg.a")
	assert.Equal(t, "1", v)
	_, ok := s.Get("new")
	assert.False(t, ok)
}

func TestScope_ChildIsIsolated(t *testing.T) {
	parent := NewScope(map[string]any{"parent": "p", "secret": "s"})
	child := parent.Child(map[string]any{"child": "p"})

	_, ok := child.Get("secret")
	assert.False(t, ok)

	child.Set("child", "updated")
	child.Set("extra", 1)
	v, _ := parent.Get("parent")
	assert.Equal(t, "p", v)

	parent.CopyOut(child, map[string]string{"parent": "child", "ghost": "nope"}, "sub_")

	v, _ = parent.Get("parent")
	assert.Equal(t, "updated", v)
	_, ok = parent.Get("ghost")
	assert.False(t, ok)
	v, _ = parent.Get("sub_extra")
	assert.Equal(t, float64(1), v)
	v, _ = parent.Get("sub_child")
	assert.Equal(t, "updated", v)
}

func TestScope_ConcurrentAccess(t *testing.T) {
	s := NewScope(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Set("k", i)
			_, _ = s.Get("k")
			_ = s.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, s.Len())

	s.Delete("k")
	assert.Equal(t, 0, s.Len())
}
