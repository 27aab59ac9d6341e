package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_Substitution(t *testing.T) {
	scope := NewScope(map[string]any{
		"name":  "World",
		"n":     2,
		"ratio": 2.5,
		"ok":    true,
		"cfg":   map[string]any{"a": 1},
		"list":  []any{"x", "y"},
	})

	tests := []struct {
		in   string
		want string
	}{
		{"Hello {{name}}!", "Hello World!"},
		{"{{ name }}", "World"},
		{"n={{n}}", "n=2"},
		{"{{ratio}}", "2.5"},
		{"{{ok}}", "true"},
		{"{{cfg}}", `{"a":1}`},
		{"{{list}}", `["x","y"]`},
		{"{{list[1]}}", "y"},
		{"{{cfg.a}}", "1"},
		{"[{{missing}}]", "[]"},
		{"no placeholders", "no placeholders"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.in, scope))
		})
	}
}

func TestResolve_NotRecursive(t *testing.T) {
	scope := NewScope(map[string]any{"a": "{{b}}", "b": "boom"})
	assert.Equal(t, "{{b}}", Resolve("{{a}}", scope))
}

func TestResolve_IdempotentOnPlainValues(t *testing.T) {
	scope := NewScope(map[string]any{"x": "1", "y": "two", "z": 3})
	text := "{{x}}-{{y}}-{{z}}-{{x}}"
	once := Resolve(text, scope)
	assert.Equal(t, "1-two-3-1", once)
	assert.Equal(t, once, Resolve(once, scope))
	assert.Empty(t, Placeholders(once))
}

func TestResolve_LiteralDottedNameWins(t *testing.T) {
	scope := NewScope(map[string]any{
		"user.name": "literal",
		"user":      map[string]any{"name": "nested"},
	})
	assert.Equal(t, "literal", Resolve("{{user.name}}", scope))
}

func TestResolve_PathIntoJSONText(t *testing.T) {
	scope := NewScope(map[string]any{"body": `{"items":[{"id":7}]}`})
	assert.Equal(t, "7", Resolve("{{body.items[0].id}}", scope))
	assert.Equal(t, "", Resolve("{{body.items[3].id}}", scope))
}

func TestResolveProperties_Skip(t *testing.T) {
	scope := NewScope(map[string]any{"n": 1})
	out := ResolveProperties(map[string]string{
		"condition": "{{n}} < 2",
		"message":   "n is {{n}}",
	}, scope, "condition")

	assert.Equal(t, "{{n}} < 2", out["condition"])
	assert.Equal(t, "n is 1", out["message"])
}

func TestStringify_Numbers(t *testing.T) {
	assert.Equal(t, "3", Stringify(3.0))
	assert.Equal(t, "-0.25", Stringify(-0.25))
	assert.Equal(t, "42", Stringify(42))
	assert.Equal(t, "", Stringify(nil))
}

func TestParseLiteral(t *testing.T) {
	assert.Equal(t, float64(0), ParseLiteral("0"))
	assert.Equal(t, 1.5, ParseLiteral(" 1.5 "))
	assert.Equal(t, true, ParseLiteral("true"))
	assert.Equal(t, map[string]any{"a": float64(1)}, ParseLiteral(`{"a":1}`))
	assert.Equal(t, []any{"x"}, ParseLiteral(`["x"]`))
	assert.Equal(t, "finished", ParseLiteral("finished"))
	assert.Equal(t, "NaN", ParseLiteral("NaN"))
	assert.Equal(t, "{broken", ParseLiteral("{broken"))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"a", "b.c"}, Placeholders("{{a}} and {{ b.c }}"))
}
