package expressions

import (
	"testing"

	"github.com/rendis/stepwise/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_Comparisons(t *testing.T) {
	scope := NewScope(map[string]any{
		"n":     2,
		"name":  "bob",
		"msg":   "hello world",
		"flag":  false,
		"empty": "",
	})

	tests := []struct {
		expr string
		want bool
	}{
		{"{{n}} < 3", true},
		{"{{n}} < 2", false},
		{"{{n}} <= 2", true},
		{"{{n}} >= 2.0", true},
		{"{{n}} == 2.0", true},
		{"{{n}} != 2", false},
		{"10 > 9", true},
		{"'10' > '9'", false},
		{"{{name}} == bob", true},
		{`{{name}} == "bob"`, true},
		{"{{name}} = bob", true},
		{"{{name}} != alice", true},
		{"{{name}} < carol", true},
		{"{{msg}} == hello world", true},
		{"{{msg}} contains world", true},
		{"{{msg}} contains mars", false},
		{"{{n}} > 1 && {{name}} == bob", true},
		{"{{n}} > 5 || {{name}} == bob", true},
		{"{{n}} > 5 || {{name}} == eve", false},
		{"!{{flag}}", true},
		{"!({{n}} < 3)", false},
		{"({{n}} < 3 || {{n}} > 9) && {{name}} == bob", true},
		{"{{flag}}", false},
		{"true", true},
		{"{{empty}} == ", true},
		{"{{missing}} == ''", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, scope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_MalformedYieldsFalseAndError(t *testing.T) {
	scope := NewScope(map[string]any{"word": "banana"})

	for _, expr := range []string{
		"",
		"{{word}}",
		"(1 < 2",
		`"unterminated == x`,
		"1 < 2 && ",
		"&& 1 < 2",
	} {
		t.Run(expr, func(t *testing.T) {
			got, err := Evaluate(expr, scope)
			require.Error(t, err)
			assert.False(t, got)
			assert.Equal(t, schema.ErrCodeCondition, schema.CodeOf(err))
		})
	}
}

func TestEvaluate_BangInsideOperandIsText(t *testing.T) {
	scope := NewScope(map[string]any{"a": "x", "b": "x"})
	got, err := Evaluate("{{a}}!{{b}} == x!x", scope)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluate_ResolvedKeywordsAreParsed(t *testing.T) {
	scope := NewScope(map[string]any{"x": "a contains b"})

	got, err := Evaluate(`{{x}} == "a contains b"`, scope)
	assert.Error(t, err)
	assert.False(t, got)

	got, err = Evaluate(`"{{x}}" == "a contains b"`, scope)
	require.NoError(t, err)
	assert.True(t, got)
}
