package expressions

import (
	"context"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rendis/stepwise/pkg/schema"
)

var (
	arithmeticRe = regexp.MustCompile(`^[\d\s.+\-*/%()]+$`)
	numberRe     = regexp.MustCompile(`\.?\d+(\.\d*)?`)
)

// IsArithmetic reports whether text looks like a pure arithmetic expression:
// digits, operators and parentheses only, with at least one binary operator.
func IsArithmetic(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" || !arithmeticRe.MatchString(t) {
		return false
	}
	if _, isNum := parseNumber(t); isNum {
		return false
	}
	return strings.ContainsAny(strings.TrimLeft(t, "+-( "), "+-*/%")
}

// ExprEngine evaluates the arithmetic of set nodes once placeholders are
// resolved, so "{{n}}+1" arrives here as "2+1". Programs have no variables
// and no builtins, and always yield float64.
type ExprEngine struct {
	programs *programCache[*vm.Program]
}

func NewExprEngine() *ExprEngine {
	return &ExprEngine{programs: newProgramCache(compileArithmetic)}
}

// floatLiterals rewrites integer literals as floats so that sums of large
// counters neither overflow nor wrap around int64. Expressions using % keep
// integer literals, since modulo is defined on integers only.
func floatLiterals(src string) string {
	if strings.Contains(src, "%") {
		return src
	}
	return numberRe.ReplaceAllStringFunc(src, func(n string) string {
		if strings.Contains(n, ".") {
			return n
		}
		return n + ".0"
	})
}

func compileArithmetic(src string) (*vm.Program, error) {
	prg, err := expr.Compile(floatLiterals(src),
		expr.Env(map[string]any{}),
		expr.DisableAllBuiltins(),
		expr.AsFloat64(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid arithmetic %q: %s", src, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": src})
	}
	return prg, nil
}

// Arithmetic evaluates expression. Division by zero yields ±Inf or NaN
// rather than an error.
func (e *ExprEngine) Arithmetic(ctx context.Context, expression string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, schema.NewError(schema.ErrCodeCancelled, "arithmetic cancelled").WithCause(err)
	}
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return 0, schema.NewError(schema.ErrCodeValidation, "empty arithmetic expression")
	}

	prg, err := e.programs.get(expression)
	if err != nil {
		return 0, err
	}
	out, err := vm.Run(prg, map[string]any{})
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeExecution, "evaluating %q: %s", expression, err.Error()).
			WithCause(err)
	}
	return out.(float64), nil
}
