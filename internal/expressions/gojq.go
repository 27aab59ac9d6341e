package expressions

import (
	"context"

	"github.com/itchyny/gojq"
	"github.com/rendis/stepwise/pkg/schema"
)

// jqVarsName is the variable json-node queries use to read the run scope,
// e.g. `.items | map(select(.owner == $vars.user))`.
const jqVarsName = "$vars"

// GoJQEngine runs the jq queries of json nodes. $ENV is empty and the
// scope is reachable only through $vars.
type GoJQEngine struct {
	programs *programCache[*gojq.Code]
}

func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{programs: newProgramCache(compileJQ)}
}

func compileJQ(src string) (*gojq.Code, error) {
	query, err := gojq.Parse(src)
	if err != nil {
		return nil, jqError(schema.ErrCodeValidation, "jq parse error", src, err)
	}
	code, err := gojq.Compile(query,
		gojq.WithVariables([]string{jqVarsName}),
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, jqError(schema.ErrCodeValidation, "jq compile error", src, err)
	}
	return code, nil
}

func jqError(code, what, src string, err error) *schema.Error {
	return schema.NewErrorf(code, "%s in %q: %s", what, src, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": src})
}

// Check reports whether expression compiles, without running it.
func (e *GoJQEngine) Check(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty jq expression")
	}
	_, err := e.programs.get(expression)
	return err
}

// Query runs expression over input with vars bound to $vars. A single
// output is returned as is, several are collected into []any and none
// gives nil.
func (e *GoJQEngine) Query(ctx context.Context, expression string, input any, vars map[string]any) (any, error) {
	if err := e.Check(expression); err != nil {
		return nil, err
	}
	code, _ := e.programs.get(expression)

	if vars == nil {
		vars = map[string]any{}
	}
	iter := code.RunWithContext(ctx, Normalize(input), Normalize(vars))

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, jqError(schema.ErrCodeExecution, "jq evaluation failed", expression, err)
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
