package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	assert.Equal(t, "[NOT_FOUND] workflow missing", NewError(ErrCodeNotFound, "workflow missing").Error())
	assert.Equal(t, "[STEP_FAILED] node fetch: status 500",
		NewErrorf(ErrCodeStepFailed, "status %d", 500).WithNode("fetch").Error())
}

func TestError_IsMatchesCode(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("wrapped: %w", NewError(ErrCodeProvider, "http call failed").WithCause(cause))

	assert.True(t, errors.Is(err, NewError(ErrCodeProvider, "")))
	assert.False(t, errors.Is(err, NewError(ErrCodeCancelled, "")))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, ErrCodeProvider, CodeOf(err))
	assert.Equal(t, "", CodeOf(cause))
}

func TestExecutionRecord_Lookups(t *testing.T) {
	rec := &ExecutionRecord{Steps: []ExecutionStep{
		{NodeID: "a", Status: StepStatusSuccess},
		{NodeID: "b", Status: StepStatusError, Error: "boom"},
		{NodeID: "a", Status: StepStatusSkipped},
	}}

	st, ok := rec.LastStatus("a")
	assert.True(t, ok)
	assert.Equal(t, StepStatusSkipped, st)

	_, ok = rec.LastStatus("zzz")
	assert.False(t, ok)

	assert.Equal(t, "b", rec.FailedStep().NodeID)
	assert.True(t, RunStatusCancelled.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
}

func TestNode_Successors(t *testing.T) {
	n := Node{ID: "loop", Type: NodeWhile, TrueNext: "body"}
	assert.Equal(t, []string{"body"}, n.Successors())
	assert.True(t, n.Type.IsBranch())
	assert.Equal(t, "", n.Prop("condition"))
}
