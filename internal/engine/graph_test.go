package engine

import (
	"testing"

	"github.com/rendis/stepwise/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(b bool) *bool { return &b }

func TestBuildGraph_Index(t *testing.T) {
	g, err := BuildGraph(countWorkflow())
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())

	i, ok := g.Index("inc")
	require.True(t, ok)
	assert.Equal(t, 2, i)
	assert.Equal(t, "inc", g.At(i).ID)

	_, ok = g.Index("ghost")
	assert.False(t, ok)
}

func TestBuildGraph_EmptyID(t *testing.T) {
	_, err := BuildGraph(&schema.Workflow{Nodes: []schema.Node{{Type: schema.NodeVariable}}})
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestBuildGraph_DanglingBranchTarget(t *testing.T) {
	_, err := BuildGraph(&schema.Workflow{Name: "w", Nodes: []schema.Node{
		{ID: "c", Type: schema.NodeIf, TrueNext: "nowhere"},
	}})
	require.Error(t, err)

	var se *schema.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, schema.ErrCodeDanglingReference, se.Code)
	assert.Equal(t, "c", se.NodeID)
}

func TestGraph_Next(t *testing.T) {
	wf := &schema.Workflow{Name: "w", Nodes: []schema.Node{
		{ID: "a", Type: schema.NodeVariable},
		{ID: "if1", Type: schema.NodeIf, FalseNext: "d"},
		{ID: "b", Type: schema.NodeVariable, Next: "d"},
		{ID: "c", Type: schema.NodeDialog, FalseNext: "a"},
		{ID: "if2", Type: schema.NodeWhile, TrueNext: "a"},
		{ID: "d", Type: schema.NodeVariable},
	}}
	g, err := BuildGraph(wf)
	require.NoError(t, err)

	tests := []struct {
		name   string
		from   int
		branch *bool
		status schema.StepStatus
		want   int
	}{
		{"positional", 0, nil, schema.StepStatusSuccess, 1},
		{"branch true defaults to positional", 1, ptr(true), schema.StepStatusSuccess, 2},
		{"branch false follows falseNext", 1, ptr(false), schema.StepStatusSuccess, 5},
		{"explicit next", 2, nil, schema.StepStatusSuccess, 5},
		{"skipped follows falseNext", 3, nil, schema.StepStatusSkipped, 0},
		{"success ignores falseNext", 3, nil, schema.StepStatusSuccess, 4},
		{"branch true follows trueNext", 4, ptr(true), schema.StepStatusSuccess, 0},
		{"branch false without target ends", 4, ptr(false), schema.StepStatusSuccess, Done},
		{"last node ends", 5, nil, schema.StepStatusSuccess, Done},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Next(tt.from, tt.branch, tt.status))
		})
	}
}
