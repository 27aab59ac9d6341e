package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepwise/pkg/schema"
)

func countWorkflow() *schema.Workflow {
	return &schema.Workflow{
		Name: "count",
		Nodes: []schema.Node{
			{ID: "init", Type: schema.NodeVariable, Properties: map[string]string{"name": "n", "value": "0"}},
			{ID: "loop", Type: schema.NodeWhile, Properties: map[string]string{"condition": "{{n}} < 2"}, FalseNext: "report"},
			{ID: "inc", Type: schema.NodeSet, Properties: map[string]string{"name": "n", "value": "{{n}}+1"}, Next: "loop"},
			{ID: "report", Type: schema.NodeDialog, Properties: map[string]string{"prompt": "done"}},
		},
	}
}

func countRecord() *schema.ExecutionRecord {
	steps := []schema.ExecutionStep{
		{NodeID: "init", Status: schema.StepStatusSuccess},
		{NodeID: "loop", Status: schema.StepStatusSuccess},
		{NodeID: "inc", Status: schema.StepStatusSuccess},
		{NodeID: "loop", Status: schema.StepStatusSuccess},
		{NodeID: "inc", Status: schema.StepStatusSuccess},
		{NodeID: "loop", Status: schema.StepStatusSuccess},
		{NodeID: "report", Status: schema.StepStatusError, Error: "no prompter"},
		{NodeID: "report", Workflow: "child", Status: schema.StepStatusSuccess},
	}
	for i := range steps {
		if steps[i].Workflow == "" {
			steps[i].Workflow = "count"
		}
	}
	return &schema.ExecutionRecord{ID: "r1", WorkflowName: "count", Steps: steps}
}

func findEdge(model *DiagramModel, from, label string) (Edge, bool) {
	for _, e := range model.Edges {
		if e.From == from && e.Label == label {
			return e, true
		}
	}
	return Edge{}, false
}

func TestBuildEdges(t *testing.T) {
	model, err := Build(countWorkflow(), nil)
	require.NoError(t, err)

	require.Len(t, model.Nodes, 6)
	assert.Equal(t, StartID, model.Nodes[0].ID)
	assert.Equal(t, EndID, model.Nodes[5].ID)
	assert.Equal(t, NodeKindLoop, model.Nodes[2].Kind)
	assert.Equal(t, NodeKindPrompt, model.Nodes[4].Kind)

	e, ok := findEdge(model, "loop", "true")
	require.True(t, ok)
	assert.Equal(t, "inc", e.To)

	e, ok = findEdge(model, "loop", "false")
	require.True(t, ok)
	assert.Equal(t, "report", e.To)

	e, ok = findEdge(model, "inc", "")
	require.True(t, ok)
	assert.Equal(t, "loop", e.To)

	e, ok = findEdge(model, "report", "")
	require.True(t, ok)
	assert.Equal(t, EndID, e.To)
}

func TestBuildBranchDefaults(t *testing.T) {
	wf := &schema.Workflow{Nodes: []schema.Node{
		{ID: "check", Type: schema.NodeIf, Properties: map[string]string{"condition": "a == a"}},
		{ID: "ask", Type: schema.NodeDialog, FalseNext: "check"},
	}}
	model, err := Build(wf, nil)
	require.NoError(t, err)

	e, _ := findEdge(model, "check", "true")
	assert.Equal(t, "ask", e.To)
	e, _ = findEdge(model, "check", "false")
	assert.Equal(t, EndID, e.To)
	e, ok := findEdge(model, "ask", "skipped")
	require.True(t, ok)
	assert.Equal(t, "check", e.To)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(&schema.Workflow{}, nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	wf := countWorkflow()
	wf.Nodes[2].Next = "ghost"
	_, err = Build(wf, nil)
	assert.Equal(t, schema.ErrCodeDanglingReference, schema.CodeOf(err))
}

func TestBuildStatusOverlay(t *testing.T) {
	model, err := Build(countWorkflow(), countRecord())
	require.NoError(t, err)

	byID := map[string]*Node{}
	for _, n := range model.Nodes {
		byID[n.ID] = n
	}
	require.NotNil(t, byID["loop"].Status)
	assert.Equal(t, 3, byID["loop"].Status.Visits)
	assert.Equal(t, "error", byID["report"].Status.Status)
	assert.Equal(t, 1, byID["report"].Status.Visits)
	assert.Nil(t, byID[StartID].Status)
}

func TestMermaid(t *testing.T) {
	out, err := Mermaid(countWorkflow(), countRecord())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "flowchart TD\n"))
	assert.Contains(t, out, "%% count")
	assert.Contains(t, out, `loop{"loop (while) x3"}`)
	assert.Contains(t, out, "loop -->|true| inc")
	assert.Contains(t, out, "loop -->|false| report")
	assert.Contains(t, out, "__start__ --> init")
	assert.Contains(t, out, "report --> __end__")
	assert.Contains(t, out, "class report error")
	assert.Contains(t, out, "class init success")
	assert.Contains(t, out, "linkStyle ")
	assert.Contains(t, out, "stroke:#8b1a1a\n")
}

func TestMermaidWithoutRecordHasNoClasses(t *testing.T) {
	out, err := Mermaid(countWorkflow(), nil)
	require.NoError(t, err)
	assert.NotContains(t, out, "    class ")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "a_b_c_d", mermaidSafeID("a.b-c d"))
}

func TestRenderASCII(t *testing.T) {
	model, err := Build(countWorkflow(), countRecord())
	require.NoError(t, err)

	out := RenderASCII(model)
	assert.Contains(t, out, "=== count ===")
	assert.Contains(t, out, "│ loop (while) │")
	assert.Contains(t, out, "[OK] x3")
	assert.Contains(t, out, "└─[false]→ report")
	assert.Contains(t, out, "[FAIL]")
	assert.Contains(t, out, "no prompter")
}
