package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/stepwise/pkg/schema"
)

// Build constructs a DiagramModel from a workflow and an optional execution
// record. Steps of nested workflows in the record are ignored.
func Build(wf *schema.Workflow, rec *schema.ExecutionRecord) (*DiagramModel, error) {
	if wf == nil || len(wf.Nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "diagram: workflow has no nodes")
	}
	index := make(map[string]int, len(wf.Nodes))
	for i, n := range wf.Nodes {
		if _, dup := index[n.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "diagram: duplicate node id %q", n.ID)
		}
		index[n.ID] = i
	}

	overlays := overlaysFor(wf.Name, rec)

	model := &DiagramModel{Title: wf.Name}
	model.Nodes = append(model.Nodes, &Node{ID: StartID, Label: "Start", Kind: NodeKindStart})
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		model.Nodes = append(model.Nodes, &Node{
			ID:     n.ID,
			Label:  nodeLabel(n),
			Kind:   kindOf(n.Type),
			Status: overlays[n.ID],
		})
	}
	model.Nodes = append(model.Nodes, &Node{ID: EndID, Label: "End", Kind: NodeKindEnd})

	model.Edges = append(model.Edges, Edge{From: StartID, To: wf.Nodes[0].ID})
	for i := range wf.Nodes {
		edges, err := nodeEdges(wf, index, i)
		if err != nil {
			return nil, err
		}
		model.Edges = append(model.Edges, edges...)
	}
	return model, nil
}

func nodeEdges(wf *schema.Workflow, index map[string]int, i int) ([]Edge, error) {
	n := &wf.Nodes[i]
	target := func(id string) (string, error) {
		if _, ok := index[id]; !ok {
			return "", schema.NewErrorf(schema.ErrCodeDanglingReference,
				"diagram: node %s references unknown node %s", n.ID, id).WithNode(n.ID)
		}
		return id, nil
	}
	positional := func() string {
		if i+1 < len(wf.Nodes) {
			return wf.Nodes[i+1].ID
		}
		return EndID
	}

	var edges []Edge
	if n.Type.IsBranch() {
		to := positional()
		if n.TrueNext != "" {
			t, err := target(n.TrueNext)
			if err != nil {
				return nil, err
			}
			to = t
		}
		edges = append(edges, Edge{From: n.ID, To: to, Label: "true"})

		to = EndID
		if n.FalseNext != "" {
			t, err := target(n.FalseNext)
			if err != nil {
				return nil, err
			}
			to = t
		}
		return append(edges, Edge{From: n.ID, To: to, Label: "false"}), nil
	}

	to := positional()
	if n.Next != "" {
		t, err := target(n.Next)
		if err != nil {
			return nil, err
		}
		to = t
	}
	edges = append(edges, Edge{From: n.ID, To: to})
	if n.FalseNext != "" {
		t, err := target(n.FalseNext)
		if err != nil {
			return nil, err
		}
		edges = append(edges, Edge{From: n.ID, To: t, Label: "skipped"})
	}
	return edges, nil
}

// overlaysFor keeps the last status per node and counts visits.
func overlaysFor(workflow string, rec *schema.ExecutionRecord) map[string]*StatusOverlay {
	out := make(map[string]*StatusOverlay)
	if rec == nil {
		return out
	}
	for _, step := range rec.Steps {
		if step.Workflow != "" && step.Workflow != workflow {
			continue
		}
		ov := out[step.NodeID]
		if ov == nil {
			ov = &StatusOverlay{}
			out[step.NodeID] = ov
		}
		ov.Visits++
		ov.Status = string(step.Status)
		ov.Error = step.Error
	}
	return out
}

func kindOf(t schema.NodeType) NodeKind {
	switch t {
	case schema.NodeIf:
		return NodeKindBranch
	case schema.NodeWhile:
		return NodeKindLoop
	case schema.NodeDialog, schema.NodePromptFile, schema.NodePromptSelection, schema.NodeFileExplorer:
		return NodeKindPrompt
	case schema.NodeWorkflow:
		return NodeKindWorkflow
	default:
		return NodeKindStep
	}
}

// nodeLabel is "id (type)" followed by the most telling property.
func nodeLabel(n *schema.Node) string {
	label := fmt.Sprintf("%s (%s)", n.ID, n.Type)
	for _, key := range []string{"condition", "path", "url", "prompt", "name"} {
		if v := strings.TrimSpace(n.Prop(key)); v != "" {
			return label + "\n" + key + ": " + v
		}
	}
	return label
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}
