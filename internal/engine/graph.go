package engine

import (
	"github.com/rendis/stepwise/pkg/schema"
)

// Done is the successor index that ends a walk.
const Done = -1

// Graph is the flat indexed form of a workflow used by the walker.
// Node order in the workflow is the fallthrough order.
type Graph struct {
	Workflow *schema.Workflow
	index    map[string]int
}

// BuildGraph indexes wf and checks the load-time invariants: at least one
// node, unique non-empty ids and no dangling successor references.
func BuildGraph(wf *schema.Workflow) (*Graph, error) {
	if wf == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	if len(wf.Nodes) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "workflow %q has no nodes", wf.Name)
	}

	g := &Graph{Workflow: wf, index: make(map[string]int, len(wf.Nodes))}
	for i := range wf.Nodes {
		id := wf.Nodes[i].ID
		if id == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "node at index %d has empty id", i)
		}
		if _, exists := g.index[id]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate node id: %s", id).WithNode(id)
		}
		g.index[id] = i
	}

	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		for _, ref := range n.Successors() {
			if _, ok := g.index[ref]; !ok {
				return nil, schema.NewErrorf(schema.ErrCodeDanglingReference,
					"node %s references unknown node %s", n.ID, ref).
					WithNode(n.ID).
					WithDetails(map[string]any{"workflow": wf.Name, "target": ref})
			}
		}
	}
	return g, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.Workflow.Nodes) }

// At returns the node at index i.
func (g *Graph) At(i int) *schema.Node { return &g.Workflow.Nodes[i] }

// Index returns the position of the node with the given id.
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Next picks the successor of node i given its outcome.
//
// Branch kinds follow trueNext (default: positional successor) or falseNext
// (default: Done). A skipped node with falseNext continues there. Every other
// node follows next, then the positional successor, then Done.
func (g *Graph) Next(i int, branch *bool, status schema.StepStatus) int {
	n := g.At(i)

	if n.Type.IsBranch() {
		if branch != nil && *branch {
			if n.TrueNext != "" {
				return g.index[n.TrueNext]
			}
			return g.positional(i)
		}
		if n.FalseNext != "" {
			return g.index[n.FalseNext]
		}
		return Done
	}

	if status == schema.StepStatusSkipped && n.FalseNext != "" {
		return g.index[n.FalseNext]
	}
	if n.Next != "" {
		return g.index[n.Next]
	}
	return g.positional(i)
}

func (g *Graph) positional(i int) int {
	if i+1 < g.Len() {
		return i + 1
	}
	return Done
}
