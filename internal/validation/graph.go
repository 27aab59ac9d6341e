package validation

import (
	"fmt"

	"github.com/rendis/stepwise/pkg/schema"
)

// validateGraph reports duplicate and empty ids and dangling successor
// references as errors, and nodes the walk from the first node can never
// reach as warnings.
func validateGraph(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	index := make(map[string]int, len(wf.Nodes))
	for i, n := range wf.Nodes {
		if n.ID == "" {
			result.AddNodeError(i, "", "id", schema.ErrCodeValidation, fmt.Sprintf("node at index %d has empty id", i))
			continue
		}
		if first, exists := index[n.ID]; exists {
			result.AddNodeError(i, n.ID, "id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate node id %q (first at index %d)", n.ID, first))
			continue
		}
		index[n.ID] = i
	}

	for i, n := range wf.Nodes {
		refs := []struct{ field, target string }{
			{"next", n.Next}, {"trueNext", n.TrueNext}, {"falseNext", n.FalseNext},
		}
		for _, ref := range refs {
			if ref.target == "" {
				continue
			}
			if _, ok := index[ref.target]; !ok {
				result.AddNodeError(i, n.ID, ref.field, schema.ErrCodeDanglingReference,
					fmt.Sprintf("node %s references unknown node %s", n.ID, ref.target))
			}
		}
	}

	if !result.Valid() || len(wf.Nodes) == 0 {
		return result
	}

	reached := reachable(wf, index)
	for i, n := range wf.Nodes {
		if !reached[i] {
			result.AddNodeWarning(i, n.ID, "", schema.ErrCodeValidation,
				fmt.Sprintf("node %s is unreachable", n.ID))
		}
	}
	return result
}

// reachable walks every edge the walker could take starting at node 0.
func reachable(wf *schema.Workflow, index map[string]int) []bool {
	seen := make([]bool, len(wf.Nodes))
	queue := []int{0}
	seen[0] = true

	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for _, j := range edges(wf, index, i) {
			if j >= 0 && j < len(wf.Nodes) && !seen[j] {
				seen[j] = true
				queue = append(queue, j)
			}
		}
	}
	return seen
}

func edges(wf *schema.Workflow, index map[string]int, i int) []int {
	n := &wf.Nodes[i]
	var out []int
	follow := func(id string) {
		if j, ok := index[id]; ok {
			out = append(out, j)
		}
	}

	if n.Type.IsBranch() {
		if n.TrueNext != "" {
			follow(n.TrueNext)
		} else {
			out = append(out, i+1)
		}
		follow(n.FalseNext)
		return out
	}

	if n.Next != "" {
		follow(n.Next)
	} else {
		out = append(out, i+1)
	}
	// skipped steps continue at falseNext
	follow(n.FalseNext)
	return out
}
