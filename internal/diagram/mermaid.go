package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/stepwise/pkg/schema"
)

// Mermaid builds and renders wf as a Mermaid flowchart, styling nodes by
// their last status in rec when rec is non-nil.
func Mermaid(wf *schema.Workflow, rec *schema.ExecutionRecord) (string, error) {
	model, err := Build(wf, rec)
	if err != nil {
		return "", err
	}
	return RenderMermaid(model), nil
}

// mermaidShapes holds the opening and closing brackets per node kind.
var mermaidShapes = map[NodeKind][2]string{
	NodeKindBranch:   {"{", "}"},
	NodeKindLoop:     {"{", "}"},
	NodeKindPrompt:   {"[/", "/]"},
	NodeKindWorkflow: {"[[", "]]"},
	NodeKindStart:    {"((", "))"},
	NodeKindEnd:      {"((", "))"},
}

var mermaidClasses = []struct {
	status schema.StepStatus
	def    string
}{
	{schema.StepStatusSuccess, "fill:#2d6a2d,stroke:#1a4a1a,color:#fff"},
	{schema.StepStatusError, "fill:#8b1a1a,stroke:#5c0e0e,color:#fff"},
	{schema.StepStatusPending, "fill:#1a5276,stroke:#0e3a52,color:#fff"},
	{schema.StepStatusSkipped, "fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5"},
}

var mermaidIDReplacer = strings.NewReplacer(".", "_", "-", "_", " ", "_")

// RenderMermaid renders model as a top-down Mermaid flowchart. Branch
// edges are coloured like the Graphviz output.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	for _, node := range model.Nodes {
		shape, ok := mermaidShapes[node.Kind]
		if !ok {
			shape = [2]string{"[", "]"}
		}
		fmt.Fprintf(&b, "    %s%s%q%s\n", mermaidSafeID(node.ID), shape[0], mermaidLabel(node), shape[1])
	}

	var green, red []string
	for i, edge := range model.Edges {
		arrow := "-->"
		if edge.Label == "skipped" {
			arrow = "-.->"
		}
		if edge.Label != "" {
			arrow += "|" + edge.Label + "|"
		}
		fmt.Fprintf(&b, "    %s %s %s\n", mermaidSafeID(edge.From), arrow, mermaidSafeID(edge.To))

		switch edge.Label {
		case "true":
			green = append(green, fmt.Sprint(i))
		case "false":
			red = append(red, fmt.Sprint(i))
		}
	}
	if len(green) > 0 {
		fmt.Fprintf(&b, "    linkStyle %s stroke:#2d6a2d\n", strings.Join(green, ","))
	}
	if len(red) > 0 {
		fmt.Fprintf(&b, "    linkStyle %s stroke:#8b1a1a\n", strings.Join(red, ","))
	}

	b.WriteString("\n")
	for _, c := range mermaidClasses {
		fmt.Fprintf(&b, "    classDef %s %s\n", c.status, c.def)
	}
	for _, node := range model.Nodes {
		if node.Status == nil || !knownClass(node.Status.Status) {
			continue
		}
		fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), node.Status.Status)
	}
	return b.String()
}

// mermaidLabel uses the first label line; %q would escape double quotes
// with a backslash Mermaid does not understand.
func mermaidLabel(node *Node) string {
	label := strings.ReplaceAll(firstLine(node.Label), `"`, "'")
	if node.Status != nil && node.Status.Visits > 1 {
		label += fmt.Sprintf(" x%d", node.Status.Visits)
	}
	return label
}

func mermaidSafeID(id string) string {
	return mermaidIDReplacer.Replace(id)
}

func knownClass(status string) bool {
	for _, c := range mermaidClasses {
		if string(c.status) == status {
			return true
		}
	}
	return false
}
