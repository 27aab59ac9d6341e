package diagram

import (
	"fmt"
	"strings"
)

// statusTag returns a short ASCII indicator for a status string.
func statusTag(status string) string {
	switch status {
	case "success":
		return "[OK]"
	case "error":
		return "[FAIL]"
	case "skipped":
		return "[SKIP]"
	case "pending":
		return "[RUN]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as boxes in workflow order, each
// followed by its outgoing edges.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	out := make(map[string][]Edge, len(model.Nodes))
	for _, e := range model.Edges {
		out[e.From] = append(out[e.From], e)
	}

	for _, node := range model.Nodes {
		for _, line := range makeBox(node) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		for _, e := range out[node.ID] {
			if e.Label != "" {
				fmt.Fprintf(&b, "   └─[%s]→ %s\n", e.Label, e.To)
			} else {
				fmt.Fprintf(&b, "   └─→ %s\n", e.To)
			}
		}
	}
	return b.String()
}

// makeBox draws a node as a box-drawing rectangle.
func makeBox(node *Node) []string {
	content := []string{firstLine(node.Label)}
	if node.Status != nil {
		tag := statusTag(node.Status.Status)
		if node.Status.Visits > 1 {
			tag = strings.TrimSpace(fmt.Sprintf("%s x%d", tag, node.Status.Visits))
		}
		if tag != "" {
			content = append(content, tag)
		}
		if node.Status.Error != "" {
			content = append(content, node.Status.Error)
		}
	}

	maxLen := 0
	for _, line := range content {
		if n := len([]rune(line)); n > maxLen {
			maxLen = n
		}
	}

	lines := []string{"┌" + strings.Repeat("─", maxLen+2) + "┐"}
	for _, line := range content {
		pad := strings.Repeat(" ", maxLen-len([]rune(line)))
		lines = append(lines, "│ "+line+pad+" │")
	}
	return append(lines, "└"+strings.Repeat("─", maxLen+2)+"┘")
}
