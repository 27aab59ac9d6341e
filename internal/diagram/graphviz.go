package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

type statusStyle struct {
	fill, font string
	style      cgraph.NodeStyle
}

var statusStyles = map[string]statusStyle{
	"success": {fill: "#2d6a2d", font: "white", style: cgraph.FilledNodeStyle},
	"error":   {fill: "#8b1a1a", font: "white", style: cgraph.FilledNodeStyle},
	"pending": {fill: "#1a5276", font: "white", style: cgraph.FilledNodeStyle},
	"skipped": {fill: "#e8e8e8", font: "#888888", style: cgraph.DashedNodeStyle},
}

// RenderImage lays the model out with dot and returns it as PNG.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return render(ctx, model, graphviz.PNG)
}

// RenderSVG is RenderImage with SVG output.
func RenderSVG(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return render(ctx, model, graphviz.SVG)
}

func render(ctx context.Context, model *DiagramModel, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()
	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	byID := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, err := graph.CreateNodeByName(node.ID)
		if err != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, err)
		}
		gvNode.SetLabel(node.Label)
		styleNode(gvNode, node)
		byID[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		from, to := byID[edge.From], byID[edge.To]
		if from == nil || to == nil {
			return nil, fmt.Errorf("diagram: edge %s -> %s references a missing node", edge.From, edge.To)
		}
		gvEdge, err := graph.CreateEdgeByName("", from, to)
		if err != nil {
			return nil, fmt.Errorf("diagram: create edge %s -> %s: %w", edge.From, edge.To, err)
		}
		styleEdge(gvEdge, edge)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, format, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func styleNode(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindBranch, NodeKindLoop:
		gvNode.SetShape(cgraph.DiamondShape)
	case NodeKindPrompt:
		gvNode.SetShape(cgraph.ParallelogramShape)
	case NodeKindWorkflow:
		gvNode.SetShape(cgraph.Box3DShape)
	case NodeKindStart, NodeKindEnd:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.5)
		gvNode.SetHeight(0.5)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	overlay := node.Status
	if overlay == nil {
		return
	}
	if st, ok := statusStyles[overlay.Status]; ok {
		gvNode.SetStyle(st.style)
		gvNode.SetFillColor(st.fill)
		gvNode.SetFontColor(st.font)
	}
	if overlay.Visits > 1 {
		gvNode.SetXLabel(fmt.Sprintf("x%d", overlay.Visits))
	}
	if overlay.Error != "" {
		gvNode.SetTooltip(overlay.Error)
	}
}

func styleEdge(gvEdge *cgraph.Edge, edge Edge) {
	if edge.Label != "" {
		gvEdge.SetLabel(edge.Label)
	}
	switch edge.Label {
	case "true":
		gvEdge.SetColor("#2d6a2d")
	case "false":
		gvEdge.SetColor("#8b1a1a")
	case "skipped":
		gvEdge.SetStyle(cgraph.DottedEdgeStyle)
		gvEdge.SetColor("#888888")
	}
}
