package diagram

// NodeKind classifies a diagram node by the shape it is drawn with.
type NodeKind string

const (
	NodeKindStep     NodeKind = "step"
	NodeKindBranch   NodeKind = "branch"
	NodeKindLoop     NodeKind = "loop"
	NodeKindPrompt   NodeKind = "prompt"
	NodeKindWorkflow NodeKind = "workflow"
	NodeKindStart    NodeKind = "start"
	NodeKindEnd      NodeKind = "end"
)

// Virtual node ids.
const (
	StartID = "__start__"
	EndID   = "__end__"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title string
	Nodes []*Node
	Edges []Edge
}

// Node is one workflow node, or a virtual start/end marker.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries the outcome of the node's most recent visit.
type StatusOverlay struct {
	Status string // from schema.StepStatus
	Visits int
	Error  string
}

// Edge is a possible transition of the walker. Label is "true"/"false" on
// branch edges and "skipped" on a plain node's falseNext.
type Edge struct {
	From  string
	To    string
	Label string
}
