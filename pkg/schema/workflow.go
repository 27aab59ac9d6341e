package schema

// NodeType enumerates the kinds of nodes a workflow can contain.
type NodeType string

const (
	NodeVariable        NodeType = "variable"
	NodeSet             NodeType = "set"
	NodeIf              NodeType = "if"
	NodeWhile           NodeType = "while"
	NodeCommand         NodeType = "command"
	NodeHTTP            NodeType = "http"
	NodeJSON            NodeType = "json"
	NodeMCP             NodeType = "mcp"
	NodeNote            NodeType = "note"
	NodeNoteRead        NodeType = "note-read"
	NodeNoteSearch      NodeType = "note-search"
	NodeNoteList        NodeType = "note-list"
	NodeFolderList      NodeType = "folder-list"
	NodeOpen            NodeType = "open"
	NodeFileSave        NodeType = "file-save"
	NodeFileExplorer    NodeType = "file-explorer"
	NodeDialog          NodeType = "dialog"
	NodePromptFile      NodeType = "prompt-file"
	NodePromptSelection NodeType = "prompt-selection"
	NodeWorkflow        NodeType = "workflow"
	NodeRAGSync         NodeType = "rag-sync"
	NodeHostCommand     NodeType = "obsidian-command"
)

// NodeTypes lists every known node type in a stable order.
var NodeTypes = []NodeType{
	NodeVariable, NodeSet, NodeIf, NodeWhile, NodeCommand, NodeHTTP, NodeJSON, NodeMCP,
	NodeNote, NodeNoteRead, NodeNoteSearch, NodeNoteList, NodeFolderList, NodeOpen,
	NodeFileSave, NodeFileExplorer, NodeDialog, NodePromptFile, NodePromptSelection,
	NodeWorkflow, NodeRAGSync, NodeHostCommand,
}

// IsBranch reports whether the node type selects between trueNext and falseNext.
func (t NodeType) IsBranch() bool {
	return t == NodeIf || t == NodeWhile
}

// Workflow is a parsed, immutable workflow graph.
// Node order is significant only as the fallthrough successor.
type Workflow struct {
	Name  string `json:"name" yaml:"name"`
	Nodes []Node `json:"nodes" yaml:"nodes"`
}

// Node is a single step of a workflow.
type Node struct {
	ID         string            `json:"id" yaml:"id"`
	Type       NodeType          `json:"type" yaml:"type"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
	Next       string            `json:"next,omitempty" yaml:"next,omitempty"`
	TrueNext   string            `json:"trueNext,omitempty" yaml:"trueNext,omitempty"`
	FalseNext  string            `json:"falseNext,omitempty" yaml:"falseNext,omitempty"`
}

// Prop returns the named property, or "" when absent.
func (n *Node) Prop(name string) string {
	if n.Properties == nil {
		return ""
	}
	return n.Properties[name]
}

// Successors returns the explicit successor pointers that are set.
func (n *Node) Successors() []string {
	var out []string
	for _, id := range []string{n.Next, n.TrueNext, n.FalseNext} {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
