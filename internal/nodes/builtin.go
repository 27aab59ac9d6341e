package nodes

import (
	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/pkg/schema"
)

// RegisterBuiltins registers a handler for every built-in node kind.
func RegisterBuiltins(reg *Registry, exprs *expressions.ExprEngine, jq *expressions.GoJQEngine) error {
	if exprs == nil {
		exprs = expressions.NewExprEngine()
	}
	if jq == nil {
		jq = expressions.NewGoJQEngine()
	}

	builtins := []Handler{
		variableHandler{},
		&setHandler{exprs: exprs},
		conditionHandler{kind: schema.NodeIf},
		conditionHandler{kind: schema.NodeWhile},
		commandHandler{},
		httpHandler{},
		&jsonHandler{jq: jq},
		mcpHandler{},
		writeHandler{kind: schema.NodeNote, markdown: true},
		writeHandler{kind: schema.NodeFileSave},
		noteReadHandler{},
		noteSearchHandler{},
		listHandler{kind: schema.NodeNoteList},
		listHandler{kind: schema.NodeFolderList, dirs: true},
		openHandler{},
		dialogHandler{},
		promptFileHandler{kind: schema.NodePromptFile},
		promptFileHandler{kind: schema.NodeFileExplorer, explorer: true},
		promptSelectionHandler{},
		workflowHandler{},
		ragSyncHandler{},
		hostCommandHandler{},
	}
	for _, h := range builtins {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultRegistry returns a registry holding every built-in handler.
func NewDefaultRegistry() *Registry {
	reg := NewRegistry()
	if err := RegisterBuiltins(reg, nil, nil); err != nil {
		panic(err) // kinds are unique by construction
	}
	return reg
}
