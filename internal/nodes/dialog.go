package nodes

import (
	"context"

	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/pkg/schema"
)

func ask(ctx context.Context, call *Call, req schema.PromptRequest) (schema.PromptResponse, error) {
	if call.Providers.Prompter == nil {
		return schema.PromptResponse{}, providers.Missing("prompter")
	}
	req.NodeID = call.Node.ID
	req.RunID = call.RunID
	return call.Providers.Prompter.Prompt(ctx, req)
}

// userCancelled maps a dismissed prompt: skip when the author wired a
// fallback edge, cancel the run otherwise.
func userCancelled(call *Call) (*Outcome, error) {
	if call.Node.FalseNext != "" {
		return skipped("cancelled by user"), nil
	}
	return nil, schema.NewError(schema.ErrCodeUserCancelled, "cancelled by user").WithNode(call.Node.ID)
}

// dialogHandler asks for free text, a single choice, several choices or a
// yes/no confirmation depending on inputType.
type dialogHandler struct{}

func (dialogHandler) Kind() schema.NodeType { return schema.NodeDialog }

func (dialogHandler) Validate(node *schema.Node) error {
	switch schema.PromptKind(node.Prop("inputType")) {
	case "", schema.PromptText, schema.PromptChoice, schema.PromptMulti, schema.PromptConfirm:
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "dialog node %q: unknown inputType %q",
			node.ID, node.Prop("inputType")).WithNode(node.ID)
	}
	if k := schema.PromptKind(node.Prop("inputType")); (k == schema.PromptChoice || k == schema.PromptMulti) &&
		node.Prop("options") == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "dialog node %q: %s input needs options", node.ID, k).WithNode(node.ID)
	}
	return nil
}

func (dialogHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	kind := schema.PromptKind(orDefault(call.Prop("inputType"), string(schema.PromptText)))
	resp, err := ask(ctx, call, schema.PromptRequest{
		Kind:    kind,
		Title:   call.Prop("title"),
		Message: call.Prop("message"),
		Options: listProp(call.Props, "options"),
		Default: call.Prop("default"),
	})
	if err != nil {
		return nil, err
	}
	if resp.Cancelled {
		return userCancelled(call)
	}

	var value any = resp.Value
	switch kind {
	case schema.PromptMulti:
		value = toAnySlice(resp.Values)
	case schema.PromptConfirm:
		value = !isNo(resp.Value) && resp.Value != ""
	}
	return success(value).save(call.Prop("saveTo"), value), nil
}

// promptFileHandler asks the user to pick a file; file-explorer does the same
// but offers the files found under folder as options.
type promptFileHandler struct {
	kind     schema.NodeType
	explorer bool
}

func (h promptFileHandler) Kind() schema.NodeType { return h.kind }

func (promptFileHandler) Validate(*schema.Node) error { return nil }

func (h promptFileHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	req := schema.PromptRequest{
		Kind:    schema.PromptFile,
		Title:   orDefault(call.Prop("title"), "Choose a file"),
		Message: call.Prop("message"),
		Folder:  call.Prop("folder"),
		Filters: listProp(call.Props, "extensions"),
	}
	if h.explorer {
		files, err := filesOf(call)
		if err != nil {
			return nil, err
		}
		infos, err := files.List(ctx, req.Folder, providers.ListOptions{
			Recursive:  boolProp(call.Props, "recursive", true),
			Extensions: req.Filters,
		})
		if err != nil {
			return nil, err
		}
		for _, fi := range infos {
			req.Options = append(req.Options, fi.Path)
		}
	}

	resp, err := ask(ctx, call, req)
	if err != nil {
		return nil, err
	}
	if resp.Cancelled || resp.Value == "" {
		return userCancelled(call)
	}

	out := success(resp.Value).save(call.Prop("saveTo"), resp.Value)
	if contentVar := call.Prop("saveContentTo"); contentVar != "" {
		files, err := filesOf(call)
		if err != nil {
			return nil, err
		}
		content, err := files.Read(ctx, resp.Value)
		if err != nil {
			return nil, err
		}
		out.save(contentVar, content)
	}
	return out, nil
}

// promptSelectionHandler offers a list of options; multiple allows several.
type promptSelectionHandler struct{}

func (promptSelectionHandler) Kind() schema.NodeType { return schema.NodePromptSelection }

func (promptSelectionHandler) Validate(node *schema.Node) error {
	return requireProps(node, "options")
}

func (promptSelectionHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	multi := boolProp(call.Props, "multiple", false)
	kind := schema.PromptChoice
	if multi {
		kind = schema.PromptMulti
	}
	resp, err := ask(ctx, call, schema.PromptRequest{
		Kind:    kind,
		Title:   call.Prop("title"),
		Message: call.Prop("message"),
		Options: listProp(call.Props, "options"),
		Default: call.Prop("default"),
	})
	if err != nil {
		return nil, err
	}
	if resp.Cancelled {
		return userCancelled(call)
	}

	var value any = resp.Value
	if multi {
		value = toAnySlice(resp.Values)
	}
	return success(value).save(call.Prop("saveTo"), value), nil
}

func toAnySlice(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}
