package nodes

import (
	"context"
	"path"
	"strings"

	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/pkg/schema"
)

// notePath appends the markdown extension when the authored path has none.
func notePath(p string) string {
	if path.Ext(p) == "" {
		return p + ".md"
	}
	return p
}

func filesOf(call *Call) (providers.Files, error) {
	if call.Providers.Files == nil {
		return nil, providers.Missing("files")
	}
	return call.Providers.Files, nil
}

// writeHandler serves note (markdown, extension implied) and file-save.
// With confirm set the write waits for the user; a declined write is skipped.
type writeHandler struct {
	kind     schema.NodeType
	markdown bool
}

func (h writeHandler) Kind() schema.NodeType { return h.kind }

func (writeHandler) Validate(node *schema.Node) error {
	if err := requireProps(node, "path"); err != nil {
		return err
	}
	switch providers.WriteMode(node.Prop("mode")) {
	case "", providers.WriteOverwrite, providers.WriteAppend, providers.WriteCreate:
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "%s node %q: mode must be overwrite, append or create",
		node.Type, node.ID).WithNode(node.ID)
}

func (h writeHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	files, err := filesOf(call)
	if err != nil {
		return nil, err
	}
	target := call.Prop("path")
	if h.markdown {
		target = notePath(target)
	}
	content := call.Prop("content")
	mode := providers.WriteMode(orDefault(call.Prop("mode"), string(providers.WriteOverwrite)))

	if boolProp(call.Props, "confirm", false) {
		resp, err := ask(ctx, call, schema.PromptRequest{
			Kind:    schema.PromptWriteFile,
			Title:   orDefault(call.Prop("title"), "Confirm write"),
			Message: "Write " + string(mode) + " to " + target + "?",
			Preview: content,
		})
		if err != nil {
			return nil, err
		}
		if resp.Cancelled || isNo(resp.Value) {
			return skipped("write declined by user"), nil
		}
	}

	if err := files.Write(ctx, target, content, mode); err != nil {
		return nil, err
	}
	return success(target).save(call.Prop("saveTo"), target), nil
}

func isNo(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "no", "n", "0":
		return true
	}
	return false
}

type noteReadHandler struct{}

func (noteReadHandler) Kind() schema.NodeType { return schema.NodeNoteRead }

func (noteReadHandler) Validate(node *schema.Node) error {
	return requireProps(node, "path")
}

func (noteReadHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	files, err := filesOf(call)
	if err != nil {
		return nil, err
	}
	content, err := files.Read(ctx, notePath(call.Prop("path")))
	if err != nil {
		return nil, err
	}
	return success(content).save(call.Prop("saveTo"), content), nil
}

type noteSearchHandler struct{}

func (noteSearchHandler) Kind() schema.NodeType { return schema.NodeNoteSearch }

func (noteSearchHandler) Validate(node *schema.Node) error {
	return requireProps(node, "query")
}

func (noteSearchHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	files, err := filesOf(call)
	if err != nil {
		return nil, err
	}
	hits, err := files.Search(ctx, call.Prop("folder"), call.Prop("query"))
	if err != nil {
		return nil, err
	}
	paths := make([]any, 0, len(hits))
	for _, h := range hits {
		paths = append(paths, h.Path)
	}
	out := success(hits).save(call.Prop("saveTo"), paths)
	out.save(call.Prop("saveCountTo"), len(hits))
	return out, nil
}

// listHandler serves note-list (files) and folder-list (folders).
type listHandler struct {
	kind schema.NodeType
	dirs bool
}

func (h listHandler) Kind() schema.NodeType { return h.kind }

func (listHandler) Validate(*schema.Node) error { return nil }

func (h listHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	files, err := filesOf(call)
	if err != nil {
		return nil, err
	}
	opts := providers.ListOptions{
		Recursive:  boolProp(call.Props, "recursive", false),
		Dirs:       h.dirs,
		Extensions: listProp(call.Props, "extensions"),
	}
	if !h.dirs && len(opts.Extensions) == 0 {
		opts.Extensions = []string{"md"}
	}
	infos, err := files.List(ctx, call.Prop("folder"), opts)
	if err != nil {
		return nil, err
	}
	paths := make([]any, 0, len(infos))
	for _, fi := range infos {
		paths = append(paths, fi.Path)
	}
	return success(paths).save(call.Prop("saveTo"), paths), nil
}

type openHandler struct{}

func (openHandler) Kind() schema.NodeType { return schema.NodeOpen }

func (openHandler) Validate(node *schema.Node) error {
	return requireProps(node, "path")
}

func (openHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	if call.Providers.Host == nil {
		return nil, providers.Missing("host")
	}
	target := call.Prop("path")
	if err := call.Providers.Host.Open(ctx, target); err != nil {
		return nil, err
	}
	return success(target), nil
}
