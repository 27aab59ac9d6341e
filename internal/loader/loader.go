// Package loader reads workflow files. YAML and JSON documents are
// normalized to one canonical JSON form so validation reports the same
// paths for both.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rendis/stepwise/pkg/schema"
)

// Document is a parsed workflow file.
type Document struct {
	Path     string
	Raw      []byte // canonical JSON
	Workflow *schema.Workflow
}

// Extensions tried, in order, when a reference has none.
var Extensions = []string{".yaml", ".yml", ".json"}

// LoadFile reads and parses the workflow at path. A workflow without a
// name is named after the file.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow file %s not found", path).WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "read workflow %s: %v", path, err).WithCause(err)
	}
	doc, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	doc.Path = path
	if doc.Workflow.Name == "" {
		doc.Workflow.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// Parse decodes a workflow document. ext selects JSON for ".json" and YAML
// otherwise.
func Parse(data []byte, ext string) (*Document, error) {
	var tree any
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&tree); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse workflow JSON: %v", err).WithCause(err)
		}
	} else if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse workflow YAML: %v", err).WithCause(err)
	}
	if tree == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow document is empty")
	}

	normalizeProperties(tree)
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "encode workflow: %v", err).WithCause(err)
	}

	wf := &schema.Workflow{}
	if err := json.Unmarshal(raw, wf); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode workflow: %v", err).WithCause(err)
	}
	return &Document{Raw: raw, Workflow: wf}, nil
}

// normalizeProperties turns scalar property values into strings, so
// `value: 3` in YAML means the same as `value: "3"`. Structured values are
// kept as JSON text.
func normalizeProperties(tree any) {
	root, ok := tree.(map[string]any)
	if !ok {
		return
	}
	nodes, ok := root["nodes"].([]any)
	if !ok {
		return
	}
	for _, n := range nodes {
		node, ok := n.(map[string]any)
		if !ok {
			continue
		}
		props, ok := node["properties"].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range props {
			props[k] = propertyString(v)
		}
	}
}

func propertyString(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return v
		}
		return string(b)
	}
}

// FileResolver resolves workflow node references to files under a root
// directory. Parsed workflows are cached by absolute path and reloaded when
// the file's modification time or size changes.
type FileResolver struct {
	root string

	mu    sync.Mutex
	cache map[string]cachedWorkflow
}

type cachedWorkflow struct {
	wf      *schema.Workflow
	modTime time.Time
	size    int64
}

// NewFileResolver creates a resolver rooted at dir.
func NewFileResolver(dir string) *FileResolver {
	return &FileResolver{root: dir, cache: make(map[string]cachedWorkflow)}
}

// Resolve finds ref relative to the root, trying Extensions when ref has
// none, and loads it.
func (r *FileResolver) Resolve(ctx context.Context, ref string) (*schema.Workflow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow reference is empty")
	}

	path, err := r.locate(ref)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow file %s: %v", path, err).WithCause(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cache[path]; ok && c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
		return c.wf, nil
	}
	doc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	r.cache[path] = cachedWorkflow{wf: doc.Workflow, modTime: info.ModTime(), size: info.Size()}
	return doc.Workflow, nil
}

// Path returns the file ref resolves to.
func (r *FileResolver) Path(ref string) (string, error) {
	return r.locate(ref)
}

func (r *FileResolver) locate(ref string) (string, error) {
	base := ref
	if !filepath.IsAbs(base) {
		base = filepath.Join(r.root, ref)
	}
	candidates := []string{base}
	if filepath.Ext(base) == "" {
		candidates = candidates[:0]
		for _, ext := range Extensions {
			candidates = append(candidates, base+ext)
		}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(c)
			if err != nil {
				return "", fmt.Errorf("resolve %s: %w", c, err)
			}
			return abs, nil
		}
	}
	return "", schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found under %s", ref, r.root)
}
