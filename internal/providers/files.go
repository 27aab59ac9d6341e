package providers

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rendis/stepwise/pkg/schema"
)

const defaultMaxReadSize = 50 * 1024 * 1024 // 50MB

var textExtensions = []string{".md", ".txt", ".json", ".yaml", ".yml", ".csv"}

// LocalFS is a Files provider rooted at a directory. Relative paths resolve
// against the root; paths escaping it are rejected.
type LocalFS struct {
	root        string
	maxReadSize int64
}

// NewLocalFS creates a LocalFS rooted at root.
func NewLocalFS(root string) (*LocalFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid root %q: %v", root, err)
	}
	return &LocalFS{root: abs, maxReadSize: defaultMaxReadSize}, nil
}

// Root returns the absolute root directory.
func (l *LocalFS) Root() string { return l.root }

func (l *LocalFS) resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(l.root, path)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "path %q escapes root", path)
	}
	return full, nil
}

func (l *LocalFS) rel(full string) string {
	r, err := filepath.Rel(l.root, full)
	if err != nil {
		return full
	}
	return filepath.ToSlash(r)
}

func (l *LocalFS) Read(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := l.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", fsError("read", path, err)
	}
	if info.IsDir() {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "%q is a directory", path)
	}
	if info.Size() > l.maxReadSize {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "%q exceeds max read size of %d bytes", path, l.maxReadSize)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fsError("read", path, err)
	}
	return string(data), nil
}

func (l *LocalFS) Write(ctx context.Context, path, content string, mode WriteMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fsError("mkdir", path, err)
	}

	flags := os.O_WRONLY | os.O_CREATE
	switch mode {
	case WriteAppend:
		flags |= os.O_APPEND
	case WriteCreate:
		flags |= os.O_EXCL
	default:
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return schema.NewErrorf(schema.ErrCodeConflict, "%q already exists", path).WithCause(err)
		}
		return fsError("write", path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fsError("write", path, err)
	}
	if err := f.Close(); err != nil {
		return fsError("write", path, err)
	}
	return nil
}

func (l *LocalFS) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if full == l.root {
		return schema.NewError(schema.ErrCodeValidation, "refusing to delete root")
	}
	if err := os.Remove(full); err != nil {
		return fsError("delete", path, err)
	}
	return nil
}

func (l *LocalFS) Exists(ctx context.Context, path string) (bool, error) {
	full, err := l.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fsError("stat", path, err)
	}
	return true, nil
}

// List returns files (or folders when opts.Dirs) under folder, sorted by path.
func (l *LocalFS) List(ctx context.Context, folder string, opts ListOptions) ([]FileInfo, error) {
	base, err := l.resolve(folder)
	if err != nil {
		return nil, err
	}

	var out []FileInfo
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == base {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		include := d.IsDir() == opts.Dirs
		if include && !d.IsDir() && len(opts.Extensions) > 0 {
			include = hasExtension(d.Name(), opts.Extensions)
		}
		if include {
			info, err := d.Info()
			if err != nil {
				return err
			}
			out = append(out, FileInfo{
				Path:    l.rel(p),
				Name:    d.Name(),
				Size:    info.Size(),
				IsDir:   d.IsDir(),
				ModTime: info.ModTime().UTC(),
			})
		}
		if d.IsDir() && !opts.Recursive {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fsError("list", folder, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Search matches query case-insensitively against file names and the lines
// of text files under folder. One hit is returned per file.
func (l *LocalFS) Search(ctx context.Context, folder, query string) ([]SearchHit, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty search query")
	}
	files, err := l.List(ctx, folder, ListOptions{Recursive: true, Extensions: textExtensions})
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	for _, f := range files {
		if strings.Contains(strings.ToLower(f.Name), q) {
			hits = append(hits, SearchHit{Path: f.Path})
			continue
		}
		hit, err := l.searchFile(f.Path, q)
		if err != nil {
			return nil, err
		}
		if hit != nil {
			hits = append(hits, *hit)
		}
	}
	return hits, nil
}

func (l *LocalFS) searchFile(path, q string) (*SearchHit, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fsError("search", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := sc.Text()
		if strings.Contains(strings.ToLower(text), q) {
			return &SearchHit{Path: path, Line: line, Snippet: strings.TrimSpace(text)}, nil
		}
	}
	return nil, nil
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if ext == e {
			return true
		}
	}
	return false
}

func fsError(op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q: not found", op, path).WithCause(err)
	}
	return schema.NewErrorf(schema.ErrCodeProvider, "%s %q: %v", op, path, err).WithCause(err)
}

var _ Files = (*LocalFS)(nil)
