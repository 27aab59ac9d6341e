package providers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// KeywordIndex is the default RAGIndex: paragraphs of text files are indexed
// by lowercase term and ranked by the fraction of query terms they contain.
type KeywordIndex struct {
	files Files

	mu     sync.RWMutex
	chunks []indexedChunk
}

type indexedChunk struct {
	path  string
	text  string
	terms map[string]struct{}
}

// NewKeywordIndex creates an index that reads documents through files.
func NewKeywordIndex(files Files) *KeywordIndex {
	return &KeywordIndex{files: files}
}

// Sync rebuilds the index from the text files under folder and returns the
// number of indexed documents.
func (k *KeywordIndex) Sync(ctx context.Context, folder string) (int, error) {
	listed, err := k.files.List(ctx, folder, ListOptions{Recursive: true, Extensions: textExtensions})
	if err != nil {
		return 0, err
	}

	var chunks []indexedChunk
	for _, f := range listed {
		content, err := k.files.Read(ctx, f.Path)
		if err != nil {
			return 0, err
		}
		for _, para := range strings.Split(content, "\n\n") {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			chunks = append(chunks, indexedChunk{path: f.Path, text: para, terms: termSet(para)})
		}
	}

	k.mu.Lock()
	k.chunks = chunks
	k.mu.Unlock()
	return len(listed), nil
}

// Query returns up to limit chunks sharing at least one term with query.
func (k *KeywordIndex) Query(ctx context.Context, query string, limit int) ([]Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := termSet(query)
	if len(q) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	var out []Snippet
	for _, c := range k.chunks {
		matched := 0
		for term := range q {
			if _, ok := c.terms[term]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		out = append(out, Snippet{Path: c.path, Text: c.text, Score: float64(matched) / float64(len(q))})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func termSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(f) > 2 {
			set[f] = struct{}{}
		}
	}
	return set
}

var _ RAGIndex = (*KeywordIndex)(nil)
