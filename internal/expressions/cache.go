package expressions

import "sync"

// programCache compiles each distinct source text once and shares the
// result between goroutines.
type programCache[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
	compile func(src string) (T, error)
}

func newProgramCache[T any](compile func(src string) (T, error)) *programCache[T] {
	return &programCache[T]{entries: make(map[string]T), compile: compile}
}

func (c *programCache[T]) get(src string) (T, error) {
	c.mu.RLock()
	p, ok := c.entries[src]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.entries[src]; ok {
		return p, nil
	}
	p, err := c.compile(src)
	if err != nil {
		return p, err
	}
	c.entries[src] = p
	return p, nil
}

func (c *programCache[T]) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
