package providers

import (
	"context"
	"os/exec"
	"runtime"
	"sort"
	"sync"

	"github.com/rendis/stepwise/pkg/schema"
)

// CommandFunc implements one host command.
type CommandFunc func(ctx context.Context, args map[string]string) (any, error)

// CommandRegistry is the default HostCommands provider: an in-process table
// of named commands plus an opener that hands paths to the OS.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string]CommandFunc
	opener   func(ctx context.Context, path string) error
}

// NewCommandRegistry creates an empty registry. A nil opener uses the
// platform's default file opener.
func NewCommandRegistry(opener func(ctx context.Context, path string) error) *CommandRegistry {
	if opener == nil {
		opener = systemOpen
	}
	return &CommandRegistry{commands: make(map[string]CommandFunc), opener: opener}
}

// Register adds a command. Returns CONFLICT on duplicate ids.
func (r *CommandRegistry) Register(id string, fn CommandFunc) error {
	if id == "" || fn == nil {
		return schema.NewError(schema.ErrCodeValidation, "command id and func are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[id]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "command %q already registered", id)
	}
	r.commands[id] = fn
	return nil
}

// IDs returns registered command ids, sorted.
func (r *CommandRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.commands))
	for id := range r.commands {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *CommandRegistry) Invoke(ctx context.Context, commandID string, args map[string]string) (any, error) {
	r.mu.RLock()
	fn, ok := r.commands[commandID]
	r.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "command %q not registered", commandID)
	}
	return fn(ctx, args)
}

func (r *CommandRegistry) Open(ctx context.Context, path string) error {
	return r.opener(ctx, path)
}

func systemOpen(ctx context.Context, path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", path)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", "", path)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return schema.NewErrorf(schema.ErrCodeProvider, "open %q: %v", path, err).WithCause(err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

var _ HostCommands = (*CommandRegistry)(nil)
