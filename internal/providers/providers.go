// Package providers defines the capability interfaces a workflow run calls
// out to, together with default implementations for a local process.
package providers

import (
	"context"
	"time"

	"github.com/rendis/stepwise/pkg/schema"
)

// LLM invokes a generative model.
type LLM interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is a single-turn model call.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Context      []string
	Temperature  *float64
	MaxTokens    int
	Tools        []ToolSpec
}

// CompletionResponse carries the model's text and, when produced, an image
// as a URL or data URI.
type CompletionResponse struct {
	Text         string
	Image        string
	Model        string
	FinishReason string
	ToolCalls    []ToolCall
}

// ToolSpec describes a callable tool exposed to a model or served over MCP.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is a tool invocation requested by a model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// HTTP performs a single request.
type HTTP interface {
	Do(ctx context.Context, req HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest is a resolved http node call.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

// HTTPResponse is returned for every completed exchange, including 4xx/5xx.
type HTTPResponse struct {
	StatusCode  int
	Headers     map[string]string
	Body        []byte
	ContentType string
	Duration    time.Duration
}

// WriteMode controls how Files.Write treats an existing file.
type WriteMode string

const (
	WriteOverwrite WriteMode = "overwrite"
	WriteAppend    WriteMode = "append"
	WriteCreate    WriteMode = "create"
)

// FileInfo describes a listed file or folder.
type FileInfo struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	IsDir   bool      `json:"isDir"`
	ModTime time.Time `json:"modTime"`
}

// ListOptions filters Files.List.
type ListOptions struct {
	Recursive  bool
	Dirs       bool
	Extensions []string
}

// SearchHit is one matching file from Files.Search.
type SearchHit struct {
	Path    string `json:"path"`
	Line    int    `json:"line,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Files reads and writes host-managed documents.
type Files interface {
	Read(ctx context.Context, path string) (string, error)
	Write(ctx context.Context, path, content string, mode WriteMode) error
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, folder string, opts ListOptions) ([]FileInfo, error)
	Search(ctx context.Context, folder, query string) ([]SearchHit, error)
}

// Prompter resolves an interactive request. A user dismissal is reported as
// PromptResponse.Cancelled, not as an error; errors mean the prompt itself
// could not be delivered or the run was cancelled while waiting.
type Prompter interface {
	Prompt(ctx context.Context, req schema.PromptRequest) (schema.PromptResponse, error)
}

// WorkflowResolver loads the workflow referenced by a workflow node.
type WorkflowResolver interface {
	Resolve(ctx context.Context, ref string) (*schema.Workflow, error)
}

// HostCommands invokes host application commands by id.
type HostCommands interface {
	Invoke(ctx context.Context, commandID string, args map[string]string) (any, error)
	Open(ctx context.Context, path string) error
}

// Snippet is a retrieved chunk of indexed text.
type Snippet struct {
	Path  string  `json:"path"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// RAGIndex keeps a retrieval index over a folder of documents.
type RAGIndex interface {
	Sync(ctx context.Context, folder string) (int, error)
	Query(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// ToolResult is the outcome of an MCP tool call.
type ToolResult struct {
	Text    string `json:"text"`
	IsError bool   `json:"isError,omitempty"`
}

// MCP calls tools on named MCP servers.
type MCP interface {
	CallTool(ctx context.Context, server, tool string, args map[string]any) (*ToolResult, error)
	ListTools(ctx context.Context, server string) ([]ToolSpec, error)
}

// Bundle groups the providers handed to a run. Nil members make the
// corresponding node kinds fail with PROVIDER_ERROR.
type Bundle struct {
	LLM       LLM
	HTTP      HTTP
	Files     Files
	Prompter  Prompter
	Workflows WorkflowResolver
	Host      HostCommands
	RAG       RAGIndex
	MCP       MCP
}

// Missing returns the error reported when a node needs an absent provider.
func Missing(name string) error {
	return schema.NewErrorf(schema.ErrCodeProvider, "no %s provider configured", name)
}
