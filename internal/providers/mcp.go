package providers

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rendis/stepwise/pkg/schema"
)

// MCPServerConfig describes how to reach one MCP server: either a stdio
// subprocess (Command) or a streamable HTTP endpoint (URL).
type MCPServerConfig struct {
	Command string            `mapstructure:"command" json:"command,omitempty"`
	Args    []string          `mapstructure:"args" json:"args,omitempty"`
	Env     []string          `mapstructure:"env" json:"env,omitempty"`
	URL     string            `mapstructure:"url" json:"url,omitempty"`
	Headers map[string]string `mapstructure:"headers" json:"headers,omitempty"`
}

// MCPClients connects lazily to configured MCP servers and keeps the
// sessions open until Close.
type MCPClients struct {
	mu      sync.Mutex
	servers map[string]MCPServerConfig
	conns   map[string]*client.Client
	version string
	logger  *slog.Logger
}

// NewMCPClients creates an MCP provider over the given servers.
func NewMCPClients(servers map[string]MCPServerConfig, version string, logger *slog.Logger) *MCPClients {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPClients{
		servers: servers,
		conns:   make(map[string]*client.Client),
		version: version,
		logger:  logger,
	}
}

func (m *MCPClients) connect(ctx context.Context, name string) (*client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.conns[name]; ok {
		return c, nil
	}
	cfg, ok := m.servers[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "mcp server %q not configured", name)
	}

	var (
		c   *client.Client
		err error
	)
	switch {
	case cfg.URL != "":
		c, err = client.NewStreamableHttpClient(cfg.URL, transport.WithHTTPHeaders(cfg.Headers))
		if err == nil {
			err = c.Start(ctx)
		}
	case cfg.Command != "":
		// The stdio transport spawns the subprocess on construction.
		c, err = client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "mcp server %q has neither command nor url", name)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeProvider, "mcp server %q: start failed: %v", name, err).WithCause(err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = "2024-11-05"
	initReq.Params.Capabilities = mcp.ClientCapabilities{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "stepwise", Version: m.version}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := c.Initialize(initCtx, initReq); err != nil {
		_ = c.Close()
		return nil, schema.NewErrorf(schema.ErrCodeProvider, "mcp server %q: initialize failed: %v", name, err).WithCause(err)
	}

	m.logger.Debug("mcp server connected", slog.String("server", name))
	m.conns[name] = c
	return c, nil
}

// CallTool invokes tool on server and flattens its text content.
func (m *MCPClients) CallTool(ctx context.Context, server, tool string, args map[string]any) (*ToolResult, error) {
	c, err := m.connect(ctx, server)
	if err != nil {
		return nil, err
	}

	res, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: tool, Arguments: args},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, schema.NewError(schema.ErrCodeCancelled, "mcp call cancelled").WithCause(ctx.Err())
		}
		return nil, schema.NewErrorf(schema.ErrCodeProvider, "mcp %s/%s: %v", server, tool, err).WithCause(err)
	}

	var parts []string
	for _, content := range res.Content {
		switch tc := content.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return &ToolResult{Text: strings.Join(parts, "\n"), IsError: res.IsError}, nil
}

// ListTools returns the tools advertised by server.
func (m *MCPClients) ListTools(ctx context.Context, server string) ([]ToolSpec, error) {
	c, err := m.connect(ctx, server)
	if err != nil {
		return nil, err
	}
	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeProvider, "mcp %s: list tools: %v", server, err).WithCause(err)
	}
	specs := make([]ToolSpec, 0, len(res.Tools))
	for _, t := range res.Tools {
		specs = append(specs, ToolSpec{Name: t.Name, Description: t.Description})
	}
	return specs, nil
}

// Servers returns the configured server names.
func (m *MCPClients) Servers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	return names
}

// Close terminates every open session.
func (m *MCPClients) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, c := range m.conns {
		if err := c.Close(); err != nil {
			m.logger.Warn("mcp close failed", slog.String("server", name), slog.String("error", err.Error()))
		}
		delete(m.conns, name)
	}
	return nil
}

var _ MCP = (*MCPClients)(nil)
