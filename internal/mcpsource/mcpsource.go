// Package mcpsource adapts github.com/mark3labs/mcp-go's stdio client to
// toolregistry.ToolSource, the "external tools obtained from MCP clients"
// half of the Tool Registry (§4.3). Grounded on hector's
// pkg/tool/mcptoolset/mcptoolset.go connectStdio/callStdio: the same
// Initialize → ListTools → per-call CallTool sequence, trimmed to the one
// stdio transport (hector's sse/streamable-http transports are its own
// httpclient retry/backoff concern, not part of this core).
package mcpsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentcore/agentcore/agenterr"
	"github.com/agentcore/agentcore/toolregistry"
)

// Config configures a stdio-launched MCP server as a tool source.
type Config struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Source lazily connects to an MCP server over stdio and exposes its tools
// as toolregistry.Tool values namespaced under Config.Name.
type Source struct {
	cfg Config

	mu     sync.Mutex
	client *client.Client
}

func New(cfg Config) *Source { return &Source{cfg: cfg} }

func (s *Source) Name() string { return s.cfg.Name }

// Tools connects (on first call), lists the server's tools, and wraps each
// one as a toolregistry.Tool whose Execute issues a CallTool RPC.
func (s *Source) Tools(ctx context.Context) ([]toolregistry.Tool, error) {
	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, agenterr.Stream("mcpsource.Tools", s.cfg.Name, "failed to list tools", err)
	}

	out := make([]toolregistry.Tool, 0, len(resp.Tools))
	for _, mt := range resp.Tools {
		name := toolregistry.Namespace(s.cfg.Name, mt.Name)
		toolName := mt.Name
		out = append(out, toolregistry.Tool{
			Name:        name,
			Description: mt.Description,
			InputSchema: convertSchema(mt.InputSchema),
			Execute: func(ctx context.Context, args map[string]any) (toolregistry.ToolResult, error) {
				req := mcp.CallToolRequest{}
				req.Params.Name = toolName
				req.Params.Arguments = args
				res, err := c.CallTool(ctx, req)
				if err != nil {
					return toolregistry.ToolResult{}, agenterr.Stream("mcpsource.Execute", name, "MCP call failed", err)
				}
				return toolregistry.ToolResult{Value: extractText(res)}, nil
			},
		})
	}
	return out, nil
}

func (s *Source) connect(ctx context.Context) (*client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	c, err := client.NewStdioMCPClient(s.cfg.Command, envPairs(s.cfg.Env), s.cfg.Args...)
	if err != nil {
		return nil, agenterr.Stream("mcpsource.connect", s.cfg.Name, "failed to create MCP client", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, agenterr.Stream("mcpsource.connect", s.cfg.Name, "failed to start MCP client", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentcore", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, agenterr.Stream("mcpsource.connect", s.cfg.Name, "failed to initialize MCP session", err)
	}

	s.client = c
	return c, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func envPairs(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	out := map[string]any{"type": "object"}
	if schema.Properties != nil {
		out["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		req := make([]any, len(schema.Required))
		for i, r := range schema.Required {
			req[i] = r
		}
		out["required"] = req
	}
	return out
}

func extractText(res *mcp.CallToolResult) any {
	if res == nil {
		return nil
	}
	var texts []string
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	if res.IsError {
		return map[string]any{"error": true, "text": texts}
	}
	if len(texts) == 1 {
		return texts[0]
	}
	return texts
}
