package projectstate

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/famousjsons/kit"
)

// RegisterMCP registers the projectstate tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerGetStateTool(srv)
	s.registerUpdateStateTool(srv)
	s.registerRefreshLogTool(srv)
}

func inputSchema(properties map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

func decodeEmpty(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{Request: struct{}{}, EnrichCtx: mcpTransport}, nil
}

func mcpTransport(ctx context.Context) context.Context {
	return kit.WithTransport(ctx, "mcp")
}

func (s *Service) registerGetStateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "famousjsons_get_state",
		Description: "Return the cached mint state: minted token IDs, current price, blocks until the next discount and until free, with human-readable countdowns.",
		InputSchema: inputSchema(map[string]any{}),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		st, err := s.updater.Current(ctx)
		if err != nil {
			return nil, err
		}
		return st.Summarize(), nil
	}
	kit.RegisterMCPTool(srv, tool, kit.Logged(s.logger, tool.Name)(endpoint), decodeEmpty)
}

func (s *Service) registerUpdateStateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "famousjsons_update_state",
		Description: "Recompute the mint state from the chain now and return it.",
		InputSchema: inputSchema(map[string]any{}),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		st, err := s.updater.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		return st.Summarize(), nil
	}
	kit.RegisterMCPTool(srv, tool, kit.Logged(s.logger, tool.Name)(endpoint), decodeEmpty)
}

type refreshLogRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Service) registerRefreshLogTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "famousjsons_refresh_log",
		Description: "List recent state refresh attempts, newest first, with trigger, outcome and duration.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max rows (default 20)"},
		}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*refreshLogRequest)
		return s.RecentRefreshes(ctx, r.Limit)
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r refreshLogRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r, EnrichCtx: mcpTransport}, nil
	}
	kit.RegisterMCPTool(srv, tool, kit.Logged(s.logger, tool.Name)(endpoint), decode)
}
