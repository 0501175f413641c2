package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPDecodeResult is what a decode function hands to the endpoint. EnrichCtx,
// when set, is applied to the call context first.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// RegisterMCPTool exposes endpoint as an MCP tool. decode turns the raw
// req.Params.Arguments into the endpoint's request value; a nil decode passes
// a nil request. Decode and endpoint failures are reported as tool errors
// (IsError), never as protocol errors. A successful response is returned as a
// single JSON text content.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode func(*mcp.CallToolRequest) (*MCPDecodeResult, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in any
		if decode != nil {
			d, err := decode(req)
			if err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
			if d.EnrichCtx != nil {
				ctx = d.EnrichCtx(ctx)
			}
			in = d.Request
		}

		out, err := endpoint(ctx, in)
		if err != nil {
			return toolError(err), nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
