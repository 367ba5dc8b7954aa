package builtin

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func (r *Registry) registerFetchServer() {
	r.servers["fetch"] = func(options map[string]any) (*server.MCPServer, error) {
		s := server.NewMCPServer("fetch", "1.0.0")

		s.AddTool(
			mcp.NewTool("fetch",
				mcp.WithDescription("Fetches a URL over HTTP GET and returns the response body as text."),
				mcp.WithString("url", mcp.Required(), mcp.Description("the URL to fetch")),
			),
			handleFetch,
		)

		return s, nil
	}
}

func handleFetch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if resp.StatusCode >= 300 {
		return mcp.NewToolResultError(resp.Status + ": " + string(body)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}
