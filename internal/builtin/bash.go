package builtin

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func (r *Registry) registerBashServer() {
	r.servers["bash"] = func(options map[string]any) (*server.MCPServer, error) {
		s := server.NewMCPServer("bash", "1.0.0")

		s.AddTool(
			mcp.NewTool("run",
				mcp.WithDescription("Runs a shell command and returns its stdout; on failure, returns its stderr and the error."),
				mcp.WithString("command", mcp.Required(), mcp.Description("the command to execute")),
			),
			handleBashRun,
		)

		return s, nil
	}
}

func handleBashRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := request.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return mcp.NewToolResultError(stderr.String() + "\n" + err.Error()), nil
	}

	return mcp.NewToolResultText(stdout.String()), nil
}
