package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"github.com/datalayer/agent-host/internal/hostconfig"
	"github.com/datalayer/agent-host/internal/hosttypes"
)

// createClient constructs and starts an MCP client for cfg's transport kind.
// Grounded directly on the teacher's MCPToolManager.createMCPClient: stdio
// spawns a subprocess with the composed environment, sse/streamable dial an
// HTTP endpoint, inprocess hands the client an in-process server instead of
// a real connection.
func (m *Manager) createClient(ctx context.Context, id string, cfg hosttypes.Provider, composedEnv map[string]string) (client.MCPClient, error) {
	switch cfg.Kind {
	case hosttypes.TransportStdio:
		return m.createStdioClient(ctx, cfg, composedEnv)
	case hosttypes.TransportSSE:
		return m.createSSEClient(ctx, cfg)
	case hosttypes.TransportStreamable, hosttypes.TransportHTTP:
		return m.createStreamableClient(ctx, cfg)
	case hosttypes.TransportInProcess:
		return m.createInProcessClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported transport kind %q for provider %q", cfg.Kind, id)
	}
}

func (m *Manager) createStdioClient(ctx context.Context, cfg hosttypes.Provider, composedEnv map[string]string) (client.MCPClient, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("stdio provider has no command")
	}
	command := hostconfig.Expand(cfg.Command[0], composedEnv, m.logger)
	args := hostconfig.ExpandSlice(cfg.Command[1:], composedEnv, m.logger)
	if len(args) == 0 {
		args = hostconfig.ExpandSlice(cfg.Args, composedEnv, m.logger)
	}

	env := hostconfig.EnvToSlice(composedEnv)
	stdioTransport := transport.NewStdio(command, env, args...)
	stdioClient := client.NewClient(stdioTransport)

	if err := stdioTransport.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting stdio transport: %w", err)
	}
	// The subprocess needs a moment to bind its stdio pipes before the
	// initialize handshake; mirrors the teacher's own stdio start sequence.
	time.Sleep(100 * time.Millisecond)
	return stdioClient, nil
}

func (m *Manager) createSSEClient(ctx context.Context, cfg hosttypes.Provider) (client.MCPClient, error) {
	sseClient, err := client.NewSSEMCPClient(cfg.URL)
	if err != nil {
		return nil, err
	}
	if err := sseClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting SSE client: %w", err)
	}
	return sseClient, nil
}

func (m *Manager) createStreamableClient(ctx context.Context, cfg hosttypes.Provider) (client.MCPClient, error) {
	streamableClient, err := client.NewStreamableHttpClient(cfg.URL)
	if err != nil {
		return nil, err
	}
	if err := streamableClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting streamable HTTP client: %w", err)
	}
	return streamableClient, nil
}

func (m *Manager) createInProcessClient(cfg hosttypes.Provider) (client.MCPClient, error) {
	server, err := m.builtinRegistry.CreateServer(cfg.ID, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("creating builtin server %q: %w", cfg.ID, err)
	}
	return client.NewInProcessClient(server)
}
