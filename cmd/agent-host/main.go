// Command agent-host is the process composition root: it wires every
// component in §2's dependency order (catalog → providers → sandbox →
// usage/identity → agent factory → registry → transports/management) into
// one long-lived HTTP server and starts it. Argument parsing here is
// deliberately thin — the CLI front-end proper is out of scope per §1 — but
// a real binary needs *some* entry point, so this follows the teacher's
// cmd/root.go convention of a cobra root command reading flags/env into a
// startup config before handing off to the rest of the program.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/datalayer/agent-host/internal/agent"
	"github.com/datalayer/agent-host/internal/catalog"
	"github.com/datalayer/agent-host/internal/hostconfig"
	"github.com/datalayer/agent-host/internal/hostlog"
	"github.com/datalayer/agent-host/internal/hosttypes"
	"github.com/datalayer/agent-host/internal/management"
	"github.com/datalayer/agent-host/internal/providers"
	"github.com/datalayer/agent-host/internal/registry"
	"github.com/datalayer/agent-host/internal/sandbox"
	"github.com/datalayer/agent-host/internal/skills"
	"github.com/datalayer/agent-host/internal/toolproxy"
	"github.com/datalayer/agent-host/internal/transport"
	"github.com/datalayer/agent-host/internal/usage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	addrFlag       string
	debugFlag      bool
	configFileFlag string
	a2aVersionFlag string
	workspaceFlag  string
)

// newRootCmd wires flags through viper so every operational setting (as
// opposed to the §6 HOST_* business env vars, read directly where they're
// used) resolves flag > env > default, the same layering the teacher's own
// internal/config applied to its CLI flags.
func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "agent-host",
		Short: "Run the agent runtime host",
		Long: "agent-host materializes configured agents as live, multi-protocol " +
			"endpoints, supervises the provider subprocesses they depend on, and " +
			"exposes a consistent usage surface across them.",
		RunE: func(c *cobra.Command, args []string) error {
			addrFlag = v.GetString("addr")
			debugFlag = v.GetBool("debug")
			configFileFlag = v.GetString("mcp-config")
			a2aVersionFlag = v.GetString("a2a-version")
			workspaceFlag = v.GetString("workspace")
			return runHost(c, args)
		},
	}
	cmd.Flags().String("addr", ":8765", "address to listen on")
	cmd.Flags().Bool("debug", false, "enable debug logging")
	cmd.Flags().String("mcp-config", hostconfig.DefaultPath(), "path to the user-configured provider file")
	cmd.Flags().String("a2a-version", "1.0.0", "version string advertised by the A2A agent card")
	cmd.Flags().String("workspace", ".", "code-execution workspace directory")

	v.SetEnvPrefix("HOST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(cmd.Flags())
	return cmd
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envBool(name string) bool {
	v, _ := strconv.ParseBool(os.Getenv(name))
	return v
}

func envList(name string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// host bundles every process-wide manager, built once in runHost and shared
// by the management API and all four transports.
type host struct {
	logger          zerolog.Logger
	catalog         *catalog.Catalog
	configuredFile  map[string]hosttypes.Provider
	providerManager *providers.Manager
	sandboxManager  *sandbox.Manager
	usageTracker    *usage.Tracker
	agentRegistry   *registry.Registry
	factory         *agent.Factory
	toolProxy       *toolproxy.Proxy
}

func runHost(cmd *cobra.Command, _ []string) error {
	logger := hostlog.New(debugFlag)

	h := &host{
		logger:          logger,
		catalog:         catalog.New(),
		providerManager: providers.NewManager(&logger),
		sandboxManager:  sandbox.NewManager(&logger),
		usageTracker:    usage.New(),
		agentRegistry:   registry.New(),
	}
	catalog.RegisterDefaults(h.catalog)

	if merged, err := hostconfig.LoadAndMerge(configFileFlag, h.catalog, logger); err != nil {
		logger.Warn().Err(err).Str("path", configFileFlag).Msg("agent-host: failed to read configured-provider file for the management API's view")
	} else {
		h.configuredFile = merged
	}

	toolProxyURL := os.Getenv("HOST_TOOL_PROXY_URL")
	if toolProxyURL == "" {
		toolProxyURL = "http://localhost" + addrFlag + "/tool"
	}
	if remote := os.Getenv("HOST_REMOTE_SANDBOX"); remote != "" {
		h.sandboxManager.Configure(context.Background(), hosttypes.SandboxConfig{
			Variant:      hosttypes.SandboxRemoteNotebook,
			ServerURL:    remote,
			ToolProxyURL: toolProxyURL,
		})
	}

	allSkills, err := skills.LoadSkills(workspaceFlag)
	if err != nil {
		logger.Warn().Err(err).Msg("agent-host: failed to load skills, continuing with none")
	}

	h.toolProxy = toolproxy.New(h.providerManager, &logger)
	h.factory = &agent.Factory{
		ProviderManager:    h.providerManager,
		SandboxManager:     h.sandboxManager,
		AllSkills:          allSkills,
		WorkspaceDir:       workspaceFlag,
		GeneratedDir:       envOr("HOST_GENERATED_FOLDER", workspaceFlag+"/.generated"),
		SkillsDir:          envOr("HOST_SKILLS_FOLDER", workspaceFlag+"/skills"),
		ToolProxyURL:       toolProxyURL,
		ToolProxyRegistrar: h.toolProxy.RegisterSkillCaller,
		Logger:             logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !envBool("HOST_NO_CONFIG_PROVIDERS") {
		go func() {
			if err := h.providerManager.StartFromConfigFile(ctx, configFileFlag, h.catalog); err != nil {
				logger.Warn().Err(err).Msg("agent-host: configured-provider startup failed")
			}
		}()
	} else {
		logger.Info().Msg("agent-host: HOST_NO_CONFIG_PROVIDERS set, skipping configured-provider startup")
	}

	if os.Getenv("HOST_DEFAULT_AGENT") != "" {
		if err := h.createDefaultAgent(ctx); err != nil {
			logger.Error().Err(err).Msg("agent-host: failed to create default agent")
		}
	}

	srv := &http.Server{
		Addr:    addrFlag,
		Handler: h.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addrFlag).Msg("agent-host: listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info().Msg("agent-host: shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	for _, err := range h.agentRegistry.Shutdown() {
		logger.Warn().Err(err).Msg("agent-host: error stopping agent during shutdown")
	}
	h.providerManager.Shutdown(shutdownCtx)
	_ = h.sandboxManager.Stop(shutdownCtx)
	return nil
}

// createDefaultAgent builds the single agent the HOST_DEFAULT_AGENT /
// HOST_AGENT_NAME / HOST_CODE_EXECUTION / HOST_SKILLS / HOST_PROVIDERS /
// HOST_PROTOCOL env vars describe, per §6. HOST_PROTOCOL is recorded for
// operators (all four transports are always mounted; it names which one a
// CLI launch would print connection instructions for) rather than
// restricting which transports serve the agent.
func (h *host) createDefaultAgent(ctx context.Context) error {
	name := envOr("HOST_AGENT_NAME", "default")
	providerIDs := envList("HOST_PROVIDERS")

	var selection []hosttypes.ProviderSelection
	if !envBool("HOST_NO_CATALOG_PROVIDERS") {
		for _, id := range providerIDs {
			cfg, ok := h.catalog.Get(id)
			if !ok {
				h.logger.Warn().Str("provider_id", id).Msg("agent-host: HOST_PROVIDERS entry not in catalog, skipping")
				continue
			}
			if _, err := h.providerManager.Start(ctx, id, hosttypes.OriginPredefined, cfg, nil); err != nil {
				h.logger.Warn().Err(err).Str("provider_id", id).Msg("agent-host: default-agent provider failed to start")
				continue
			}
			selection = append(selection, hosttypes.ProviderSelection{ID: id, Origin: hosttypes.OriginPredefined})
		}
	} else {
		h.logger.Info().Msg("agent-host: HOST_NO_CATALOG_PROVIDERS set, skipping predefined provider startup for default agent")
	}

	skillIDs := envList("HOST_SKILLS")
	spec := hosttypes.AgentSpec{
		ID:        "default",
		Name:      name,
		Providers: selection,
		SkillIDs:  skillIDs,
		Model:     envOr("HOST_MODEL", "anthropic/claude-sonnet-4-5"),
	}
	opts := agent.BuildOptions{
		CodeExecutionEnabled: envBool("HOST_CODE_EXECUTION"),
		SkillsEnabled:        len(skillIDs) > 0,
		SkillIDs:             skillIDs,
		ProviderSelection:    selection,
	}

	if _, err := h.agentRegistry.Create(ctx, h.factory, spec, opts); err != nil {
		return err
	}
	if protocol := os.Getenv("HOST_PROTOCOL"); protocol != "" {
		h.logger.Info().Str("protocol", protocol).Str("agent_id", spec.ID).Msg("agent-host: default agent ready")
	}
	return nil
}

// routes mounts C10's four transports, C11's tool-call proxy, and C12's
// management surface onto one mux, per §6.
func (h *host) routes() http.Handler {
	deps := transport.Deps{Registry: h.agentRegistry, Usage: h.usageTracker}

	mgmt := management.New(management.Server{
		Catalog:         h.catalog,
		ConfiguredFile:  h.configuredFile,
		ProviderManager: h.providerManager,
		SandboxManager:  h.sandboxManager,
		AgentRegistry:   h.agentRegistry,
		Factory:         h.factory,
		Logger:          h.logger,
	})

	ws := transport.NewWebSocketHandler(deps, &h.logger)
	ui := transport.NewUIHandler(deps, &h.logger)
	chatHandler := transport.NewChatHandler(deps, &h.logger)
	a2a := transport.NewA2AHandler(deps, "http://"+addrFlag, a2aVersionFlag, &h.logger)

	mux := http.NewServeMux()
	mux.Handle("/", mgmt.Handler())
	mux.Handle("/tool/", h.toolProxy.Handler())
	mux.Handle("/ws", ws)
	mux.Handle("POST /ui/{id}/run", ui)
	mux.Handle("POST /chat/{id}/run", chatHandler)
	mux.Handle("GET /a2a/{id}", a2a)
	mux.Handle("POST /a2a/{id}", a2a)
	return mux
}
