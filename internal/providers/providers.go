// Package providers implements C4, the provider lifecycle manager: starting
// and stopping MCP server subprocesses/endpoints, retrying transient startup
// failures, discovering their tools, and gating the rest of the host behind
// a one-shot initialization barrier. Grounded on the teacher's
// internal/tools/mcp.go (MCPToolManager) — connection creation per transport
// kind, tool-name prefixing, and the list_tools discovery handshake all
// follow its shape — generalized to the two-origin storage, retry/backoff,
// and sticky-failure semantics this host's component design calls for.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/datalayer/agent-host/internal/builtin"
	"github.com/datalayer/agent-host/internal/hostconfig"
	"github.com/datalayer/agent-host/internal/hosterrors"
	"github.com/datalayer/agent-host/internal/hostlog"
	"github.com/datalayer/agent-host/internal/hosttypes"
)

const (
	// MaxAttempts bounds the startup retry loop, per §4.1 step 3.
	MaxAttempts = 3
	// StartupTimeout bounds one overall startup attempt.
	StartupTimeout = 5 * time.Minute
	// HandshakeTimeout bounds the MCP initialize handshake within an attempt.
	HandshakeTimeout = 3 * time.Minute
)

// errBrokenResource marks a transport failure during the handshake as
// retryable, mirroring the source's BrokenResource exception.
var errBrokenResource = errors.New("provider transport broken during handshake")

// ProviderInstance is a provider that is currently running: its static
// description plus the live client handle used to call its tools.
type ProviderInstance struct {
	Provider   hosttypes.Provider
	Origin     hosttypes.Origin
	Client     client.MCPClient
	ToolPrefix string
	StartedAt  time.Time
}

// Manager owns every running provider instance across both origins, the
// sticky failure registry, and the one-shot initialization barrier.
// Predefined and configured storages are independent maps so an id can be
// running in both origins simultaneously; unscoped lookups prefer the
// predefined origin on collision per §4's storage note.
type Manager struct {
	mu         sync.Mutex
	predefined map[string]*ProviderInstance
	configured map[string]*ProviderInstance
	failures   map[string]error // keyed by "<origin>:<id>"

	group singleflight.Group

	builtinRegistry *builtin.Registry
	logger          zerolog.Logger

	initStarted bool
	initDone    chan struct{}
}

// NewManager returns an empty Manager.
func NewManager(logger *zerolog.Logger) *Manager {
	return &Manager{
		predefined:      make(map[string]*ProviderInstance),
		configured:      make(map[string]*ProviderInstance),
		failures:        make(map[string]error),
		builtinRegistry: builtin.NewRegistry(),
		logger:          hostlog.Or(logger),
		initDone:        make(chan struct{}),
	}
}

func storageKey(origin hosttypes.Origin, id string) string {
	return string(origin) + ":" + id
}

func (m *Manager) storage(origin hosttypes.Origin) map[string]*ProviderInstance {
	if origin == hosttypes.OriginConfigured {
		return m.configured
	}
	return m.predefined
}

// Get returns the running instance for (id, origin) if it exists.
func (m *Manager) Get(id string, origin hosttypes.Origin) (*ProviderInstance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.storage(origin)[id]
	return inst, ok
}

// GetUnscoped looks up id without an origin, preferring the predefined
// storage on collision, per §4's storage note.
func (m *Manager) GetUnscoped(id string) (*ProviderInstance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.predefined[id]; ok {
		return inst, true
	}
	inst, ok := m.configured[id]
	return inst, ok
}

// List returns every currently running instance across both origins.
func (m *Manager) List() []*ProviderInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ProviderInstance, 0, len(m.predefined)+len(m.configured))
	for _, inst := range m.predefined {
		out = append(out, inst)
	}
	for _, inst := range m.configured {
		out = append(out, inst)
	}
	return out
}

// FailureFor returns the sticky failure recorded for (id, origin), if any.
func (m *Manager) FailureFor(id string, origin hosttypes.Origin) (error, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	err, ok := m.failures[storageKey(origin, id)]
	return err, ok
}

func (m *Manager) registerRunning(id string, origin hosttypes.Origin, inst *ProviderInstance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storage(origin)[id] = inst
	delete(m.failures, storageKey(origin, id))
}

func (m *Manager) recordFailure(id string, origin hosttypes.Origin, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[storageKey(origin, id)] = err
}

func (m *Manager) unregister(id string, origin hosttypes.Origin) (*ProviderInstance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.storage(origin)
	inst, ok := s[id]
	if ok {
		delete(s, id)
	}
	return inst, ok
}

// Start implements §4.1's public start contract. If an instance for
// (id, origin) already exists and is running, it is returned unchanged.
// Concurrent Start calls for the same (id, origin) are coalesced via
// singleflight so only one startup attempt sequence runs at a time.
func (m *Manager) Start(ctx context.Context, id string, origin hosttypes.Origin, cfg hosttypes.Provider, extraEnv map[string]string) (*ProviderInstance, error) {
	if inst, ok := m.Get(id, origin); ok {
		return inst, nil
	}

	key := storageKey(origin, id)
	v, err, _ := m.group.Do(key, func() (any, error) {
		if inst, ok := m.Get(id, origin); ok {
			return inst, nil
		}
		return m.attemptStart(ctx, id, origin, cfg, extraEnv)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ProviderInstance), nil
}

func (m *Manager) attemptStart(ctx context.Context, id string, origin hosttypes.Origin, cfg hosttypes.Provider, extraEnv map[string]string) (*ProviderInstance, error) {
	composed := hostconfig.ComposeEnv(processEnvMap(), extraEnv, cfg.Env, m.logger)
	prefix := id + "_"

	var lastErr error
attempts:
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		startCtx, cancel := context.WithTimeout(ctx, StartupTimeout)
		inst, err := m.startOnce(startCtx, id, origin, cfg, composed, prefix)
		cancel()

		if err == nil {
			m.registerRunning(id, origin, inst)
			m.logger.Info().Str("provider_id", id).Str("origin", string(origin)).Int("attempt", attempt).Msg("providers: started")
			return inst, nil
		}

		lastErr = err
		if attempt == MaxAttempts || !isRetryable(err) {
			break
		}

		backoff := backoffFor(attempt)
		m.logger.Warn().Err(err).Str("provider_id", id).Int("attempt", attempt).Dur("backoff", backoff).Msg("providers: startup attempt failed, retrying")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			lastErr = ctx.Err()
			break attempts
		}
	}

	reason := hosterrors.FirstLeaf(lastErr)
	m.recordFailure(id, origin, errors.New(reason))
	return nil, hosterrors.NewStartup(fmt.Sprintf("providers.start(%s)", id), false, lastErr)
}

// backoffFor implements §4.1's `min(2·attempt, 5)s` backoff schedule.
func backoffFor(attempt int) time.Duration {
	seconds := 2 * attempt
	if seconds > 5 {
		seconds = 5
	}
	return time.Duration(seconds) * time.Second
}

// isRetryable reports whether err warrants another attempt: a broken
// transport during handshake, or a timeout. Any other startup error is
// terminal, per §4.1's failure policy.
func isRetryable(err error) bool {
	if errors.Is(err, errBrokenResource) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	for _, leaf := range hosterrors.FlattenErrors(err) {
		if strings.Contains(leaf, "broken") || strings.Contains(leaf, "timeout") {
			return true
		}
	}
	return false
}

// startOnce performs exactly one startup attempt: create the transport
// client, run the initialize handshake (bounded by HandshakeTimeout), then
// discover tools. A discovery failure does not fail the attempt — the
// provider is still considered running with an empty tool list, per §4.1
// step 4.
func (m *Manager) startOnce(ctx context.Context, id string, origin hosttypes.Origin, cfg hosttypes.Provider, composedEnv map[string]string, prefix string) (*ProviderInstance, error) {
	mcpClient, err := m.createClient(ctx, id, cfg, composedEnv)
	if err != nil {
		return nil, fmt.Errorf("%w: creating transport for provider %q: %v", errBrokenResource, id, err)
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{Name: "agent-host", Version: "1.0.0"}
	initRequest.Params.Capabilities = mcp.ClientCapabilities{}

	if _, err := mcpClient.Initialize(handshakeCtx, initRequest); err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("%w: initialize handshake for provider %q: %v", errBrokenResource, id, err)
	}

	tools := discoverTools(ctx, mcpClient, id, m.logger)

	p := cfg.Clone()
	p.ID = id
	p.IsConfig = origin == hosttypes.OriginConfigured
	p.IsRunning = true
	p.Tools = tools

	return &ProviderInstance{
		Provider:   p,
		Origin:     origin,
		Client:     mcpClient,
		ToolPrefix: prefix,
		StartedAt:  time.Now(),
	}, nil
}

// discoverTools runs the list_tools handshake. Failure here is logged and
// yields an empty tool list rather than failing the whole startup attempt.
func discoverTools(ctx context.Context, mcpClient client.MCPClient, id string, logger zerolog.Logger) []hosttypes.ProviderTool {
	listResult, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		logger.Warn().Err(err).Str("provider_id", id).Msg("providers: tool discovery failed, provider still considered running")
		return nil
	}

	tools := make([]hosttypes.ProviderTool, 0, len(listResult.Tools))
	for _, t := range listResult.Tools {
		schema, err := toolInputSchema(t)
		if err != nil {
			logger.Warn().Err(err).Str("provider_id", id).Str("tool", t.Name).Msg("providers: failed to convert tool input schema")
			continue
		}
		tools = append(tools, hosttypes.ProviderTool{
			Name:        t.Name,
			Description: t.Description,
			Enabled:     true,
			InputSchema: schema,
		})
	}
	return tools
}

func toolInputSchema(t mcp.Tool) (map[string]any, error) {
	marshaled, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, err
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(marshaled, &schemaMap); err != nil {
		return nil, err
	}
	return schemaMap, nil
}

// Stop removes the instance for (id, origin) and releases its resources.
// Errors during release are logged and swallowed; the method still reports
// success so the caller can always progress, per §4.1's stop contract.
func (m *Manager) Stop(ctx context.Context, id string, origin hosttypes.Origin) bool {
	inst, ok := m.unregister(id, origin)
	if !ok {
		return false
	}
	if inst.Client != nil {
		if err := inst.Client.Close(); err != nil {
			m.logger.Warn().Err(err).Str("provider_id", id).Msg("providers: error closing client during stop, ignored")
		}
	}
	return true
}

// Shutdown stops every running instance in both storages, clears the
// failure registry, and leaves the manager ready for a fresh
// StartFromConfigFile on a later process life (tests only; a real process
// shuts down once).
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	predefinedIDs := make([]string, 0, len(m.predefined))
	for id := range m.predefined {
		predefinedIDs = append(predefinedIDs, id)
	}
	configuredIDs := make([]string, 0, len(m.configured))
	for id := range m.configured {
		configuredIDs = append(configuredIDs, id)
	}
	m.mu.Unlock()

	for _, id := range predefinedIDs {
		m.Stop(ctx, id, hosttypes.OriginPredefined)
	}
	for _, id := range configuredIDs {
		m.Stop(ctx, id, hosttypes.OriginConfigured)
	}

	m.mu.Lock()
	m.failures = make(map[string]error)
	m.initDone = make(chan struct{})
	m.initStarted = false
	m.mu.Unlock()
}

// WaitForInitialization blocks until StartFromConfigFile has completed or
// timeout elapses, returning whether it had completed. Level-triggered: a
// waiter that calls this after the barrier already fired returns true
// immediately, per §4's "must be observable by waiters that start after it
// has fired."
func (m *Manager) WaitForInitialization(timeout time.Duration) bool {
	m.mu.Lock()
	done := m.initDone
	m.mu.Unlock()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// IsInitialized reports whether StartFromConfigFile has completed, without
// blocking.
func (m *Manager) IsInitialized() bool {
	m.mu.Lock()
	done := m.initDone
	m.mu.Unlock()

	select {
	case <-done:
		return true
	default:
		return false
	}
}

func processEnvMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env
}
