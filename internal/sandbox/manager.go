package sandbox

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/datalayer/agent-host/internal/hostlog"
	"github.com/datalayer/agent-host/internal/hosttypes"
)

// envInjector is implemented by sandbox variants that need a post-start
// environment push (remote-notebook); local-eval satisfies it too, trivially.
type envInjector interface {
	InjectEnv(ctx context.Context, env map[string]string) error
}

// Manager owns exactly one concrete code-execution sandbox per process and
// lets its variant/endpoint be reconfigured at runtime. Guarded by a mutex
// per §5: proxy lookups take the mutex on every dereference so callers never
// see a torn reference.
type Manager struct {
	mu      sync.Mutex
	current Sandbox
	config  hosttypes.SandboxConfig
	logger  zerolog.Logger
}

// NewManager returns a Manager with no concrete sandbox yet; the first Get
// call creates one lazily from the zero-value config (local-eval), per §3's
// "Sandbox: created lazily on first get."
func NewManager(logger *zerolog.Logger) *Manager {
	return &Manager{
		logger: hostlog.Or(logger),
		config: hosttypes.SandboxConfig{Variant: hosttypes.SandboxLocalEval},
	}
}

// Configure reconfigures the manager. If the variant or endpoint actually
// changes, the current concrete sandbox is stopped (best-effort; errors
// logged, never returned) and released; the next Get call creates a new one
// of the new variant. Calling Configure twice with the same config is a
// no-op, satisfying the idempotence law in §8.
func (m *Manager) Configure(ctx context.Context, cfg hosttypes.SandboxConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.Variant == cfg.Variant && m.config.ServerURL == cfg.ServerURL {
		return
	}

	if m.current != nil {
		if err := m.current.Stop(ctx); err != nil {
			m.logger.Warn().Err(err).Str("sandbox_id", m.current.ID()).Msg("sandbox: error stopping previous sandbox during reconfigure")
		}
		m.current = nil
	}
	m.config = cfg
}

// Get returns the current concrete sandbox, creating and starting one
// lazily if none exists yet.
func (m *Manager) Get(ctx context.Context) (Sandbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(ctx)
}

func (m *Manager) getLocked(ctx context.Context) (Sandbox, error) {
	if m.current != nil {
		return m.current, nil
	}

	var sb Sandbox
	switch m.config.Variant {
	case hosttypes.SandboxRemoteNotebook:
		sb = newRemoteNotebookSandbox(m.config.ServerURL, m.config.Token, m.logger)
	default:
		sb = newLocalEvalSandbox("bash", m.logger)
	}

	if err := sb.Start(ctx); err != nil {
		return nil, err
	}
	if injector, ok := sb.(envInjector); ok {
		if err := injector.InjectEnv(ctx, m.config.Env); err != nil {
			m.logger.Warn().Err(err).Msg("sandbox: env injection failed")
		}
	}

	m.current = sb
	m.logger.Info().Str("variant", string(m.config.Variant)).Str("sandbox_id", sb.ID()).Msg("sandbox: created new concrete sandbox")
	return sb, nil
}

// Stop stops and releases the current concrete sandbox, if any. Called on
// process shutdown per §3's Lifecycle section.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	err := m.current.Stop(ctx)
	m.current = nil
	return err
}

// HasCurrentSandbox reports whether a concrete sandbox currently exists,
// satisfying §8 property 4's `proxy.is_started == manager.has_current_sandbox`.
func (m *Manager) HasCurrentSandbox() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Status reports the manager's current configuration for health reporting
// (§4.2's "Status" contract and the /health/startup endpoint).
func (m *Manager) Status() hosttypes.SandboxStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return hosttypes.SandboxStatus{
		Variant:      m.config.Variant,
		Endpoint:     m.config.ServerURL,
		Running:      m.current != nil,
		ToolProxyURL: m.config.ToolProxyURL,
	}
}

// NewProxy returns a fresh proxy handle bound to this manager. Consumers
// should call this whenever they need a sandbox reference that must observe
// future reconfigurations transparently — e.g. the agent factory's rebuild
// closure (§4.7) fetches a fresh proxy on every retool so an outstanding
// reconfiguration takes effect.
func (m *Manager) NewProxy() *Proxy {
	return &Proxy{manager: m}
}
