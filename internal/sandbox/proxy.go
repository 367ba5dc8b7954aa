package sandbox

import (
	"context"
	"time"

	"github.com/datalayer/agent-host/internal/hosttypes"
)

// Proxy is the live-swap handle consumers hold indefinitely (§4.2's "proxy
// handle"). Every call resolves the manager's *current* concrete sandbox at
// call time rather than caching a reference, so a reconfiguration that
// happens between two calls is observed transparently — including by
// HasCapability, which is exactly the property the source achieved with
// dynamic attribute interception and this design achieves by never caching.
//
// Start/Stop are no-ops: lifecycle is owned by the Manager, not the proxy,
// per §4.2.
type Proxy struct {
	manager *Manager
}

var _ Sandbox = (*Proxy)(nil)

func (p *Proxy) resolve(ctx context.Context) (Sandbox, error) {
	return p.manager.Get(ctx)
}

func (p *Proxy) ID() string {
	sb, err := p.resolve(context.Background())
	if err != nil {
		return ""
	}
	return sb.ID()
}

func (p *Proxy) Variant() hosttypes.SandboxVariant {
	sb, err := p.resolve(context.Background())
	if err != nil {
		return ""
	}
	return sb.Variant()
}

// Start is a no-op: the manager creates the concrete sandbox lazily on the
// first operation that actually needs it.
func (p *Proxy) Start(ctx context.Context) error { return nil }

// Stop is a no-op: only the manager's own Stop releases the concrete
// sandbox, so that other proxy holders aren't surprised by a sandbox
// disappearing underneath them.
func (p *Proxy) Stop(ctx context.Context) error { return nil }

func (p *Proxy) RunCode(ctx context.Context, code string, timeout time.Duration) (CodeResult, error) {
	sb, err := p.resolve(ctx)
	if err != nil {
		return CodeResult{InfraError: true}, err
	}
	return sb.RunCode(ctx, code, timeout)
}

func (p *Proxy) SetVariable(ctx context.Context, name string, value string) error {
	sb, err := p.resolve(ctx)
	if err != nil {
		return err
	}
	return sb.SetVariable(ctx, name, value)
}

func (p *Proxy) InstallPackage(ctx context.Context, name string) error {
	sb, err := p.resolve(ctx)
	if err != nil {
		return err
	}
	return sb.InstallPackage(ctx, name)
}

func (p *Proxy) RegisterToolCaller(name string, caller ToolCaller) {
	sb, err := p.resolve(context.Background())
	if err != nil {
		return
	}
	sb.RegisterToolCaller(name, caller)
}

func (p *Proxy) IsExecuting() bool {
	sb, err := p.resolve(context.Background())
	if err != nil {
		return false
	}
	return sb.IsExecuting()
}

func (p *Proxy) Interrupt(ctx context.Context) error {
	sb, err := p.resolve(ctx)
	if err != nil {
		return err
	}
	return sb.Interrupt(ctx)
}

// HasCapability resolves the current concrete sandbox on every call —
// never cached — so it reflects a reconfiguration that happened since the
// last call, satisfying §4.2's "must reflect the current sandbox" rule.
func (p *Proxy) HasCapability(name string) bool {
	sb, err := p.resolve(context.Background())
	if err != nil {
		return false
	}
	return sb.HasCapability(name)
}

// IsStarted reports whether the manager currently has a concrete sandbox,
// satisfying §8 property 4 (`proxy.is_started == manager.has_current_sandbox`)
// without forcing creation of one (unlike the Sandbox-interface calls above,
// which lazily create on first use).
func (p *Proxy) IsStarted() bool {
	return p.manager.HasCurrentSandbox()
}
