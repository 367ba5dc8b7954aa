// Package sandbox implements C7: a singleton manager owning exactly one
// code-execution sandbox (variant local-eval or remote-notebook), plus a
// live-swap proxy handle that consumers can hold indefinitely across
// reconfiguration.
//
// The source's sandbox exposed a "proxy with fall-through attribute access"
// (Python __getattr__ interception) so that callers could probe
// variant-specific fields like `_namespaces` with hasattr(). §9's design
// note replaces that with an explicit interface covering every operation a
// consumer needs, plus a HasCapability(name) sentinel method standing in for
// the hasattr-based code-path switch — so Sandbox below is a closed,
// statically-typed interface rather than an open dynamic one.
package sandbox

import (
	"context"
	"time"

	"github.com/datalayer/agent-host/internal/hosttypes"
)

// ToolCaller is how generated sandbox code reaches back out to a provider or
// skill tool. Registered per tool name; the sandbox implementation decides
// how a running script invokes it (in-process call for local-eval, a
// callback URL for remote-notebook via the tool-call proxy, C11).
type ToolCaller func(ctx context.Context, args []byte) ([]byte, error)

// CodeResult is the outcome of one RunCode call. InfraError distinguishes
// "the sandbox itself is unreachable/broken" from "the user's code raised",
// per §7's error taxonomy category 5 — infra failures are retried by the
// code-execution toolset up to a small limit, code-level failures never are.
type CodeResult struct {
	Stdout      string
	Stderr      string
	Result      string
	IsError     bool // true if user code raised/exited non-zero
	InfraError  bool // true if the sandbox process/kernel itself failed
	Duration    time.Duration
}

// Sandbox is the explicit interface every concrete variant and the proxy
// implement. Every capability a consumer needs is named here; there is no
// dynamic fallback.
type Sandbox interface {
	// ID returns the concrete sandbox's identifier. The proxy's ID tracks
	// whichever concrete sandbox is current at call time.
	ID() string
	Variant() hosttypes.SandboxVariant

	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	RunCode(ctx context.Context, code string, timeout time.Duration) (CodeResult, error)
	SetVariable(ctx context.Context, name string, value string) error
	InstallPackage(ctx context.Context, name string) error
	RegisterToolCaller(name string, caller ToolCaller)

	IsExecuting() bool
	Interrupt(ctx context.Context) error

	// HasCapability replaces the source's hasattr-based variant probing
	// (e.g. "does this sandbox expose _namespaces") with an explicit,
	// enumerable query. Unknown names return false rather than panicking.
	HasCapability(name string) bool
}

// Capability names consumers may probe via HasCapability.
const (
	CapabilityNamespaces    = "namespaces"     // local-eval only: direct access to the interpreter's variable namespace
	CapabilityRemoteKernel  = "remote_kernel"  // remote-notebook only: backed by an out-of-process kernel
	CapabilityToolProxyURL  = "tool_proxy_url" // remote-notebook only: needs a callback URL for tool calls
)
