package sandbox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/datalayer/agent-host/internal/hosttypes"
)

func TestGet_CreatesLazily(t *testing.T) {
	m := NewManager(nil)
	if m.HasCurrentSandbox() {
		t.Fatal("expected no sandbox before first Get")
	}

	sb, err := m.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sb.Variant() != hosttypes.SandboxLocalEval {
		t.Errorf("Variant = %v, want local-eval", sb.Variant())
	}
	if !m.HasCurrentSandbox() {
		t.Fatal("expected HasCurrentSandbox after Get")
	}
}

func TestConfigure_Idempotent(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()
	sb1, _ := m.Get(ctx)

	m.Configure(ctx, hosttypes.SandboxConfig{Variant: hosttypes.SandboxLocalEval})
	sb2, _ := m.Get(ctx)
	if sb1.ID() != sb2.ID() {
		t.Error("Configure with identical config should be a no-op, but sandbox was replaced")
	}
}

func TestConfigure_SwapReplacesSandbox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	m := NewManager(nil)
	ctx := context.Background()
	local, _ := m.Get(ctx)

	m.Configure(ctx, hosttypes.SandboxConfig{Variant: hosttypes.SandboxRemoteNotebook, ServerURL: srv.URL})
	remote, err := m.Get(ctx)
	if err != nil {
		t.Fatalf("Get after reconfigure: %v", err)
	}
	if remote.ID() == local.ID() {
		t.Error("expected a new sandbox after variant swap")
	}
	if remote.Variant() != hosttypes.SandboxRemoteNotebook {
		t.Errorf("Variant = %v, want remote-notebook", remote.Variant())
	}
}

func TestProxy_ReflectsCurrentSandbox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	m := NewManager(nil)
	proxy := m.NewProxy()
	ctx := context.Background()

	if !proxy.HasCapability(CapabilityNamespaces) {
		t.Error("expected local-eval sandbox to report namespaces capability")
	}
	if proxy.HasCapability(CapabilityRemoteKernel) {
		t.Error("did not expect remote_kernel capability on local-eval")
	}

	m.Configure(ctx, hosttypes.SandboxConfig{Variant: hosttypes.SandboxRemoteNotebook, ServerURL: srv.URL})

	if !proxy.HasCapability(CapabilityRemoteKernel) {
		t.Error("expected proxy to observe remote_kernel capability immediately after reconfigure")
	}
	if proxy.HasCapability(CapabilityNamespaces) {
		t.Error("expected proxy to stop reporting namespaces capability after swap to remote")
	}
}

func TestProxy_SandboxIDMatchesCurrentAfterConfigure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	m := NewManager(nil)
	proxy := m.NewProxy()
	ctx := context.Background()

	_ = proxy.ID() // force creation

	m.Configure(ctx, hosttypes.SandboxConfig{Variant: hosttypes.SandboxRemoteNotebook, ServerURL: srv.URL})

	current, err := m.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if proxy.ID() != current.ID() {
		t.Errorf("proxy.ID() = %q, want %q (manager's current sandbox)", proxy.ID(), current.ID())
	}
}

func TestLocalEvalSandbox_StateNotVisibleAfterSwap(t *testing.T) {
	// S4: execute_code("x=1") on local-eval, reconfigure to remote-notebook,
	// then execute_code referencing x must not see the old variable — no
	// exception should be raised from the proxy forwarding either.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stdout":"","stderr":"name 'x' is not defined","is_error":true}`))
	}))
	defer srv.Close()

	m := NewManager(nil)
	proxy := m.NewProxy()
	ctx := context.Background()

	if err := proxy.SetVariable(ctx, "x", "1"); err != nil {
		t.Fatalf("SetVariable: %v", err)
	}

	m.Configure(ctx, hosttypes.SandboxConfig{Variant: hosttypes.SandboxRemoteNotebook, ServerURL: srv.URL})

	result, err := proxy.RunCode(ctx, "print(x)", 0)
	if err != nil {
		t.Fatalf("RunCode should not error from proxy forwarding itself: %v", err)
	}
	if !result.IsError {
		t.Error("expected remote kernel to report x undefined after the swap")
	}
}
