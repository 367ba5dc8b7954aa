package providers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/datalayer/agent-host/internal/catalog"
	"github.com/datalayer/agent-host/internal/hosttypes"
)

func bashProvider() hosttypes.Provider {
	return hosttypes.Provider{
		ID:   "bash",
		Name: "Bash",
		Kind: hosttypes.TransportInProcess,
	}
}

func TestStart_InProcessProvider_Succeeds(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	inst, err := m.Start(ctx, "bash", hosttypes.OriginPredefined, bashProvider(), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !inst.Provider.IsRunning {
		t.Error("expected instance to be marked running")
	}
	if inst.ToolPrefix != "bash_" {
		t.Errorf("ToolPrefix = %q, want %q", inst.ToolPrefix, "bash_")
	}

	if got, ok := m.Get("bash", hosttypes.OriginPredefined); !ok || got != inst {
		t.Error("expected Get to return the same registered instance")
	}
}

func TestStart_Idempotent_ReturnsExistingInstance(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first, err := m.Start(ctx, "bash", hosttypes.OriginPredefined, bashProvider(), nil)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	second, err := m.Start(ctx, "bash", hosttypes.OriginPredefined, bashProvider(), nil)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if first != second {
		t.Error("expected second Start to return the already-running instance unchanged")
	}
}

func TestStart_NonExistentCommand_RecordsStickyFailure(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := hosttypes.Provider{
		ID:      "broken",
		Kind:    hosttypes.TransportStdio,
		Command: []string{"definitely-not-a-real-binary-xyz"},
	}

	start := time.Now()
	_, err := m.Start(ctx, "broken", hosttypes.OriginConfigured, cfg, nil)
	duration := time.Since(start)

	if err == nil {
		t.Fatal("expected an error for a non-existent command")
	}
	if duration > 29*time.Second {
		t.Errorf("Start took too long: %v", duration)
	}

	if _, ok := m.FailureFor("broken", hosttypes.OriginConfigured); !ok {
		t.Error("expected a sticky failure entry after exhausting retries")
	}
	if _, ok := m.Get("broken", hosttypes.OriginConfigured); ok {
		t.Error("a terminally failed provider must not appear in the running storage")
	}
}

func TestStop_UnknownInstance_ReturnsFalse(t *testing.T) {
	m := NewManager(nil)
	if m.Stop(context.Background(), "nope", hosttypes.OriginPredefined) {
		t.Error("Stop on an unknown instance should return false")
	}
}

func TestGetUnscoped_PrefersPredefinedOnCollision(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := m.Start(ctx, "bash", hosttypes.OriginPredefined, bashProvider(), nil); err != nil {
		t.Fatalf("predefined Start: %v", err)
	}
	if _, err := m.Start(ctx, "bash", hosttypes.OriginConfigured, bashProvider(), nil); err != nil {
		t.Fatalf("configured Start: %v", err)
	}

	inst, ok := m.GetUnscoped("bash")
	if !ok {
		t.Fatal("expected GetUnscoped to find bash")
	}
	if inst.Origin != hosttypes.OriginPredefined {
		t.Errorf("GetUnscoped origin = %v, want predefined on collision", inst.Origin)
	}
}

func TestWaitForInitialization_LevelTriggered(t *testing.T) {
	m := NewManager(nil)
	cat := catalog.New()

	path := filepath.Join(t.TempDir(), "missing-mcp.json")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.StartFromConfigFile(ctx, path, cat); err != nil {
		t.Fatalf("StartFromConfigFile: %v", err)
	}

	// A waiter starting after the barrier already fired must still observe it.
	if !m.WaitForInitialization(time.Second) {
		t.Error("expected WaitForInitialization to return true for a late waiter")
	}
	if !m.IsInitialized() {
		t.Error("expected IsInitialized to be true after StartFromConfigFile completed")
	}
}

func TestStartFromConfigFile_FiresAtMostOnce(t *testing.T) {
	m := NewManager(nil)
	cat := catalog.New()

	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")
	if err := os.WriteFile(path, []byte(`{"mcpServers":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.StartFromConfigFile(ctx, path, cat); err != nil {
		t.Fatalf("first call: %v", err)
	}
	// A second call must be a no-op, not a double-close panic on initDone.
	if err := m.StartFromConfigFile(ctx, path, cat); err != nil {
		t.Fatalf("second call: %v", err)
	}
}

func TestShutdown_ResetsBarrierAndStorages(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := m.Start(ctx, "bash", hosttypes.OriginPredefined, bashProvider(), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	m.Shutdown(ctx)

	if _, ok := m.Get("bash", hosttypes.OriginPredefined); ok {
		t.Error("expected Shutdown to remove all running instances")
	}
	if m.IsInitialized() {
		t.Error("expected Shutdown to reset the initialization barrier")
	}
}

func TestBackoffFor_MatchesSpecSchedule(t *testing.T) {
	cases := map[int]time.Duration{
		1: 2 * time.Second,
		2: 4 * time.Second,
		3: 5 * time.Second, // min(2*3, 5) = 5
		4: 5 * time.Second,
	}
	for attempt, want := range cases {
		if got := backoffFor(attempt); got != want {
			t.Errorf("backoffFor(%d) = %v, want %v", attempt, got, want)
		}
	}
}
