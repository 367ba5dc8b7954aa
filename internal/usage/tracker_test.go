package usage

import (
	"sync"
	"testing"
	"time"

	"github.com/datalayer/agent-host/internal/hosttypes"
)

func TestRecordStep_Aggregation(t *testing.T) {
	tr := New()
	inputs := []int{100, 50, 40}
	outputs := []int{20, 30, 10}

	for i := range inputs {
		tr.RecordStep("agent-1", StepFromMessage(inputs[i], outputs[i], 0, 0, nil, time.Time{}, time.Time{}))
	}
	tr.RecordTurn("agent-1")

	snap, ok := tr.Snapshot("agent-1")
	if !ok {
		t.Fatal("expected agent-1 to be registered")
	}
	if len(snap.Steps) != 3 {
		t.Fatalf("len(Steps) = %d, want 3", len(snap.Steps))
	}
	if snap.InputTokens != 190 {
		t.Errorf("InputTokens = %d, want 190", snap.InputTokens)
	}
	if snap.OutputTokens != 60 {
		t.Errorf("OutputTokens = %d, want 60", snap.OutputTokens)
	}
	if snap.Requests != 3 {
		t.Errorf("Requests = %d, want 3", snap.Requests)
	}
	if snap.Turns != 1 {
		t.Errorf("Turns = %d, want 1", snap.Turns)
	}
}

func TestTotalTokens_EqualsSumOfSteps(t *testing.T) {
	tr := New()
	var wantIn, wantOut int
	for i := 0; i < 10; i++ {
		in, out := i*3, i*2
		wantIn += in
		wantOut += out
		tr.RecordStep("agent-x", StepFromMessage(in, out, 0, 0, nil, time.Time{}, time.Time{}))
	}

	if got := tr.TotalTokens("agent-x"); got != wantIn+wantOut {
		t.Errorf("TotalTokens = %d, want %d", got, wantIn+wantOut)
	}
}

func TestReset(t *testing.T) {
	tr := New()
	tr.RecordStep("agent-1", StepFromMessage(10, 10, 0, 0, nil, time.Time{}, time.Time{}))
	tr.Reset("agent-1")

	snap, ok := tr.Snapshot("agent-1")
	if !ok {
		t.Fatal("expected agent-1 to still be registered after reset")
	}
	if len(snap.Steps) != 0 || snap.TotalTokens() != 0 {
		t.Errorf("expected empty usage after reset, got %+v", snap)
	}
}

func TestRecordStep_ConcurrentInterleaving(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	const goroutines, perGoroutine = 20, 50

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				tr.RecordStep("agent-concurrent", StepFromMessage(1, 1, 0, 0, nil, time.Time{}, time.Time{}))
			}
		}()
	}
	wg.Wait()

	snap, _ := tr.Snapshot("agent-concurrent")
	want := goroutines * perGoroutine
	if len(snap.Steps) != want {
		t.Errorf("len(Steps) = %d, want %d", len(snap.Steps), want)
	}
	if snap.InputTokens != want {
		t.Errorf("InputTokens = %d, want %d", snap.InputTokens, want)
	}
}

func TestEstimatingTokenizer_EmptyText(t *testing.T) {
	var tok EstimatingTokenizer
	if got := tok.CountTokens(""); got != 0 {
		t.Errorf("CountTokens(\"\") = %d, want 0", got)
	}
}

func TestContextWindow_UnknownDefaultsTo128k(t *testing.T) {
	if got := ContextWindow("some-unknown-model-xyz"); got != 128_000 {
		t.Errorf("ContextWindow(unknown) = %d, want 128000", got)
	}
}

func TestContextWindow_ProviderPrefixStripped(t *testing.T) {
	if got := ContextWindow("anthropic:claude-opus-4-5"); got != 200_000 {
		t.Errorf("ContextWindow(anthropic:claude-opus-4-5) = %d, want 200000", got)
	}
	if got := ContextWindow("anthropic/claude-opus-4-5"); got != 200_000 {
		t.Errorf("ContextWindow(anthropic/claude-opus-4-5) = %d, want 200000", got)
	}
}
