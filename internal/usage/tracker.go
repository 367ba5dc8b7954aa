package usage

import (
	"sync"
	"time"

	"github.com/datalayer/agent-host/internal/hosttypes"
)

// Tracker is the process-wide usage tracker: one entry per agent, created on
// first registration, reset only on explicit Reset, never evicted
// automatically (per §3's Lifecycle section). One mutex per tracker, per
// §5; it guards the per-agent entry map and each entry's own fields equally
// since entries are small and contention is expected to be low (a handful of
// concurrently-streaming runs per agent, not thousands).
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	usage hosttypes.AgentUsage
}

// New returns an empty usage tracker.
func New() *Tracker {
	return &Tracker{entries: make(map[string]*entry)}
}

// Register ensures agentID has a usage entry, creating an empty one if
// needed. Safe to call multiple times; idempotent.
func (t *Tracker) Register(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registerLocked(agentID)
}

func (t *Tracker) registerLocked(agentID string) *entry {
	e, ok := t.entries[agentID]
	if !ok {
		e = &entry{}
		t.entries[agentID] = e
	}
	return e
}

// RecordStep appends step to agentID's step list and folds its counters into
// the cumulative totals. Steps across concurrent runs on the same agent may
// interleave (no per-run ordering is preserved, per §9's Open Question 3);
// RecordStep only needs append-then-fold to be atomic, which the tracker's
// single mutex guarantees regardless of call order.
func (t *Tracker) RecordStep(agentID string, step hosttypes.UsageStep) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.registerLocked(agentID)
	step.Sequence = len(e.usage.Steps)
	e.usage.Steps = append(e.usage.Steps, step)

	e.usage.InputTokens += step.InputTokens
	e.usage.OutputTokens += step.OutputTokens
	e.usage.CacheReadTokens += step.CacheReadTokens
	e.usage.CacheWriteTokens += step.CacheWriteTokens
	e.usage.Requests++
	e.usage.ToolCalls += step.ToolCallCount
}

// RecordTurn increments the turn counter for agentID. A turn is one
// prompt-to-final-response cycle, which may contain multiple steps; the
// transport calls this once per run, after all of that run's steps have been
// recorded.
func (t *Tracker) RecordTurn(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.registerLocked(agentID)
	e.usage.Turns++
}

// AddMessageTokens folds role-split message-history token counts into
// agentID's cumulative MessageTokens, per §4.5 "transport... updates
// cumulative message-token totals".
func (t *Tracker) AddMessageTokens(agentID string, delta hosttypes.MessageTokens) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.registerLocked(agentID)
	e.usage.MessageTokens.System += delta.System
	e.usage.MessageTokens.User += delta.User
	e.usage.MessageTokens.Assistant += delta.Assistant
	e.usage.MessageTokens.Tool += delta.Tool
}

// Snapshot returns a copy of agentID's usage, or the zero value and false if
// the agent was never registered.
func (t *Tracker) Snapshot(agentID string) (hosttypes.AgentUsage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[agentID]
	if !ok {
		return hosttypes.AgentUsage{}, false
	}
	cp := e.usage
	cp.Steps = append([]hosttypes.UsageStep(nil), e.usage.Steps...)
	return cp, true
}

// Reset clears agentID's usage back to empty, per §3's explicit-reset
// lifecycle rule.
func (t *Tracker) Reset(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[agentID] = &entry{}
}

// TotalTokens is a convenience wrapper around AgentUsage.TotalTokens,
// satisfying §8 property 6 directly against the tracker.
func (t *Tracker) TotalTokens(agentID string) int {
	snap, ok := t.Snapshot(agentID)
	if !ok {
		return 0
	}
	return snap.TotalTokens()
}

// StepFromMessage builds a UsageStep from one model response message's token
// counts and tool calls, deriving duration from start/end timestamps when
// both are non-zero (else zero), per §4.5's "Step recording" rule.
func StepFromMessage(inputTokens, outputTokens, cacheRead, cacheWrite int, toolNames []string, start, end time.Time) hosttypes.UsageStep {
	var duration time.Duration
	if !start.IsZero() && !end.IsZero() {
		duration = end.Sub(start)
	}
	return hosttypes.UsageStep{
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		CacheReadTokens:  cacheRead,
		CacheWriteTokens: cacheWrite,
		ToolCallCount:    len(toolNames),
		ToolNames:        toolNames,
		StartedAt:        start,
		Duration:         duration,
	}
}
