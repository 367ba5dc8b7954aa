// Package agent implements C8 (the agent factory) and the C8/C9 agent
// wrapper: a RunningAgent carries a model binding, a mutable provider
// selection, the aux toolsets (skills, code-execution), and a rebuild
// closure that lets §4.7's retooling operations replace the code-execution
// toolset without tearing down the rest of the agent. Grounded on the
// teacher's pkg/kit/kit.go Kit type, which plays the same "one struct holds
// the live model + tool state for a conversation" role, generalized here
// from one interactive session to a process-wide registry of independently
// retoolable agents (C9, internal/registry).
package agent

import (
	"context"
	"fmt"
	"sync"

	"charm.land/fantasy"
	"github.com/rs/zerolog"

	"github.com/datalayer/agent-host/internal/codeexec"
	"github.com/datalayer/agent-host/internal/hostlog"
	"github.com/datalayer/agent-host/internal/hosttypes"
	"github.com/datalayer/agent-host/internal/model"
	"github.com/datalayer/agent-host/internal/providers"
)

// AuxToolset is one of the agent's standing toolsets (skills,
// code-execution) as opposed to a provider-backed toolset, which is
// resolved dynamically from the current provider selection on every run.
type AuxToolset interface {
	AgentTools() []fantasy.AgentTool
}

// rebuildFunc rebuilds the code-execution toolset for a new provider
// selection, per §4.7's update_providers algorithm. It returns the new
// toolset or an error; on error the wrapper keeps whatever toolset it had.
type rebuildFunc func(ctx context.Context, selection []hosttypes.ProviderSelection) (*codeexec.Toolset, error)

// RunningAgent is one live, retoolable agent: a model binding plus the
// machinery to compute its effective tool list on every run.
type RunningAgent struct {
	mu sync.Mutex

	spec  hosttypes.AgentSpec
	model model.Binding

	providerManager *providers.Manager
	selection       []hosttypes.ProviderSelection

	codeExecutionEnabled bool
	codeExecToolset      *codeexec.Toolset
	rebuild              rebuildFunc

	auxToolsets []AuxToolset // order matters: skills, then code-execution

	logger zerolog.Logger
}

// ID returns the agent's durable identifier.
func (a *RunningAgent) ID() string { return a.spec.ID }

// Spec returns a copy of the agent's durable spec.
func (a *RunningAgent) Spec() hosttypes.AgentSpec {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spec
}

// ModelID returns the id of the model this agent is bound to.
func (a *RunningAgent) ModelID() string { return a.model.ModelID() }

// EffectiveTools computes the toolset list this run should see, per §4.7's
// "on every run" rule:
//   - if code execution is enabled, provider toolsets are not added
//     directly — the code-execution toolset owns its own registry of them;
//   - otherwise every selected provider's running instance contributes its
//     tools directly, with a warning logged for any selection that isn't
//     currently running;
//   - the aux toolsets (skills, code-execution) are always appended last.
func (a *RunningAgent) EffectiveTools() []fantasy.AgentTool {
	a.mu.Lock()
	selection := append([]hosttypes.ProviderSelection(nil), a.selection...)
	codeExecEnabled := a.codeExecutionEnabled
	auxToolsets := append([]AuxToolset(nil), a.auxToolsets...)
	a.mu.Unlock()

	var tools []fantasy.AgentTool
	if !codeExecEnabled {
		for _, sel := range selection {
			inst, ok := a.providerManager.Get(sel.ID, sel.Origin)
			if !ok {
				a.logger.Warn().Str("provider_id", sel.ID).Str("origin", string(sel.Origin)).
					Msg("agent: selected provider is not running, skipping its tools for this run")
				continue
			}
			tools = append(tools, inst.AgentTools()...)
		}
	}

	for _, aux := range auxToolsets {
		tools = append(tools, aux.AgentTools()...)
	}
	return tools
}

// UpdateProviders replaces the mutable provider selection, per §4.7's
// update_providers operation. If code execution is enabled and a rebuild
// closure is present, the code-execution toolset is rebuilt against the new
// selection with a fresh sandbox proxy (so a pending sandbox reconfiguration
// takes effect); a rebuild failure leaves the previous toolset untouched and
// is only logged. If the new selection is empty, the code-execution toolset
// is removed outright — it would otherwise register zero tools, which is
// never useful and different from "not rebuilt yet".
func (a *RunningAgent) UpdateProviders(ctx context.Context, selection []hosttypes.ProviderSelection) {
	a.mu.Lock()
	if sameSelection(a.selection, selection) {
		a.mu.Unlock()
		return
	}
	a.selection = append([]hosttypes.ProviderSelection(nil), selection...)
	codeExecEnabled := a.codeExecutionEnabled
	rebuild := a.rebuild
	a.mu.Unlock()

	if !codeExecEnabled || rebuild == nil {
		return
	}

	if len(selection) == 0 {
		a.removeCodeExecToolset()
		return
	}

	newToolset, err := rebuild(ctx, selection)
	if err != nil {
		a.logger.Warn().Err(err).Msg("agent: code-execution toolset rebuild failed, keeping previous toolset")
		return
	}
	a.replaceCodeExecToolset(newToolset)
}

// SetCodeExecution enables or disables the code-execution toolset. Enabling
// requires a rebuild closure to have been supplied by the factory; without
// one this is a no-op (there is no builder to ask for a toolset), per
// §4.7's "a builder must be present to enable" rule.
func (a *RunningAgent) SetCodeExecution(ctx context.Context, enabled bool) {
	a.mu.Lock()
	if a.codeExecutionEnabled == enabled {
		a.mu.Unlock()
		return
	}
	rebuild := a.rebuild
	selection := append([]hosttypes.ProviderSelection(nil), a.selection...)
	a.mu.Unlock()

	if !enabled {
		a.mu.Lock()
		a.codeExecutionEnabled = false
		a.mu.Unlock()
		a.removeCodeExecToolset()
		return
	}

	if rebuild == nil {
		a.logger.Warn().Msg("agent: set_code_execution(true) requested but no toolset builder is configured, ignoring")
		return
	}

	newToolset, err := rebuild(ctx, selection)
	if err != nil {
		a.logger.Warn().Err(err).Msg("agent: code-execution toolset build failed, code execution stays disabled")
		return
	}

	a.mu.Lock()
	a.codeExecutionEnabled = true
	a.mu.Unlock()
	a.replaceCodeExecToolset(newToolset)
}

// removeCodeExecToolset drops the code-execution toolset from auxToolsets
// at its known index, per §4.7's "If the new selection is empty, the
// code-execution toolset is removed."
func (a *RunningAgent) removeCodeExecToolset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.codeExecToolset = nil
	out := a.auxToolsets[:0]
	for _, t := range a.auxToolsets {
		if _, isCodeExec := t.(*codeexec.Toolset); isCodeExec {
			continue
		}
		out = append(out, t)
	}
	a.auxToolsets = out
}

func (a *RunningAgent) replaceCodeExecToolset(newToolset *codeexec.Toolset) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.codeExecToolset = newToolset
	for i, t := range a.auxToolsets {
		if _, isCodeExec := t.(*codeexec.Toolset); isCodeExec {
			a.auxToolsets[i] = newToolset
			return
		}
	}
	a.auxToolsets = append(a.auxToolsets, newToolset)
}

func sameSelection(a, b []hosttypes.ProviderSelection) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Close releases the agent's model binding resources (e.g. a locally loaded
// model). Safe to call on a nil-bound agent.
func (a *RunningAgent) Close() error {
	if a.model == nil {
		return nil
	}
	if err := model.Close(a.model); err != nil {
		return fmt.Errorf("closing model binding for agent %s: %w", a.spec.ID, err)
	}
	return nil
}

func newLogger(l *zerolog.Logger, agentID string) zerolog.Logger {
	return hostlog.Or(l).With().Str("agent_id", agentID).Logger()
}
