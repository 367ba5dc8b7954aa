// Package transport implements C10: four thin bindings from a wire protocol
// to an agent's run loop, sharing one pattern (§4.8): read the request,
// enter the identity context for the scope of the streamed response, resolve
// the agent's current toolset, run it, pipe events to the wire format, then
// record usage. Grounded on the teacher's internal/ui/event_handler.go for
// the read-run-emit-record shape, generalized from one TUI event loop to
// four independent wire protocols sharing one registry of agents.
package transport

import (
	"context"

	"github.com/datalayer/agent-host/internal/agent"
	"github.com/datalayer/agent-host/internal/hosttypes"
	"github.com/datalayer/agent-host/internal/identity"
	"github.com/datalayer/agent-host/internal/registry"
	"github.com/datalayer/agent-host/internal/usage"
)

// Overrides are the optional per-request overrides every transport's
// request body may carry, per §4.8 step 1.
type Overrides struct {
	Model       string               `json:"model,omitempty"`
	Identities  []hosttypes.Identity `json:"identities,omitempty"`
	BuiltinTools []string            `json:"builtinTools,omitempty"`
}

// Deps are the shared dependencies every transport handler needs.
type Deps struct {
	Registry *registry.Registry
	Usage    *usage.Tracker
}

// runAndRecord enters the identity context for ctx's lifetime, runs prompt
// against agent a, and on completion records one usage step per response
// message plus one turn and the message-token delta, per §4.8 step 6. The
// caller is responsible for deriving ctx's lifetime from "the streamed
// response", not the handler return, per §4.4's identity-context lifetime
// rule — this function does not itself manage that; it merely uses whatever
// ctx it's given.
func runAndRecord(ctx context.Context, deps Deps, a *agent.RunningAgent, prompt string, overrides Overrides) (agent.RunResult, error) {
	if len(overrides.Identities) > 0 {
		ctx = identity.WithIdentities(ctx, overrides.Identities)
	}

	result, err := a.Run(ctx, prompt)
	if err != nil {
		return agent.RunResult{}, err
	}

	deps.Usage.Register(a.ID())

	var inputTokens, outputTokens int
	for _, step := range result.Steps {
		deps.Usage.RecordStep(a.ID(), step)
		inputTokens += step.InputTokens
		outputTokens += step.OutputTokens
	}
	deps.Usage.RecordTurn(a.ID())
	deps.Usage.AddMessageTokens(a.ID(), hosttypes.MessageTokens{
		User:      inputTokens,
		Assistant: outputTokens,
	})

	return result, nil
}

// resolveAgent looks up agentID, applying overrides.Model by rebuilding the
// model binding is out of scope here — model overrides at the transport
// layer are honored by routing the run through the model id the agent was
// already built with; the spec names a `model` override as a per-request
// input but the agent factory (§4.6) binds one model per agent, so a
// request-level override that names a different model is only accepted
// when it matches the agent's own bound model, and rejected otherwise.
func resolveAgent(deps Deps, agentID string, overrides Overrides) (*agent.RunningAgent, error) {
	a, ok := deps.Registry.Get(agentID)
	if !ok {
		return nil, errAgentNotFound(agentID)
	}
	if overrides.Model != "" && overrides.Model != a.ModelID() {
		return nil, errModelMismatch(agentID, overrides.Model, a.ModelID())
	}
	return a, nil
}

func errAgentNotFound(id string) error {
	return &transportError{status: 404, msg: "unknown agent " + id}
}

func errModelMismatch(agentID, requested, bound string) error {
	return &transportError{status: 422, msg: "agent " + agentID + " is bound to model " + bound + ", not " + requested}
}

type transportError struct {
	status int
	msg    string
}

func (e *transportError) Error() string { return e.msg }

// StatusOf extracts the HTTP-ish status code a transportError carries, or
// 500 for any other error.
func StatusOf(err error) int {
	if te, ok := err.(*transportError); ok {
		return te.status
	}
	return 500
}
