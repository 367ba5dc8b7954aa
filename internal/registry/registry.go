// Package registry implements C9: the process-wide agent registry mapping
// agent id to its live RunningAgent, read-mostly with one mutex guarding
// mutation, per §5's concurrency note ("C9 agent registry: read-mostly; one
// mutex guards mutation"). Grounded on the teacher's pkg/kit session
// manager (internal/session/manager.go), which keeps the same
// "id -> live object, mutex on register/remove, lock-free-ish reads of the
// object itself" shape for sessions; this generalizes it from one TUI
// session to many independently retoolable agents serving four transports.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/datalayer/agent-host/internal/agent"
	"github.com/datalayer/agent-host/internal/hosttypes"
)

// Registry owns every RunningAgent the process has created.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*agent.RunningAgent
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{agents: make(map[string]*agent.RunningAgent)}
}

// ErrExists is returned by Create when an agent with the same id is already
// registered, mapping to a 409 at the management API (C12).
var ErrExists = fmt.Errorf("agent already exists")

// ErrNotFound is returned by Get/Delete when no agent with the given id is
// registered, mapping to a 404 at the management API.
var ErrNotFound = fmt.Errorf("agent not found")

// Create builds a new RunningAgent via factory.Build and registers it under
// spec.ID. Returns ErrExists if an agent with that id is already registered
// — the build happens before the existence check is re-verified under lock
// so a slow build never blocks registry reads, but a race between two
// concurrent creates of the same id is resolved by discarding the loser's
// freshly built agent.
func (r *Registry) Create(ctx context.Context, factory *agent.Factory, spec hosttypes.AgentSpec, opts agent.BuildOptions) (*agent.RunningAgent, error) {
	if _, exists := r.Get(spec.ID); exists {
		return nil, fmt.Errorf("%w: %s", ErrExists, spec.ID)
	}

	built, err := factory.Build(ctx, spec, opts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.agents[spec.ID]; ok {
		_ = built.Close()
		return existing, fmt.Errorf("%w: %s", ErrExists, spec.ID)
	}
	r.agents[spec.ID] = built
	return built, nil
}

// Get returns the running agent for id, if registered.
func (r *Registry) Get(id string) (*agent.RunningAgent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// List returns every registered agent, sorted by id for stable output from
// the management API's GET /agents.
func (r *Registry) List() []*agent.RunningAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*agent.RunningAgent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Delete removes and closes the agent registered under id. Returns
// ErrNotFound if no such agent exists.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	a, ok := r.agents[id]
	if ok {
		delete(r.agents, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a.Close()
}

// Shutdown closes every registered agent, best-effort: individual close
// errors are collected but never stop the drain, mirroring §7's "Lifecycle
// manager shutdown is best-effort" recovery rule applied to agents too.
func (r *Registry) Shutdown() []error {
	r.mu.Lock()
	agents := make([]*agent.RunningAgent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.agents = make(map[string]*agent.RunningAgent)
	r.mu.Unlock()

	var errs []error
	for _, a := range agents {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
