// Package identity implements the request-scoped identity context (C5): a
// slot holding the OAuth identities list for the duration of one request,
// readable from whatever goroutine ultimately produces the streamed
// response, and a provider-name → env-var mapping.
//
// The source used a language-specific task-local slot (Python contextvars).
// Per §9's design note this is re-architected as an explicit context.Context
// value carried through the call graph: a context.Context carries the
// identities list by value, so as long as the same (or a derived) context is
// threaded into the goroutine that drains the stream — rather than the
// per-request context.Context that an http.Handler's caller cancels on
// return — the identities remain visible until the stream finishes. This is
// exactly the "must outlive the handler return" requirement in §4.4.
//
// For the one case where context propagation is awkward — the tool-call
// proxy (C11) receiving a callback from a sandboxed process that does not
// share this process's goroutine/context tree — Store below offers a keyed
// registry so a run id can be used to recover the identities set by the
// owning transport.
package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/datalayer/agent-host/internal/hosttypes"
)

type contextKey struct{}

// WithIdentities returns a new context carrying identities. Pass the
// returned context into every downstream call for this request/run,
// including the goroutine that streams the response.
func WithIdentities(ctx context.Context, identities []hosttypes.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identities)
}

// FromContext returns the identities carried by ctx, or (nil, false) if none
// were set.
func FromContext(ctx context.Context) ([]hosttypes.Identity, bool) {
	v, ok := ctx.Value(contextKey{}).([]hosttypes.Identity)
	return v, ok
}

// envVarFor maps a provider name to the environment variable convention
// §3's Identity entity specifies: provider_name → env var, with a generic
// "<NAME>_TOKEN" fallback for providers not in the explicit table.
var envVarFor = map[string]string{
	"github": "GITHUB_TOKEN",
	"google": "GOOGLE_ACCESS_TOKEN",
}

// EnvVarName returns the environment variable name a given provider's
// identity should be materialized into.
func EnvVarName(providerName string) string {
	if v, ok := envVarFor[providerName]; ok {
		return v
	}
	return strings.ToUpper(providerName) + "_TOKEN"
}

// ToEnv applies EnvVarName to every identity, per §4.4's to_env() contract.
func ToEnv(identities []hosttypes.Identity) map[string]string {
	out := make(map[string]string, len(identities))
	for _, id := range identities {
		out[EnvVarName(id.ProviderName)] = id.AccessToken
	}
	return out
}

// ToEnvFromContext is a convenience wrapper combining FromContext and ToEnv;
// it returns an empty map (not nil) if ctx carries no identities, so callers
// can unconditionally merge it into a subprocess environment.
func ToEnvFromContext(ctx context.Context) map[string]string {
	identities, ok := FromContext(ctx)
	if !ok {
		return map[string]string{}
	}
	return ToEnv(identities)
}

// Store is a keyed registry used only where context propagation does not
// reach — the tool-call proxy's HTTP handler, invoked by a sandbox process
// that may be in a separate container. Transports register the identities
// for a run id before starting the run and clear them once the run's
// response is fully drained.
type Store struct {
	mu      sync.RWMutex
	byRunID map[string][]hosttypes.Identity
}

// NewStore returns an empty identity store.
func NewStore() *Store {
	return &Store{byRunID: make(map[string][]hosttypes.Identity)}
}

// Set records identities for runID, for the duration of one run.
func (s *Store) Set(runID string, identities []hosttypes.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRunID[runID] = identities
}

// Get returns the identities recorded for runID, or (nil, false).
func (s *Store) Get(runID string) ([]hosttypes.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byRunID[runID]
	return v, ok
}

// Clear removes the identities recorded for runID. Transports must call this
// only after the streamed response has fully drained — never in a deferred
// handler-return cleanup, per §4.4's lifetime caveat.
func (s *Store) Clear(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byRunID, runID)
}

// ToEnv looks up runID and applies ToEnv, returning an empty map if runID is
// unknown.
func (s *Store) ToEnv(runID string) map[string]string {
	identities, ok := s.Get(runID)
	if !ok {
		return map[string]string{}
	}
	return ToEnv(identities)
}
