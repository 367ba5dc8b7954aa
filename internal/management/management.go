// Package management implements C12: the HTTP management surface for
// agents and MCP provider lifecycle, per §6's "HTTP management surface"
// summary. Grounded on the teacher's cmd/root.go flag-to-behavior mapping
// and internal/tools/mcp.go's start/stop semantics, ported from a CLI/TUI
// surface to an HTTP one using the stdlib's pattern-routing ServeMux
// (Go 1.22+) — the example pack's only HTTP router dependency
// (go-chi/chi, via goadesign-goa-ai) arrives solely as an indirect
// transitive pull of goa's own generated transport code, which this host
// does not adopt wholesale, so it is not a realistic fit here; ServeMux's
// method+path-parameter patterns cover everything this surface needs.
package management

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/datalayer/agent-host/internal/agent"
	"github.com/datalayer/agent-host/internal/catalog"
	"github.com/datalayer/agent-host/internal/hostlog"
	"github.com/datalayer/agent-host/internal/hosttypes"
	"github.com/datalayer/agent-host/internal/providers"
	"github.com/datalayer/agent-host/internal/registry"
	"github.com/datalayer/agent-host/internal/sandbox"
)

// Server holds every dependency the management handlers need.
type Server struct {
	Catalog         *catalog.Catalog
	ConfiguredFile  map[string]hosttypes.Provider // loaded via hostconfig.LoadAndMerge
	ProviderManager *providers.Manager
	SandboxManager  *sandbox.Manager
	AgentRegistry   *registry.Registry
	Factory         *agent.Factory
	Logger          zerolog.Logger

	mu       sync.RWMutex
	disabled map[string]bool // catalog ids disabled for the default agent
}

// New returns a management Server. Call Handler to obtain the routed
// http.Handler.
func New(s Server) *Server {
	s.disabled = make(map[string]bool)
	s.Logger = hostlog.Or(&s.Logger)
	return &s
}

// Handler returns the http.Handler implementing §6's management surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /agents", s.createAgent)
	mux.HandleFunc("GET /agents", s.listAgents)
	mux.HandleFunc("GET /agents/{id}", s.getAgent)
	mux.HandleFunc("DELETE /agents/{id}", s.deleteAgent)

	mux.HandleFunc("GET /mcp/servers/catalog", s.getCatalog)
	mux.HandleFunc("GET /mcp/servers/config", s.getConfig)
	mux.HandleFunc("GET /mcp/servers/available", s.getAvailable)
	mux.HandleFunc("POST /mcp/servers/catalog/{id}/enable", s.enableCatalogEntry)
	mux.HandleFunc("DELETE /mcp/servers/catalog/{id}/disable", s.disableCatalogEntry)

	mux.HandleFunc("POST /agents/{id}/mcp-servers/start", s.startAgentProvider)
	mux.HandleFunc("POST /agents/{id}/mcp-servers/stop", s.stopAgentProvider)

	mux.HandleFunc("GET /health/startup", s.healthStartup)
	return mux
}

// createAgentRequest is the POST /agents body.
type createAgentRequest struct {
	ID                   string                       `json:"id"`
	Name                 string                       `json:"name"`
	Description          string                       `json:"description,omitempty"`
	Model                string                       `json:"model"`
	SystemPromptTemplate string                       `json:"system_prompt_template,omitempty"`
	Providers            []hosttypes.ProviderSelection `json:"providers,omitempty"`
	SkillIDs             []string                     `json:"skill_ids,omitempty"`
	CodeExecutionEnabled bool                         `json:"code_execution_enabled"`
	SkillsEnabled        bool                         `json:"skills_enabled"`
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" || req.Name == "" || req.Model == "" {
		writeError(w, http.StatusUnprocessableEntity, "id, name, and model are required")
		return
	}

	spec := hosttypes.AgentSpec{
		ID:                   req.ID,
		Name:                 req.Name,
		Description:          req.Description,
		Providers:            req.Providers,
		SkillIDs:             req.SkillIDs,
		SystemPromptTemplate: req.SystemPromptTemplate,
		Model:                req.Model,
	}
	opts := agent.BuildOptions{
		CodeExecutionEnabled: req.CodeExecutionEnabled,
		SkillsEnabled:        req.SkillsEnabled,
		SkillIDs:             req.SkillIDs,
		ProviderSelection:    req.Providers,
	}

	created, err := s.AgentRegistry.Create(r.Context(), s.Factory, spec, opts)
	if err != nil {
		if errors.Is(err, registry.ErrExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, agentSummary(created))
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.AgentRegistry.List()
	out := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentSummary(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, ok := s.AgentRegistry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown agent "+id)
		return
	}
	writeJSON(w, http.StatusOK, agentSummary(a))
}

func (s *Server) deleteAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.AgentRegistry.Delete(id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func agentSummary(a *agent.RunningAgent) map[string]any {
	spec := a.Spec()
	return map[string]any{
		"id":          spec.ID,
		"name":        spec.Name,
		"description": spec.Description,
		"model":       a.ModelID(),
	}
}

func (s *Server) getCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Catalog.List())
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	out := make([]hosttypes.Provider, 0, len(s.ConfiguredFile))
	for _, p := range s.ConfiguredFile {
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getAvailable(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []hosttypes.Provider
	for _, p := range s.Catalog.List() {
		if s.disabled[p.ID] {
			continue
		}
		if s.Catalog.Available(p.ID) {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) enableCatalogEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.Catalog.Get(id); !ok {
		writeError(w, http.StatusNotFound, "unknown catalog entry "+id)
		return
	}
	s.mu.Lock()
	delete(s.disabled, id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) disableCatalogEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.Catalog.Get(id); !ok {
		writeError(w, http.StatusNotFound, "unknown catalog entry "+id)
		return
	}
	s.mu.Lock()
	s.disabled[id] = true
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

type envVarPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type startProviderRequest struct {
	EnvVars []envVarPair `json:"env_vars,omitempty"`
}

func (s *Server) startAgentProvider(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	a, ok := s.AgentRegistry.Get(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown agent "+agentID)
		return
	}

	providerID := r.URL.Query().Get("provider_id")
	if providerID == "" {
		writeError(w, http.StatusUnprocessableEntity, "provider_id query parameter is required")
		return
	}

	var req startProviderRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
			return
		}
	}
	extraEnv := make(map[string]string, len(req.EnvVars))
	for _, kv := range req.EnvVars {
		extraEnv[kv.Name] = kv.Value
	}

	cfg, origin, err := s.resolveProvider(providerID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if _, err := s.ProviderManager.Start(r.Context(), providerID, origin, cfg, extraEnv); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	selection := appendSelection(a.Spec().Providers, hosttypes.ProviderSelection{ID: providerID, Origin: origin})
	a.UpdateProviders(r.Context(), selection)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) stopAgentProvider(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	a, ok := s.AgentRegistry.Get(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown agent "+agentID)
		return
	}

	providerID := r.URL.Query().Get("provider_id")
	if providerID == "" {
		writeError(w, http.StatusUnprocessableEntity, "provider_id query parameter is required")
		return
	}

	_, origin, err := s.resolveProvider(providerID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.ProviderManager.Stop(r.Context(), providerID, origin)

	selection := removeSelection(a.Spec().Providers, providerID)
	a.UpdateProviders(r.Context(), selection)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) resolveProvider(id string) (hosttypes.Provider, hosttypes.Origin, error) {
	if cfg, ok := s.ConfiguredFile[id]; ok {
		return cfg, hosttypes.OriginConfigured, nil
	}
	if cfg, ok := s.Catalog.Get(id); ok {
		return cfg, hosttypes.OriginPredefined, nil
	}
	return hosttypes.Provider{}, "", errUnknownProvider(id)
}

func errUnknownProvider(id string) error {
	return errors.New("unknown provider " + id)
}

func appendSelection(selection []hosttypes.ProviderSelection, sel hosttypes.ProviderSelection) []hosttypes.ProviderSelection {
	for _, existing := range selection {
		if existing == sel {
			return selection
		}
	}
	return append(append([]hosttypes.ProviderSelection(nil), selection...), sel)
}

func removeSelection(selection []hosttypes.ProviderSelection, id string) []hosttypes.ProviderSelection {
	out := make([]hosttypes.ProviderSelection, 0, len(selection))
	for _, sel := range selection {
		if sel.ID != id {
			out = append(out, sel)
		}
	}
	return out
}

// healthStartup reports the sandbox-manager status dynamically, per §6's
// "returns the sandbox-manager status dynamically, so reconfigurations are
// visible."
func (s *Server) healthStartup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.SandboxManager.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
