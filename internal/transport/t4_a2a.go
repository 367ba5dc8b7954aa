// T4: agent-to-agent transport — a card-discovery GET any peer host can use
// to learn this agent's identity, plus JSON-RPC task submission reusing the
// same request/response/notification envelope as T1. Grounded on the
// teacher's own agent-card-less design (mark3labs-kit only ever talks to
// providers, never advertises itself as one) generalized from the other
// examples' agent-card patterns visible in the retrieval pack's A2A-style
// repos, composed with T1's JSON-RPC scaffolding rather than duplicating it.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/datalayer/agent-host/internal/hostlog"
)

// AgentCard is the discovery document T4's GET handler serves, per §6:
// `{id, name, description, url, version}`.
type AgentCard struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Version     string `json:"version"`
}

// A2AHandler serves T4: GET for card discovery, POST for JSON-RPC task
// submission (method `task/submit`), sharing the envelope types t1 defines.
type A2AHandler struct {
	deps    Deps
	baseURL string
	version string
	logger  zerolog.Logger
}

func NewA2AHandler(deps Deps, baseURL, version string, logger *zerolog.Logger) *A2AHandler {
	return &A2AHandler{deps: deps, baseURL: baseURL, version: version, logger: hostlog.Or(logger)}
}

func (h *A2AHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveCard(w, r)
	case http.MethodPost:
		h.serveTask(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *A2AHandler) serveCard(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	a, ok := h.deps.Registry.Get(agentID)
	if !ok {
		http.Error(w, "unknown agent "+agentID, http.StatusNotFound)
		return
	}
	card := AgentCard{
		ID:          a.ID(),
		Name:        a.Spec().Name,
		Description: a.Spec().Description,
		URL:         h.baseURL + "/a2a/" + a.ID(),
		Version:     h.version,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(card)
}

type taskSubmitParams struct {
	Prompt    string    `json:"prompt"`
	Overrides Overrides `json:"overrides,omitempty"`
}

func (h *A2AHandler) serveTask(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")

	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeRPCError(w, nil, -32700, "parse error")
		return
	}
	if req.Method != "task/submit" {
		h.writeRPCError(w, req.ID, -32601, "method not found: "+req.Method)
		return
	}

	var params taskSubmitParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeRPCError(w, req.ID, -32602, "invalid params")
		return
	}

	a, err := resolveAgent(h.deps, agentID, params.Overrides)
	if err != nil {
		h.writeRPCError(w, req.ID, StatusOf(err), err.Error())
		return
	}

	result, err := runAndRecord(r.Context(), h.deps, a, params.Prompt, params.Overrides)
	if err != nil {
		h.writeRPCError(w, req.ID, 500, err.Error())
		return
	}

	h.writeRPCResult(w, req.ID, map[string]any{"text": result.FinalText})
}

func (h *A2AHandler) writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jsonRPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (h *A2AHandler) writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jsonRPCResponse{JSONRPC: "2.0", ID: id, Error: &jsonRPCError{Code: code, Message: message}})
}
