// T3: HTTP + SSE, chat-oriented — the same event vocabulary as T2, but the
// request body additionally selects model built-in capabilities
// (`builtinTools`), which the handler only logs. Tool-call events are the
// same TOOL_CALL_START/ARGS/END triplets T2 emits, with no extra annotation.
// Grounded on the same internal/ui rendering shape as T2;
// kept as a separate handler rather than a flag on UIHandler because the
// two wire shapes (messages-array vs single prompt) are likely to
// diverge further as each protocol's real clients are built out.
package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datalayer/agent-host/internal/hostlog"
	"github.com/datalayer/agent-host/internal/hosttypes"
)

type t3Request struct {
	ThreadID     string               `json:"thread_id"`
	RunID        string               `json:"run_id"`
	Prompt       string               `json:"prompt"`
	BuiltinTools []string             `json:"builtinTools,omitempty"`
	Model        string               `json:"model,omitempty"`
	Identities   []hosttypes.Identity `json:"identities,omitempty"`
}

func (req t3Request) overrides() Overrides {
	return Overrides{Model: req.Model, Identities: req.Identities, BuiltinTools: req.BuiltinTools}
}

// ChatHandler serves T3.
type ChatHandler struct {
	deps   Deps
	logger zerolog.Logger
}

func NewChatHandler(deps Deps, logger *zerolog.Logger) *ChatHandler {
	return &ChatHandler{deps: deps, logger: hostlog.Or(logger)}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	var req t3Request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	overrides := req.overrides()
	a, err := resolveAgent(h.deps, agentID, overrides)
	if err != nil {
		http.Error(w, err.Error(), StatusOf(err))
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// builtinTools selects model-native capabilities rather than host tools;
	// the model binding doesn't yet expose a hook to toggle those per call,
	// so the selection is recorded for observability and left for the model
	// binding to pick up once fantasy exposes that option.
	if len(req.BuiltinTools) > 0 {
		h.logger.Debug().Strs("builtin_tools", req.BuiltinTools).Str("agent_id", agentID).Msg("t3: builtin tools requested")
	}

	result, err := runAndRecord(r.Context(), h.deps, a, req.Prompt, overrides)
	if err != nil {
		h.logger.Warn().Err(err).Str("agent_id", agentID).Str("run_id", req.RunID).Msg("t3: run failed")
		emitRunError(sse, req.RunID, err)
		sse.done()
		return
	}

	messageID := uuid.NewString()
	emitToolCalls(sse, result.ToolNames)
	emitTextMessage(sse, messageID, result.FinalText)
	sse.done()
}
