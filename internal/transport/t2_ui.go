// T2: HTTP + SSE, UI-oriented — one POST per run, streaming the run's
// result back as AG-UI-style typed events. Grounded on the teacher's
// internal/ui package's message rendering (it already distinguishes
// message-start/content/end and tool-call phases for its own TUI; this
// reuses that event vocabulary over the wire instead of over a terminal).
package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datalayer/agent-host/internal/hostlog"
	"github.com/datalayer/agent-host/internal/hosttypes"
	"github.com/datalayer/agent-host/internal/message"
)

// uiMessage is one entry of the UI transport's `messages` array. It accepts
// either a plain `content` string (simple clients) or a type-tagged `parts`
// array (internal/message's wire format, for clients that already carry
// reasoning/tool-call/tool-result blocks) and normalizes both into a
// message.Message so usage accounting sees a uniform, role-tagged history.
type uiMessage struct {
	ID      string          `json:"id,omitempty"`
	Role    string          `json:"role"`
	Content string          `json:"content,omitempty"`
	Parts   json.RawMessage `json:"parts,omitempty"`
}

func (u uiMessage) toMessage() (message.Message, error) {
	m := message.Message{ID: u.ID, Role: message.MessageRole(u.Role)}
	if len(u.Parts) > 0 {
		parts, err := message.UnmarshalParts(u.Parts)
		if err != nil {
			return message.Message{}, err
		}
		m.Parts = parts
		return m, nil
	}
	if u.Content != "" {
		m.Parts = []message.ContentPart{message.TextContent{Text: u.Content}}
	}
	return m, nil
}

type t2Request struct {
	ThreadID       string               `json:"thread_id"`
	RunID          string               `json:"run_id"`
	Messages       []uiMessage          `json:"messages"`
	State          json.RawMessage      `json:"state,omitempty"`
	Tools          json.RawMessage      `json:"tools,omitempty"`
	Context        json.RawMessage      `json:"context,omitempty"`
	ForwardedProps json.RawMessage      `json:"forwardedProps,omitempty"`
	Model          string               `json:"model,omitempty"`
	Identities     []hosttypes.Identity `json:"identities,omitempty"`
}

func (req t2Request) overrides() Overrides {
	return Overrides{Model: req.Model, Identities: req.Identities}
}

// lastUserPrompt takes the final user-role message's text as the prompt,
// since the model binding runs one prompt per call rather than threading
// the whole messages array through fantasy (see internal/model/binding.go).
// Malformed `parts` entries are skipped rather than failing the whole run —
// a single bad historical message shouldn't block the current turn.
func lastUserPrompt(messages []uiMessage) string {
	var lastAny string
	for i := len(messages) - 1; i >= 0; i-- {
		m, err := messages[i].toMessage()
		if err != nil {
			continue
		}
		text := m.Content()
		if text == "" {
			continue
		}
		if m.Role == message.RoleUser {
			return text
		}
		if lastAny == "" {
			lastAny = text
		}
	}
	return lastAny
}

// UIHandler serves T2; cmd/agent-host mounts it at POST /ui/{id}/run. The
// agent id travels in the path, matching T3 and the management API's own
// {id} convention.
type UIHandler struct {
	deps   Deps
	logger zerolog.Logger
}

func NewUIHandler(deps Deps, logger *zerolog.Logger) *UIHandler {
	return &UIHandler{deps: deps, logger: hostlog.Or(logger)}
}

func (h *UIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	var req t2Request
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

	prompt := lastUserPrompt(req.Messages)
	result, err := runAndRecord(r.Context(), h.deps, a, prompt, overrides)
	if err != nil {
		h.logger.Warn().Err(err).Str("agent_id", agentID).Str("run_id", req.RunID).Msg("t2: run failed")
		emitRunError(sse, req.RunID, err)
		sse.done()
		return
	}

	messageID := uuid.NewString()
	emitToolCalls(sse, result.ToolNames)
	emitTextMessage(sse, messageID, result.FinalText)
	sse.done()
}
