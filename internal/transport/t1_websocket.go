// T1: JSON-RPC 2.0 over WebSocket, per §6's wire-protocol summary —
// initialize/session_new/session_prompt requests and session/notification
// server push. The handler sends no permission requests and waits for no
// client reply other than the next request. Grounded on
// the teacher's internal/ui event loop (request in, stream tokens out) and
// on MrWong99-glyphoxa's coder/websocket usage pattern (Accept/Read/Write
// frame loop), since the teacher itself never spoke WebSocket directly.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datalayer/agent-host/internal/hostlog"
)

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WebSocketHandler serves T1.
type WebSocketHandler struct {
	deps   Deps
	logger zerolog.Logger
}

// NewWebSocketHandler returns the T1 HTTP handler.
func NewWebSocketHandler(deps Deps, logger *zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{deps: deps, logger: hostlog.Or(logger)}
}

type sessionNewParams struct {
	AgentID string `json:"agent_id"`
}

type sessionPromptParams struct {
	SessionID string    `json:"session_id"`
	Prompt    string    `json:"prompt"`
	Overrides Overrides `json:"overrides,omitempty"`
}

// session maps a T1 session id to the agent it targets, for the lifetime of
// one WebSocket connection.
type wsSession struct {
	id      string
	agentID string
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("t1: websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	ctx := r.Context()
	sessions := make(map[string]*wsSession)
	var initialized atomic.Bool

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var req jsonRPCRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.writeError(ctx, conn, nil, -32700, "parse error")
			continue
		}

		switch req.Method {
		case "initialize":
			initialized.Store(true)
			h.writeResult(ctx, conn, req.ID, map[string]any{"protocol_version": "1"})

		case "session/new":
			var params sessionNewParams
			_ = json.Unmarshal(req.Params, &params)
			sid := uuid.NewString()
			sessions[sid] = &wsSession{id: sid, agentID: params.AgentID}
			h.writeResult(ctx, conn, req.ID, map[string]any{"session_id": sid})

		case "session/prompt":
			var params sessionPromptParams
			if err := json.Unmarshal(req.Params, &params); err != nil {
				h.writeError(ctx, conn, req.ID, -32602, "invalid params")
				continue
			}
			sess, ok := sessions[params.SessionID]
			if !ok {
				h.writeError(ctx, conn, req.ID, -32602, "unknown session_id")
				continue
			}
			h.handlePrompt(ctx, conn, req.ID, sess, params)

		default:
			h.writeError(ctx, conn, req.ID, -32601, "method not found: "+req.Method)
		}
	}
}

// handlePrompt implements §4.8's common pattern for one run: identity
// context is entered for the streamed response's lifetime (here, the whole
// duration of handlePrompt — T1 has no separate background drain goroutine),
// notifications are pushed as the run progresses, and usage is recorded on
// completion.
func (h *WebSocketHandler) handlePrompt(ctx context.Context, conn *websocket.Conn, reqID json.RawMessage, sess *wsSession, params sessionPromptParams) {
	a, err := resolveAgent(h.deps, sess.agentID, params.Overrides)
	if err != nil {
		h.writeError(ctx, conn, reqID, StatusOf(err), err.Error())
		return
	}

	h.notify(ctx, conn, "session/notification", map[string]any{
		"session_id": sess.id,
		"type":       "run_started",
	})

	result, err := runAndRecord(ctx, h.deps, a, params.Prompt, params.Overrides)
	if err != nil {
		h.notify(ctx, conn, "session/notification", map[string]any{
			"session_id": sess.id,
			"type":       "run_error",
			"error":      err.Error(),
		})
		h.writeError(ctx, conn, reqID, 500, err.Error())
		return
	}

	h.notify(ctx, conn, "session/notification", map[string]any{
		"session_id": sess.id,
		"type":       "run_complete",
		"text":       result.FinalText,
	})
	h.writeResult(ctx, conn, reqID, map[string]any{"text": result.FinalText})
}

func (h *WebSocketHandler) writeResult(ctx context.Context, conn *websocket.Conn, id json.RawMessage, result any) {
	h.write(ctx, conn, jsonRPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (h *WebSocketHandler) writeError(ctx context.Context, conn *websocket.Conn, id json.RawMessage, code int, message string) {
	h.write(ctx, conn, jsonRPCResponse{JSONRPC: "2.0", ID: id, Error: &jsonRPCError{Code: code, Message: message}})
}

func (h *WebSocketHandler) notify(ctx context.Context, conn *websocket.Conn, method string, params any) {
	h.write(ctx, conn, jsonRPCNotification{JSONRPC: "2.0", Method: method, Params: params})
}

func (h *WebSocketHandler) write(ctx context.Context, conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn().Err(err).Msg("t1: marshaling message failed")
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		h.logger.Debug().Err(err).Msg("t1: write failed, client likely disconnected")
	}
}
