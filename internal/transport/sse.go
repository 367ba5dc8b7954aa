// Shared SSE plumbing for T2 and T3: both stream a fixed vocabulary of typed
// events over text/event-stream, differing only in request shape; both emit
// the same tool-call events. Grounded on the teacher's
// internal/ui streaming renderer (tokens arrive incrementally, get flushed
// to the terminal as they land) — here the sink is an SSE writer instead of
// a terminal.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("transport: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) event(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, data)
	s.flusher.Flush()
}

func (s *sseWriter) done() {
	fmt.Fprint(s.w, "event: DONE\ndata: {}\n\n")
	s.flusher.Flush()
}

// emitTextMessage pushes the TEXT_MESSAGE_START/CONTENT/END triplet §6
// names for T2/T3, treating the whole response as one content chunk since
// the model binding (internal/model) returns a complete result rather than
// an incremental stream.
func emitTextMessage(sse *sseWriter, messageID, text string) {
	sse.event("TEXT_MESSAGE_START", map[string]any{"message_id": messageID, "role": "assistant"})
	sse.event("TEXT_MESSAGE_CONTENT", map[string]any{"message_id": messageID, "delta": text})
	sse.event("TEXT_MESSAGE_END", map[string]any{"message_id": messageID})
}

// emitToolCalls pushes one TOOL_CALL_START/ARGS/END triplet per tool name
// the run recorded, per §6's TOOL_CALL_* events. Arguments aren't
// individually retained by RunResult (see internal/agent/run.go), so ARGS
// carries an empty object rather than fabricating input the run didn't
// record.
func emitToolCalls(sse *sseWriter, toolNames []string) {
	for i, name := range toolNames {
		callID := fmt.Sprintf("call_%d", i)
		sse.event("TOOL_CALL_START", map[string]any{"tool_call_id": callID, "tool_call_name": name})
		sse.event("TOOL_CALL_ARGS", map[string]any{"tool_call_id": callID, "delta": "{}"})
		sse.event("TOOL_CALL_END", map[string]any{"tool_call_id": callID})
	}
}

func emitRunError(sse *sseWriter, runID string, err error) {
	sse.event("RUN_ERROR", map[string]any{"run_id": runID, "message": err.Error()})
}
