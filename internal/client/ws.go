// Package client implements C13: thin client-side bindings for T1's
// WebSocket JSON-RPC protocol and T2/T3's SSE event stream, for downstream
// tooling and tests to drive a running host without reimplementing the wire
// format by hand. Grounded on MrWong99-glyphoxa's `coder/websocket` client
// usage (pkg/provider/s2s/openai/openai.go's Dial/Write/Read/Close pattern)
// for the WebSocket side.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/coder/websocket"
)

// WSClient is a minimal T1 JSON-RPC client: Dial, Call a method, Close.
// It does not multiplex concurrent in-flight calls — callers issue one Call
// at a time.
type WSClient struct {
	conn   *websocket.Conn
	nextID atomic.Int64
}

// DialWS connects to a T1 endpoint at url.
func DialWS(ctx context.Context, url string) (*WSClient, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dialing %s: %w", url, err)
	}
	return &WSClient{conn: conn}, nil
}

// Call issues a JSON-RPC request and waits for the matching response,
// skipping any server-pushed notifications in between.
func (c *WSClient) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	reqID, _ := json.Marshal(id)
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("client: marshaling params: %w", err)
	}
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(reqID),
		"method":  method,
		"params":  json.RawMessage(paramsJSON),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("client: marshaling request: %w", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return nil, fmt.Errorf("client: writing request: %w", err)
	}

	for {
		_, raw, err := c.conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("client: reading response: %w", err)
		}
		var resp struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Result json.RawMessage `json:"result"`
			Error  *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("client: unmarshaling response: %w", err)
		}
		if resp.Method != "" {
			// a notification, not our response; keep waiting.
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("client: rpc error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

// Notifications reads server-pushed notifications (session/notification)
// until ctx is done or the connection closes. It reads
// the same connection as Call and drops every message that is not a
// notification, so it is not for use while a Call is waiting for its
// response.
func (c *WSClient) Notifications(ctx context.Context, handle func(method string, params json.RawMessage)) error {
	for {
		_, raw, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Method == "" {
			continue
		}
		handle(msg.Method, msg.Params)
	}
}

// Close closes the underlying WebSocket connection.
func (c *WSClient) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "client closed")
}
