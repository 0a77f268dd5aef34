package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mcpe-dev/hub/pkg/rpc"
)

// WSClient is a JSON-RPC client over a live WebSocket connection.
// Notifications read while waiting for a response are stashed and replayed
// by Notification, so interleaving never loses frames.
type WSClient struct {
	t     *testing.T
	ctx   context.Context
	conn  *websocket.Conn
	reqID int
	stash []map[string]any
}

// Connect dials the hub's WebSocket endpoint.
func (app *TestApp) Connect(t *testing.T) *WSClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, app.WSURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	return &WSClient{t: t, ctx: ctx, conn: conn}
}

// Close shuts the connection down immediately.
func (c *WSClient) Close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *WSClient) readFrame() map[string]any {
	c.t.Helper()
	_, raw, err := c.conn.Read(c.ctx)
	require.NoError(c.t, err)
	var msg map[string]any
	require.NoError(c.t, json.Unmarshal(raw, &msg))
	return msg
}

// Call sends a request and returns the raw response envelope.
func (c *WSClient) Call(method string, params any) map[string]any {
	c.t.Helper()
	c.reqID++
	req := map[string]any{"jsonrpc": "2.0", "id": c.reqID, "method": method}
	if params != nil {
		req["params"] = params
	}
	data, err := json.Marshal(req)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.Write(c.ctx, websocket.MessageText, data))

	for {
		msg := c.readFrame()
		if _, isNote := msg["method"]; isNote {
			c.stash = append(c.stash, msg)
			continue
		}
		require.EqualValues(c.t, c.reqID, msg["id"], "response id mismatch")
		return msg
	}
}

// Result calls a method and requires success, returning the result object.
func (c *WSClient) Result(method string, params any) map[string]any {
	c.t.Helper()
	msg := c.Call(method, params)
	require.Nil(c.t, msg["error"], "unexpected rpc error: %v", msg["error"])
	res, _ := msg["result"].(map[string]any)
	return res
}

// CallError calls a method and requires an error, returning the error object.
func (c *WSClient) CallError(method string, params any) map[string]any {
	c.t.Helper()
	msg := c.Call(method, params)
	require.NotNil(c.t, msg["error"], "expected rpc error, got result: %v", msg["result"])
	return msg["error"].(map[string]any)
}

// Initialize performs the handshake and returns the result.
func (c *WSClient) Initialize(clientID string) map[string]any {
	c.t.Helper()
	return c.Result("initialize", map[string]any{
		"protocol_version": rpc.ProtocolVersion,
		"client_info":      map[string]any{"name": "e2e", "version": "test", "client_id": clientID},
	})
}

// CreateSubscription creates a subscription and returns its id.
func (c *WSClient) CreateSubscription(params map[string]any) string {
	c.t.Helper()
	res := c.Result("subscriptions/create", params)
	id, _ := res["id"].(string)
	require.NotEmpty(c.t, id)
	return id
}

// Notification returns the params of the next notification with the given
// method, draining stashed frames first.
func (c *WSClient) Notification(method string) map[string]any {
	c.t.Helper()
	for i, n := range c.stash {
		if n["method"] == method {
			c.stash = append(c.stash[:i], c.stash[i+1:]...)
			return n["params"].(map[string]any)
		}
	}
	for {
		msg := c.readFrame()
		m, isNote := msg["method"]
		require.True(c.t, isNote, "expected a notification, got: %v", msg)
		if m == method {
			return msg["params"].(map[string]any)
		}
		c.stash = append(c.stash, msg)
	}
}

// AssertNoPending proves no notification is in flight: a ping response
// travels the same ordered queue as notifications, so anything enqueued
// earlier would have been read and stashed before the pong arrives.
func (c *WSClient) AssertNoPending() {
	c.t.Helper()
	c.Result("ping", nil)
	require.Empty(c.t, c.stash, "unexpected notifications: %v", c.stash)
}
