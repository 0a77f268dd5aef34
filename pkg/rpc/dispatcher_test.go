package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpe-dev/hub/pkg/metrics"
	"github.com/mcpe-dev/hub/pkg/schema"
	"github.com/mcpe-dev/hub/pkg/session"
	"github.com/mcpe-dev/hub/pkg/subscription"
)

const testLimit = 2

func newTestDispatcher(t *testing.T) (*Dispatcher, *session.Registry) {
	t.Helper()
	mtr := metrics.New(prometheus.NewRegistry())
	mgr := subscription.NewManager(testLimit, time.Minute, subscription.NopHook{}, mtr)
	svc := schema.New("mcpe-hub", "test", ProtocolVersion, testLimit, 1000)
	reg := session.NewRegistry()
	return NewDispatcher(mgr, svc, reg, testLimit, mtr), reg
}

func dispatch(t *testing.T, d *Dispatcher, sess *session.Session, frame string) map[string]any {
	t.Helper()
	resp := d.Dispatch(context.Background(), sess, []byte(frame))
	require.NotNil(t, resp, "expected a response frame")
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp, &out))
	return out
}

func result(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	require.NotContains(t, resp, "error", "unexpected error: %v", resp["error"])
	require.Contains(t, resp, "result")
	return resp["result"].(map[string]any)
}

func rpcErr(t *testing.T, resp map[string]any) (float64, map[string]any) {
	t.Helper()
	require.Contains(t, resp, "error")
	obj := resp["error"].(map[string]any)
	return obj["code"].(float64), obj
}

func initFrame(clientID string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocol_version":"2025-01-01","client_info":{"name":"test-suite","client_id":%q}}}`, clientID)
}

func initSession(t *testing.T, d *Dispatcher, connID, clientID string) *session.Session {
	t.Helper()
	sess := session.New(connID, 16)
	resp := dispatch(t, d, sess, initFrame(clientID))
	result(t, resp)
	return sess
}

func createFrame(id int, delivery string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"subscriptions/create","params":{"filter":{"event_types":["github.*"]},"delivery":%s}}`, id, delivery)
}

const realtimeDelivery = `{"channels":["realtime"]}`

func TestDispatchRejectsBeforeInitialize(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := session.New("conn-1", 16)

	tests := []struct {
		name  string
		frame string
	}{
		{"list", `{"jsonrpc":"2.0","id":1,"method":"subscriptions/list"}`},
		{"create", createFrame(1, realtimeDelivery)},
		{"capabilities", `{"jsonrpc":"2.0","id":1,"method":"mcpe/capabilities"}`},
		{"acknowledge", `{"jsonrpc":"2.0","id":1,"method":"events/acknowledge"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, obj := rpcErr(t, dispatch(t, d, sess, tt.frame))
			assert.Equal(t, float64(-32000), code)
			assert.Equal(t, "Session not initialized", obj["message"])
		})
	}
}

func TestDispatchPingAllowedBeforeInitialize(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := session.New("conn-1", 16)

	resp := dispatch(t, d, sess, `{"jsonrpc":"2.0","id":7,"method":"ping"}`)
	assert.Equal(t, map[string]any{}, result(t, resp))
	assert.Equal(t, float64(7), resp["id"])
}

func TestDispatchInitialize(t *testing.T) {
	d, reg := newTestDispatcher(t)
	sess := session.New("conn-1", 16)

	resp := dispatch(t, d, sess, initFrame("deploy-bot"))
	res := result(t, resp)

	assert.Equal(t, "2025-01-01", res["protocol_version"])
	info := res["server_info"].(map[string]any)
	assert.Equal(t, "mcpe-hub", info["name"])
	caps := res["capabilities"].(map[string]any)
	assert.Contains(t, caps, "subscriptions")
	assert.Contains(t, caps, "scheduling")

	assert.True(t, sess.Initialized())
	assert.Equal(t, "deploy-bot", sess.ClientID())

	bound, ok := reg.Client("deploy-bot")
	require.True(t, ok)
	assert.Same(t, sess, bound)
}

func TestDispatchInitializeBadVersion(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := session.New("conn-1", 16)

	frame := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocol_version":"1999-12-31"}}`
	code, obj := rpcErr(t, dispatch(t, d, sess, frame))

	assert.Equal(t, float64(-32602), code)
	data := obj["data"].(map[string]any)
	assert.Equal(t, []any{"2025-01-01"}, data["supported_versions"])
	assert.False(t, sess.Initialized())
}

func TestDispatchInitializeTwice(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	code, _ := rpcErr(t, dispatch(t, d, sess, initFrame("deploy-bot")))
	assert.Equal(t, float64(-32600), code)
}

func TestDispatchInitializeAnonymousClient(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := session.New("conn-1", 16)

	frame := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocol_version":"2025-01-01"}}`
	result(t, dispatch(t, d, sess, frame))

	assert.Regexp(t, `^client-[0-9a-f]{8}$`, sess.ClientID())
}

func TestDispatchParseError(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := session.New("conn-1", 16)

	resp := dispatch(t, d, sess, `{"jsonrpc":"2.0",`)
	code, _ := rpcErr(t, resp)
	assert.Equal(t, float64(-32700), code)
	assert.Nil(t, resp["id"])
}

func TestDispatchBatchRejected(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := session.New("conn-1", 16)

	resp := dispatch(t, d, sess, `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`)
	code, _ := rpcErr(t, resp)
	assert.Equal(t, float64(-32600), code)
}

func TestDispatchMethodNotFound(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	code, obj := rpcErr(t, dispatch(t, d, sess, `{"jsonrpc":"2.0","id":1,"method":"subscriptions/destroy"}`))
	assert.Equal(t, float64(-32601), code)
	assert.Equal(t, "subscriptions/destroy", obj["data"])
}

func TestDispatchInboundNotificationIgnored(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	resp := d.Dispatch(context.Background(), sess, []byte(`{"jsonrpc":"2.0","method":"events/acknowledge"}`))
	assert.Nil(t, resp)
}

func TestDispatchIDEcho(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	resp := dispatch(t, d, sess, `{"jsonrpc":"2.0","id":"req-42","method":"ping"}`)
	assert.Equal(t, "req-42", resp["id"])

	resp = dispatch(t, d, sess, `{"jsonrpc":"2.0","id":42,"method":"ping"}`)
	assert.Equal(t, float64(42), resp["id"])
}

func TestDispatchCreate(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	res := result(t, dispatch(t, d, sess, createFrame(2, realtimeDelivery)))
	assert.Regexp(t, `^sub-[0-9a-f]{8}$`, res["id"])
	assert.Equal(t, "deploy-bot", res["client_id"])
	assert.Equal(t, "active", res["status"])
	assert.NotEmpty(t, res["created_at"])
}

func TestDispatchCreateInvalidDelivery(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	code, obj := rpcErr(t, dispatch(t, d, sess, createFrame(2, `{"channels":[]}`)))
	assert.Equal(t, float64(-32602), code)
	data := obj["data"].(map[string]any)
	assert.Contains(t, data["message"], "at least one delivery channel")
}

func TestDispatchCreateLimit(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	result(t, dispatch(t, d, sess, createFrame(2, realtimeDelivery)))
	result(t, dispatch(t, d, sess, createFrame(3, realtimeDelivery)))

	code, obj := rpcErr(t, dispatch(t, d, sess, createFrame(4, realtimeDelivery)))
	assert.Equal(t, float64(-32002), code)
	assert.Contains(t, obj["data"], fmt.Sprintf("limit of %d", testLimit))
}

func TestDispatchRemove(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	res := result(t, dispatch(t, d, sess, createFrame(2, realtimeDelivery)))
	subID := res["id"].(string)

	frame := fmt.Sprintf(`{"jsonrpc":"2.0","id":3,"method":"subscriptions/remove","params":{"subscription_id":%q}}`, subID)
	res = result(t, dispatch(t, d, sess, frame))
	assert.Equal(t, true, res["success"])

	// Second remove: gone.
	code, _ := rpcErr(t, dispatch(t, d, sess, frame))
	assert.Equal(t, float64(-32001), code)
}

func TestDispatchRemoveForeignSubscription(t *testing.T) {
	d, _ := newTestDispatcher(t)
	owner := initSession(t, d, "conn-1", "deploy-bot")
	intruder := initSession(t, d, "conn-2", "other-bot")

	res := result(t, dispatch(t, d, owner, createFrame(2, realtimeDelivery)))
	subID := res["id"].(string)

	frame := fmt.Sprintf(`{"jsonrpc":"2.0","id":3,"method":"subscriptions/remove","params":{"subscription_id":%q}}`, subID)
	code, _ := rpcErr(t, dispatch(t, d, intruder, frame))
	assert.Equal(t, float64(-32001), code)
}

func TestDispatchList(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	result(t, dispatch(t, d, sess, createFrame(2, realtimeDelivery)))

	res := result(t, dispatch(t, d, sess, `{"jsonrpc":"2.0","id":3,"method":"subscriptions/list"}`))
	assert.Equal(t, float64(1), res["count"])
	subs := res["subscriptions"].([]any)
	require.Len(t, subs, 1)

	// Status filter that matches nothing.
	res = result(t, dispatch(t, d, sess, `{"jsonrpc":"2.0","id":4,"method":"subscriptions/list","params":{"status":"paused"}}`))
	assert.Equal(t, float64(0), res["count"])
	assert.Equal(t, []any{}, res["subscriptions"])
}

func TestDispatchListUnknownStatus(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	code, _ := rpcErr(t, dispatch(t, d, sess, `{"jsonrpc":"2.0","id":3,"method":"subscriptions/list","params":{"status":"zombie"}}`))
	assert.Equal(t, float64(-32602), code)
}

func TestDispatchPauseResume(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	res := result(t, dispatch(t, d, sess, createFrame(2, realtimeDelivery)))
	subID := res["id"].(string)

	pause := fmt.Sprintf(`{"jsonrpc":"2.0","id":3,"method":"subscriptions/pause","params":{"subscription_id":%q}}`, subID)
	res = result(t, dispatch(t, d, sess, pause))
	assert.Equal(t, true, res["success"])
	assert.Equal(t, "paused", res["status"])

	// Idempotent.
	res = result(t, dispatch(t, d, sess, pause))
	assert.Equal(t, "paused", res["status"])

	resume := fmt.Sprintf(`{"jsonrpc":"2.0","id":4,"method":"subscriptions/resume","params":{"subscription_id":%q}}`, subID)
	res = result(t, dispatch(t, d, sess, resume))
	assert.Equal(t, true, res["success"])
	assert.Equal(t, "active", res["status"])
}

func TestDispatchPauseExpiredSubscription(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	res := result(t, dispatch(t, d, sess, createFrame(2, realtimeDelivery)))
	subID := res["id"].(string)

	_, err := d.manager.Expire(subID)
	require.NoError(t, err)

	pause := fmt.Sprintf(`{"jsonrpc":"2.0","id":3,"method":"subscriptions/pause","params":{"subscription_id":%q}}`, subID)
	code, obj := rpcErr(t, dispatch(t, d, sess, pause))
	assert.Equal(t, float64(-32602), code)
	data := obj["data"].(map[string]any)
	assert.Contains(t, data["message"], "expired")
}

func TestDispatchUpdate(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	res := result(t, dispatch(t, d, sess, createFrame(2, realtimeDelivery)))
	subID := res["id"].(string)

	frame := fmt.Sprintf(`{"jsonrpc":"2.0","id":3,"method":"subscriptions/update","params":{"subscription_id":%q,"filter":{"event_types":["ci.*"],"priority":["high","critical"]}}}`, subID)
	res = result(t, dispatch(t, d, sess, frame))

	filter := res["filter"].(map[string]any)
	assert.Equal(t, []any{"ci.*"}, filter["event_types"])
	// Unchanged fields survive.
	delivery := res["delivery"].(map[string]any)
	assert.Equal(t, []any{"realtime"}, delivery["channels"])
}

func TestDispatchUpdateMissingID(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	code, _ := rpcErr(t, dispatch(t, d, sess, `{"jsonrpc":"2.0","id":3,"method":"subscriptions/update","params":{"filter":{"event_types":["ci.*"]}}}`))
	assert.Equal(t, float64(-32602), code)
}

func TestDispatchAcknowledge(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	frame := `{"jsonrpc":"2.0","id":3,"method":"events/acknowledge","params":{"subscription_id":"sub-unknown","event_ids":["evt-1","evt-2"]}}`
	res := result(t, dispatch(t, d, sess, frame))
	assert.Equal(t, true, res["success"])
}

func TestDispatchCapabilitiesAndSchema(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	res := result(t, dispatch(t, d, sess, `{"jsonrpc":"2.0","id":2,"method":"mcpe/capabilities"}`))
	subs := res["subscriptions"].(map[string]any)
	assert.Equal(t, float64(testLimit), subs["max_active_per_client"])

	res = result(t, dispatch(t, d, sess, `{"jsonrpc":"2.0","id":3,"method":"mcpe/schema"}`))
	ops := res["operations"].([]any)
	assert.NotEmpty(t, ops)

	names := make(map[string]bool, len(ops))
	for _, op := range ops {
		names[op.(map[string]any)["name"].(string)] = true
	}
	assert.True(t, names["subscriptions/create"])
	assert.True(t, names["initialize"])
}

func TestDispatchReattachOnInitialize(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	res := result(t, dispatch(t, d, sess, createFrame(2, realtimeDelivery)))
	subID := res["id"].(string)

	// Simulate disconnect: subscriptions detach under grace.
	d.manager.Detach("deploy-bot")

	// Reconnect under the same client id.
	sess2 := initSession(t, d, "conn-2", "deploy-bot")
	res = result(t, dispatch(t, d, sess2, `{"jsonrpc":"2.0","id":3,"method":"subscriptions/list"}`))
	assert.Equal(t, float64(1), res["count"])
	subs := res["subscriptions"].([]any)
	assert.Equal(t, subID, subs[0].(map[string]any)["id"])
}

func TestDispatchUpdateViaManagerKeepsModels(t *testing.T) {
	// Update with a new expires_at is visible in the result.
	d, _ := newTestDispatcher(t)
	sess := initSession(t, d, "conn-1", "deploy-bot")

	res := result(t, dispatch(t, d, sess, createFrame(2, realtimeDelivery)))
	subID := res["id"].(string)

	expires := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	frame := fmt.Sprintf(`{"jsonrpc":"2.0","id":3,"method":"subscriptions/update","params":{"subscription_id":%q,"expires_at":%q}}`, subID, expires)
	res = result(t, dispatch(t, d, sess, frame))
	require.Contains(t, res, "expires_at")

	got, err := time.Parse(time.RFC3339, res["expires_at"].(string))
	require.NoError(t, err)
	want, _ := time.Parse(time.RFC3339, expires)
	assert.True(t, got.Equal(want))
}
