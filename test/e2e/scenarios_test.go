package e2e

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpe-dev/hub/pkg/config"
	"github.com/mcpe-dev/hub/pkg/handler"
)

func TestRealtimeSingleDelivery(t *testing.T) {
	app := NewTestApp(t)
	c := app.Connect(t)

	res := c.Initialize("scenario-realtime")
	require.Equal(t, "2025-01-01", res["protocol_version"])

	subID := c.CreateSubscription(map[string]any{
		"filter":   map[string]any{"event_types": []string{"github.push"}},
		"delivery": map[string]any{"channels": []string{"realtime"}},
	})

	app.Publish(t, map[string]any{
		"type": "github.push",
		"data": map[string]any{"repo": "a/b"},
		"metadata": map[string]any{
			"priority":  "normal",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		},
	})

	params := c.Notification("events/event")
	assert.Equal(t, subID, params["subscription_id"])
	evt := params["event"].(map[string]any)
	assert.Equal(t, "github.push", evt["type"])
	data := evt["data"].(map[string]any)
	assert.Equal(t, "a/b", data["repo"])
	meta := evt["metadata"].(map[string]any)
	assert.Equal(t, "normal", meta["priority"])

	// Exactly one delivery.
	c.AssertNoPending()
}

func TestWildcardAndPriorityFilter(t *testing.T) {
	app := NewTestApp(t)
	c := app.Connect(t)
	c.Initialize("scenario-wildcard")

	subID := c.CreateSubscription(map[string]any{
		"filter": map[string]any{
			"event_types": []string{"github.*"},
			"priority":    []string{"high", "critical"},
		},
		"delivery": map[string]any{"channels": []string{"realtime"}},
	})

	app.Publish(t, map[string]any{
		"type":     "github.push",
		"metadata": map[string]any{"priority": "normal"},
	})
	app.Publish(t, map[string]any{
		"type":     "github.issues.opened",
		"metadata": map[string]any{"priority": "high"},
	})

	// Deliveries preserve publish order, so if the normal-priority push had
	// matched it would arrive before this frame.
	params := c.Notification("events/event")
	assert.Equal(t, subID, params["subscription_id"])
	evt := params["event"].(map[string]any)
	assert.Equal(t, "github.issues.opened", evt["type"])

	c.AssertNoPending()
}

func TestCronBatchCapKeepsMostRecent(t *testing.T) {
	app := NewTestApp(t)
	c := app.Connect(t)
	c.Initialize("scenario-cron")

	subID := c.CreateSubscription(map[string]any{
		"filter": map[string]any{"event_types": []string{"ci.build"}},
		"delivery": map[string]any{
			"channels": []string{"cron"},
			"cron_schedule": map[string]any{
				"expression":              "@hourly",
				"max_events_per_delivery": 3,
			},
		},
	})

	for i := 1; i <= 5; i++ {
		app.Publish(t, map[string]any{"type": "ci.build", "data": map[string]any{"n": i}})
	}

	// The next @hourly fire is too far out for a test; move it to now.
	require.True(t, app.Hub.Scheduler().FireNow(subID))

	batch := c.Notification("events/batch")
	assert.Equal(t, subID, batch["subscription_id"])
	assert.EqualValues(t, 3, batch["count"])

	events := batch["events"].([]any)
	require.Len(t, events, 3)
	for i, want := range []float64{3, 4, 5} {
		evt := events[i].(map[string]any)
		data := evt["data"].(map[string]any)
		assert.Equal(t, want, data["n"], "batch keeps the most recent events in publish order")
	}
}

func TestScheduledAutoExpire(t *testing.T) {
	app := NewTestApp(t)
	c := app.Connect(t)
	c.Initialize("scenario-scheduled")

	deliverAt := time.Now().UTC().Add(2 * time.Second)
	subID := c.CreateSubscription(map[string]any{
		"filter": map[string]any{"event_types": []string{"digest.item"}},
		"delivery": map[string]any{
			"channels": []string{"scheduled"},
			"scheduled_delivery": map[string]any{
				"deliver_at":  deliverAt.Format(time.RFC3339Nano),
				"auto_expire": true,
			},
		},
	})

	app.Publish(t, map[string]any{"type": "digest.item", "data": map[string]any{"n": 1}})
	app.Publish(t, map[string]any{"type": "digest.item", "data": map[string]any{"n": 2}})

	batch := c.Notification("events/batch")
	assert.Equal(t, subID, batch["subscription_id"])
	assert.EqualValues(t, 2, batch["count"])
	events := batch["events"].([]any)
	require.Len(t, events, 2)
	window := batch["window"].(map[string]any)
	scheduledFor, err := time.Parse(time.RFC3339Nano, window["scheduled_for"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, deliverAt, scheduledFor, time.Second)

	expired := c.Notification("notifications/subscription_expired")
	assert.Equal(t, subID, expired["subscription_id"])

	listed := c.Result("subscriptions/list", map[string]any{"status": "expired"})
	require.EqualValues(t, 1, listed["count"])
	subs := listed["subscriptions"].([]any)
	first := subs[0].(map[string]any)
	assert.Equal(t, subID, first["id"])
	assert.Equal(t, "expired", first["status"])
}

func TestPauseBlocksDelivery(t *testing.T) {
	app := NewTestApp(t)
	c := app.Connect(t)
	c.Initialize("scenario-pause")

	subID := c.CreateSubscription(map[string]any{
		"filter":   map[string]any{"event_types": []string{"alerts.cpu"}},
		"delivery": map[string]any{"channels": []string{"realtime"}},
	})

	c.Result("subscriptions/pause", map[string]any{"subscription_id": subID})
	app.Publish(t, map[string]any{"type": "alerts.cpu", "data": map[string]any{"n": 1}})
	c.AssertNoPending()

	c.Result("subscriptions/resume", map[string]any{"subscription_id": subID})
	app.Publish(t, map[string]any{"type": "alerts.cpu", "data": map[string]any{"n": 2}})

	params := c.Notification("events/event")
	evt := params["event"].(map[string]any)
	data := evt["data"].(map[string]any)
	assert.EqualValues(t, 2, data["n"], "only the post-resume event is delivered")

	c.AssertNoPending()
}

func TestSubscriptionLimit(t *testing.T) {
	app := NewTestApp(t, WithConfig(func(cfg *config.Config) {
		cfg.MaxSubscriptionsPerClient = 2
	}))
	c := app.Connect(t)
	c.Initialize("scenario-limit")

	realtime := func() map[string]any {
		return map[string]any{"delivery": map[string]any{"channels": []string{"realtime"}}}
	}

	first := c.CreateSubscription(realtime())
	c.CreateSubscription(realtime())

	errObj := c.CallError("subscriptions/create", realtime())
	assert.EqualValues(t, -32002, errObj["code"])

	// Paused subscriptions still count against the limit.
	c.Result("subscriptions/pause", map[string]any{"subscription_id": first})
	errObj = c.CallError("subscriptions/create", realtime())
	assert.EqualValues(t, -32002, errObj["code"])

	// Removal frees the slot.
	c.Result("subscriptions/remove", map[string]any{"subscription_id": first})
	c.CreateSubscription(realtime())
}

// collectInvoker records handler invocations for assertions.
type collectInvoker struct {
	mu  sync.Mutex
	got []handler.Invocation
}

func (ci *collectInvoker) Invoke(_ context.Context, inv handler.Invocation) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.got = append(ci.got, inv)
	return nil
}

func (ci *collectInvoker) count() int {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	return len(ci.got)
}

func (ci *collectInvoker) last() handler.Invocation {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	return ci.got[len(ci.got)-1]
}

func TestHandlerInvokedPerRealtimeDelivery(t *testing.T) {
	inv := &collectInvoker{}
	app := NewTestApp(t, WithInvoker(inv))
	c := app.Connect(t)
	c.Initialize("scenario-handler")

	subID := c.CreateSubscription(map[string]any{
		"filter":   map[string]any{"event_types": []string{"deploy.done"}},
		"delivery": map[string]any{"channels": []string{"realtime"}},
		"handler": map[string]any{
			"type": "bash",
			"bash": map[string]any{"command": "notify-send", "args": []string{"deployed"}},
		},
	})

	app.Publish(t, map[string]any{"type": "deploy.done"})
	c.Notification("events/event")

	require.Eventually(t, func() bool { return inv.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	got := inv.last()
	assert.Equal(t, subID, got.SubscriptionID)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "deploy.done", got.Events[0].Type)
}

func TestAcknowledgeIsAcceptedAndIgnored(t *testing.T) {
	app := NewTestApp(t)
	c := app.Connect(t)
	c.Initialize("scenario-ack")

	subID := c.CreateSubscription(map[string]any{
		"filter":   map[string]any{"event_types": []string{"ping.pong"}},
		"delivery": map[string]any{"channels": []string{"realtime"}},
	})

	app.Publish(t, map[string]any{"type": "ping.pong"})
	params := c.Notification("events/event")
	evt := params["event"].(map[string]any)

	res := c.Result("events/acknowledge", map[string]any{
		"subscription_id": subID,
		"event_ids":       []string{evt["id"].(string)},
	})
	assert.Equal(t, true, res["success"])

	// Delivery stays best-effort; acknowledging changes nothing observable.
	app.Publish(t, map[string]any{"type": "ping.pong"})
	c.Notification("events/event")
	c.AssertNoPending()
}
