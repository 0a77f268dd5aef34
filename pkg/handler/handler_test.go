package handler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpe-dev/hub/pkg/metrics"
	"github.com/mcpe-dev/hub/pkg/models"
)

// recordingInvoker captures invocations and optionally fails them.
type recordingInvoker struct {
	mu       sync.Mutex
	got      []Invocation
	deadline bool
	err      error
}

func (r *recordingInvoker) Invoke(ctx context.Context, inv Invocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, inv)
	_, r.deadline = ctx.Deadline()
	return r.err
}

func (r *recordingInvoker) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func (r *recordingInvoker) last() Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[len(r.got)-1]
}

func bashSpec() *models.HandlerSpec {
	return &models.HandlerSpec{
		Type: models.HandlerBash,
		Bash: &models.BashHandler{Command: "notify-send"},
	}
}

func testEvent(eventType string) *models.Event {
	e := &models.Event{Type: eventType}
	e.Normalize(time.Now())
	return e
}

func TestDispatcherInvokes(t *testing.T) {
	inv := &recordingInvoker{}
	d := NewDispatcher(inv, metrics.New(prometheus.NewRegistry()))

	d.Dispatch(Invocation{
		SubscriptionID: "sub-1",
		ClientID:       "deploy-bot",
		Channel:        models.ChannelRealtime,
		Handler:        bashSpec(),
		Events:         []*models.Event{testEvent("github.push")},
	})
	d.Wait()

	require.Equal(t, 1, inv.count())
	got := inv.last()
	assert.Equal(t, "sub-1", got.SubscriptionID)
	assert.Equal(t, "deploy-bot", got.ClientID)
	assert.Len(t, got.Events, 1)
	assert.True(t, inv.deadline, "invocation context should carry a deadline")
}

func TestDispatcherSkipsNilHandler(t *testing.T) {
	inv := &recordingInvoker{}
	d := NewDispatcher(inv, metrics.New(prometheus.NewRegistry()))

	d.Dispatch(Invocation{SubscriptionID: "sub-1"})
	d.Wait()

	assert.Equal(t, 0, inv.count())
}

func TestDispatcherSwallowsErrors(t *testing.T) {
	inv := &recordingInvoker{err: errors.New("effect exploded")}
	d := NewDispatcher(inv, metrics.New(prometheus.NewRegistry()))

	d.Dispatch(Invocation{
		SubscriptionID: "sub-1",
		Handler:        bashSpec(),
		Events:         []*models.Event{testEvent("github.push")},
	})
	// Wait must return even though the invocation failed.
	d.Wait()

	assert.Equal(t, 1, inv.count())
}

func TestDispatcherNilInvokerFallsBack(t *testing.T) {
	d := NewDispatcher(nil, metrics.New(prometheus.NewRegistry()))

	assert.NotPanics(t, func() {
		d.Dispatch(Invocation{
			SubscriptionID: "sub-1",
			Handler:        bashSpec(),
			Events:         []*models.Event{testEvent("github.push")},
		})
		d.Wait()
	})
}

func TestTimeoutFor(t *testing.T) {
	tests := []struct {
		name string
		spec *models.HandlerSpec
		want time.Duration
	}{
		{
			name: "bash with explicit timeout",
			spec: &models.HandlerSpec{
				Type: models.HandlerBash,
				Bash: &models.BashHandler{Command: "true", TimeoutSeconds: 5},
			},
			want: 5 * time.Second,
		},
		{
			name: "webhook with explicit timeout",
			spec: &models.HandlerSpec{
				Type:    models.HandlerWebhook,
				Webhook: &models.WebhookHandler{URL: "https://example.com/hook", TimeoutSeconds: 7},
			},
			want: 7 * time.Second,
		},
		{
			name: "bash without timeout",
			spec: bashSpec(),
			want: DefaultTimeout,
		},
		{
			name: "agent has no timeout field",
			spec: &models.HandlerSpec{
				Type:  models.HandlerAgent,
				Agent: &models.AgentHandler{Model: "claude-sonnet-4"},
			},
			want: DefaultTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, timeoutFor(tt.spec))
		})
	}
}
