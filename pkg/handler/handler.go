// Package handler dispatches subscription handler effects. The hub never
// executes shell commands, webhooks, or agent calls itself; it hands the
// descriptor and the triggering events to an Invoker and moves on. Handler
// outcomes do not affect delivery accounting.
package handler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpe-dev/hub/pkg/metrics"
	"github.com/mcpe-dev/hub/pkg/models"
)

// DefaultTimeout bounds an invocation whose descriptor carries no timeout.
const DefaultTimeout = 30 * time.Second

// Invocation is one handler firing: the subscription's descriptor plus the
// events that triggered it. Realtime carries a single event, aggregated
// deliveries carry the flushed batch.
type Invocation struct {
	SubscriptionID string
	ClientID       string
	Channel        models.Channel
	Handler        *models.HandlerSpec
	Events         []*models.Event
	// ScheduledFor is the fire time for aggregated deliveries, zero for
	// realtime.
	ScheduledFor time.Time
}

// Invoker executes one handler effect out of process.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) error
}

// LogInvoker is the built-in sink: it records the invocation and performs
// no effect. Deployments plug real executors in through the hub options.
type LogInvoker struct{}

func (LogInvoker) Invoke(_ context.Context, inv Invocation) error {
	slog.Info("Handler invoked",
		"subscription_id", inv.SubscriptionID,
		"client_id", inv.ClientID,
		"type", inv.Handler.Type,
		"channel", inv.Channel,
		"events", len(inv.Events))
	return nil
}

// Dispatcher fans invocations out, one goroutine each, fire and forget.
type Dispatcher struct {
	invoker Invoker
	mtr     *metrics.Metrics
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil invoker falls back to the
// log-only sink.
func NewDispatcher(invoker Invoker, mtr *metrics.Metrics) *Dispatcher {
	if invoker == nil {
		invoker = LogInvoker{}
	}
	return &Dispatcher{invoker: invoker, mtr: mtr}
}

// Dispatch runs the invocation on its own goroutine. Errors are logged and
// counted, nothing more.
func (d *Dispatcher) Dispatch(inv Invocation) {
	if inv.Handler == nil {
		return
	}
	d.mtr.HandlerInvoked(string(inv.Handler.Type))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), timeoutFor(inv.Handler))
		defer cancel()

		if err := d.invoker.Invoke(ctx, inv); err != nil {
			d.mtr.HandlerFailed()
			slog.Warn("Handler invocation failed",
				"subscription_id", inv.SubscriptionID,
				"type", inv.Handler.Type,
				"error", err)
		}
	}()
}

// Wait blocks until in-flight invocations finish. Called during shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// timeoutFor picks the descriptor's own timeout when it carries one.
func timeoutFor(spec *models.HandlerSpec) time.Duration {
	var seconds int
	switch spec.Type {
	case models.HandlerBash:
		if spec.Bash != nil {
			seconds = spec.Bash.TimeoutSeconds
		}
	case models.HandlerWebhook:
		if spec.Webhook != nil {
			seconds = spec.Webhook.TimeoutSeconds
		}
	}
	if seconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(seconds) * time.Second
}
