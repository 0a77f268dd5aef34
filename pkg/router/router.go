// Package router runs the Publish pipeline: normalize and validate the
// event, look up matching subscriptions, and partition delivery between the
// realtime path (session outbound queue) and the aggregation buffers. It
// also carries flushed batches and expiry notices back to their owners.
// Publish never fails for delivery reasons.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/mcpe-dev/hub/pkg/handler"
	"github.com/mcpe-dev/hub/pkg/metrics"
	"github.com/mcpe-dev/hub/pkg/models"
	"github.com/mcpe-dev/hub/pkg/rpc"
	"github.com/mcpe-dev/hub/pkg/scheduler"
	"github.com/mcpe-dev/hub/pkg/session"
	"github.com/mcpe-dev/hub/pkg/subscription"
)

// Router fans published events out to matching subscriptions.
type Router struct {
	manager   *subscription.Manager
	scheduler *scheduler.Scheduler
	registry  *session.Registry
	handlers  *handler.Dispatcher
	mtr       *metrics.Metrics

	sendTimeout time.Duration
	now         func() time.Time
}

// New creates a router. sendTimeout caps how long a batch frame may wait on
// a full outbound queue before the batch is dropped.
func New(manager *subscription.Manager, sched *scheduler.Scheduler, registry *session.Registry, handlers *handler.Dispatcher, sendTimeout time.Duration, mtr *metrics.Metrics) *Router {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &Router{
		manager:     manager,
		scheduler:   sched,
		registry:    registry,
		handlers:    handlers,
		mtr:         mtr,
		sendTimeout: sendTimeout,
		now:         time.Now,
	}
}

// Publish routes one event. It returns an error only when the event is
// invalid; delivery failures are logged and counted, never propagated.
func (r *Router) Publish(event *models.Event) error {
	if event == nil {
		return models.NewValidationError("event", "event is required")
	}
	event.Normalize(r.now())
	if err := event.Validate(); err != nil {
		r.mtr.PublishRejected()
		return err
	}
	r.mtr.EventPublished()

	candidates := r.manager.Candidates(event)
	for _, c := range candidates {
		if c.Class == models.ChannelRealtime {
			r.deliverRealtime(c, event)
			continue
		}
		if !r.scheduler.Append(c.ID, event) {
			// Disarmed between matching and append; the subscription is
			// on its way out, nothing to buffer into.
			slog.Debug("Skipping disarmed subscription",
				"subscription_id", c.ID, "event_id", event.ID)
		}
	}

	slog.Debug("Event routed",
		"event_id", event.ID, "type", event.Type, "candidates", len(candidates))
	return nil
}

func (r *Router) deliverRealtime(c subscription.Candidate, event *models.Event) {
	frame, err := rpc.NewEventNotification(c.ID, event)
	if err != nil {
		slog.Error("Failed to encode event notification",
			"subscription_id", c.ID, "event_id", event.ID, "error", err)
		return
	}

	if sess, ok := r.registry.Client(c.ClientID); ok {
		if sess.TrySend(frame) {
			r.mtr.EventDelivered(string(models.ChannelRealtime))
		} else {
			r.mtr.EventDropped(metrics.DropReasonQueueFull)
			slog.Warn("Realtime delivery dropped, queue full",
				"subscription_id", c.ID, "client_id", c.ClientID, "event_id", event.ID)
		}
	} else {
		r.mtr.EventDropped(metrics.DropReasonSessionGone)
	}

	r.handlers.Dispatch(handler.Invocation{
		SubscriptionID: c.ID,
		ClientID:       c.ClientID,
		Channel:        models.ChannelRealtime,
		Handler:        c.Handler,
		Events:         []*models.Event{event},
	})
}

// DeliverFlush sends an aggregated batch to its owner. Wired as the
// scheduler's FlushFunc; runs on the scheduler goroutine, so it bounds the
// time it may block on a full queue.
func (r *Router) DeliverFlush(f scheduler.Flush) {
	frame, err := rpc.NewBatchNotification(f.SubscriptionID, f.Events, f.ScheduledFor)
	if err != nil {
		slog.Error("Failed to encode batch notification",
			"subscription_id", f.SubscriptionID, "error", err)
		return
	}

	if sess, ok := r.registry.Client(f.ClientID); ok {
		ctx, cancel := context.WithTimeout(context.Background(), r.sendTimeout)
		sendErr := sess.Send(ctx, frame)
		cancel()
		if sendErr != nil {
			r.mtr.EventsDropped(metrics.DropReasonQueueFull, len(f.Events))
			slog.Warn("Batch delivery dropped",
				"subscription_id", f.SubscriptionID, "client_id", f.ClientID,
				"events", len(f.Events), "error", sendErr)
		} else {
			r.mtr.EventsDelivered(string(f.Channel), len(f.Events))
		}
	} else {
		// Owner is detached; the handler still fires below.
		r.mtr.EventsDropped(metrics.DropReasonSessionGone, len(f.Events))
		slog.Debug("Batch delivery skipped, no session",
			"subscription_id", f.SubscriptionID, "client_id", f.ClientID,
			"events", len(f.Events))
	}

	r.handlers.Dispatch(handler.Invocation{
		SubscriptionID: f.SubscriptionID,
		ClientID:       f.ClientID,
		Channel:        f.Channel,
		Handler:        f.Handler,
		Events:         f.Events,
		ScheduledFor:   f.ScheduledFor,
	})

	if f.AutoExpired {
		// The fire instant is the expiry instant; tell the owner.
		r.notifyExpired(f.SubscriptionID, f.ClientID, f.ScheduledFor)
	}
}

// NotifyExpired pushes a subscription_expired notification to the owner.
// Wired as the reaper's onExpired callback.
func (r *Router) NotifyExpired(sub *models.Subscription) {
	r.notifyExpired(sub.ID, sub.ClientID, sub.UpdatedAt)
}

func (r *Router) notifyExpired(subID, clientID string, expiredAt time.Time) {
	frame, err := rpc.NewExpiredNotification(subID, expiredAt)
	if err != nil {
		slog.Error("Failed to encode expired notification",
			"subscription_id", subID, "error", err)
		return
	}

	sess, ok := r.registry.Client(clientID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.sendTimeout)
	defer cancel()
	if err := sess.Send(ctx, frame); err != nil {
		slog.Debug("Expired notification not delivered",
			"subscription_id", subID, "client_id", clientID, "error", err)
	}
}
