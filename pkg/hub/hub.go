// Package hub wires the full event hub together: session registry,
// subscription manager, delivery scheduler, routing pipeline, handler
// dispatch, the JSON-RPC method table and the HTTP surface. Everything else
// composes here; nothing below this package knows the whole graph.
package hub

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcpe-dev/hub/pkg/api"
	"github.com/mcpe-dev/hub/pkg/config"
	"github.com/mcpe-dev/hub/pkg/handler"
	"github.com/mcpe-dev/hub/pkg/metrics"
	"github.com/mcpe-dev/hub/pkg/models"
	"github.com/mcpe-dev/hub/pkg/router"
	"github.com/mcpe-dev/hub/pkg/rpc"
	"github.com/mcpe-dev/hub/pkg/scheduler"
	"github.com/mcpe-dev/hub/pkg/schema"
	"github.com/mcpe-dev/hub/pkg/session"
	"github.com/mcpe-dev/hub/pkg/subscription"
	"github.com/mcpe-dev/hub/pkg/transport"
	"github.com/mcpe-dev/hub/pkg/version"
)

// Options override collaborators that default sensibly.
type Options struct {
	// Invoker executes handler descriptors. Nil uses handler.LogInvoker,
	// which records what would run without executing anything.
	Invoker handler.Invoker
	// Registry receives the hub's Prometheus collectors. Nil creates a
	// fresh one.
	Registry *prometheus.Registry
}

// Hub owns every component and their lifecycles.
type Hub struct {
	cfg         *config.Config
	mtr         *metrics.Metrics
	registry    *session.Registry
	manager     *subscription.Manager
	sched       *scheduler.Scheduler
	reaper      *subscription.Reaper
	eventRouter *router.Router
	handlers    *handler.Dispatcher
	connManager *transport.Transport
	server      *api.Server

	cancel context.CancelFunc
}

// New builds the hub from configuration. The component graph is cyclic in
// two places (manager -> scheduler -> router -> manager), resolved by
// binding the scheduler hook after construction and letting the scheduler's
// flush callback close over the router field.
func New(cfg *config.Config, opts Options) *Hub {
	promReg := opts.Registry
	if promReg == nil {
		promReg = prometheus.NewRegistry()
	}

	h := &Hub{
		cfg:      cfg,
		mtr:      metrics.New(promReg),
		registry: session.NewRegistry(),
	}

	h.manager = subscription.NewManager(cfg.MaxSubscriptionsPerClient, cfg.ClientGracePeriod, nil, h.mtr)
	h.sched = scheduler.New(h.manager, func(f scheduler.Flush) { h.eventRouter.DeliverFlush(f) },
		cfg.MaxEventsPerDeliveryCap, h.mtr)
	h.manager.SetHook(h.sched)

	h.handlers = handler.NewDispatcher(opts.Invoker, h.mtr)
	h.eventRouter = router.New(h.manager, h.sched, h.registry, h.handlers, cfg.WriteTimeout, h.mtr)

	schemas := schema.New(version.AppName, version.GitCommit, rpc.ProtocolVersion,
		cfg.MaxSubscriptionsPerClient, cfg.MaxEventsPerDeliveryCap)
	dispatcher := rpc.NewDispatcher(h.manager, schemas, h.registry, cfg.MaxSubscriptionsPerClient, h.mtr)

	h.connManager = transport.New(h.registry, dispatcher, transport.Options{
		QueueSize:    cfg.OutboundQueueSize,
		WriteTimeout: cfg.WriteTimeout,
		ReadLimit:    cfg.ReadLimit,
	}, h.onDisconnect, h.mtr)

	h.reaper = subscription.NewReaper(h.manager, cfg.ReaperInterval, func(sub *models.Subscription) {
		h.eventRouter.NotifyExpired(sub)
	})

	h.server = api.NewServer(cfg, h.connManager, h.eventRouter, h.registry, h.manager, h.mtr)
	return h
}

// onDisconnect marks the client detached so its subscriptions survive the
// reconnect grace period.
func (h *Hub) onDisconnect(sess *session.Session) {
	if !sess.Initialized() {
		return
	}
	clientID := sess.ClientID()
	if _, ok := h.registry.Client(clientID); ok {
		// A newer connection displaced this one and owns the client now.
		return
	}
	h.manager.Detach(clientID)
}

// Start launches the background loops: the delivery scheduler and the
// expiration reaper. The HTTP server is run by the caller, via Server for a
// real listener or Handler for an embedded one.
func (h *Hub) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	h.sched.Start(runCtx)
	h.reaper.Start(runCtx)
}

// Stop halts the loops, closes live connections, and drains in-flight
// handler invocations, bounded by the context deadline. Shut the HTTP
// server down first so no new traffic arrives mid-stop.
func (h *Hub) Stop(ctx context.Context) {
	h.sched.Stop()
	h.reaper.Stop()
	// http.Server.Shutdown leaves upgraded connections alone, so close
	// them here; each unwinds with a going-away status.
	h.registry.CloseAll()
	if h.cancel != nil {
		h.cancel()
	}

	done := make(chan struct{})
	go func() {
		h.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Handler invocations still in flight at shutdown deadline")
	}

	slog.Info("Hub stopped")
}

// Server returns the HTTP server for the caller to run and shut down.
func (h *Hub) Server() *api.Server {
	return h.server
}

// Scheduler exposes the delivery scheduler, mainly so embedders can force
// flushes or inspect pending fires.
func (h *Hub) Scheduler() *scheduler.Scheduler {
	return h.sched
}

// Handler returns the HTTP surface for embedding behind an external
// listener.
func (h *Hub) Handler() http.Handler {
	return h.server.Routes()
}

// Publish injects an event into the routing pipeline. The HTTP ingress and
// embedded producers both land here.
func (h *Hub) Publish(event *models.Event) error {
	return h.eventRouter.Publish(event)
}
