// Package metrics exposes the hub's Prometheus instrumentation. All metrics
// hang off an injected registry so embedded and test instances never collide
// on the default one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics wraps every hub collector.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	sessionsActive  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	sessionReplaced prometheus.Counter

	// Subscription metrics
	subscriptionsActive  prometheus.Gauge
	subscriptionsCreated prometheus.Counter
	subscriptionsExpired prometheus.Counter

	// Event metrics
	eventsPublished prometheus.Counter
	publishRejected prometheus.Counter
	eventsDelivered *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec

	// Delivery metrics
	batchesFlushed *prometheus.CounterVec
	batchSize      prometheus.Histogram

	// Handler metrics
	handlerInvocations *prometheus.CounterVec
	handlerFailures    prometheus.Counter

	// Protocol metrics
	rpcRequests *prometheus.CounterVec
	rpcErrors   *prometheus.CounterVec
}

// New builds the collector set on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hub_sessions_active",
			Help: "Number of currently connected sessions",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hub_sessions_total",
			Help: "Total number of sessions accepted",
		}),
		sessionReplaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "hub_sessions_reattached_total",
			Help: "Total number of sessions that reclaimed subscriptions after a reconnect",
		}),

		subscriptionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hub_subscriptions_active",
			Help: "Number of live (active or paused) subscriptions",
		}),
		subscriptionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "hub_subscriptions_created_total",
			Help: "Total number of subscriptions created",
		}),
		subscriptionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "hub_subscriptions_expired_total",
			Help: "Total number of subscriptions that reached the expired state",
		}),

		eventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "hub_events_published_total",
			Help: "Total number of events accepted by Publish",
		}),
		publishRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "hub_publish_rejected_total",
			Help: "Total number of publishes rejected by validation or rate limiting",
		}),
		eventsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_events_delivered_total",
			Help: "Total number of events handed to session outbound queues",
		}, []string{"channel"}),
		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_events_dropped_total",
			Help: "Total number of events dropped instead of delivered",
		}, []string{"reason"}),

		batchesFlushed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_batches_flushed_total",
			Help: "Total number of aggregated batches flushed",
		}, []string{"channel"}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hub_batch_size_events",
			Help:    "Events per flushed batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		handlerInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_handler_invocations_total",
			Help: "Total number of handler invocations dispatched",
		}, []string{"type"}),
		handlerFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "hub_handler_failures_total",
			Help: "Total number of handler invocations that returned an error",
		}),

		rpcRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_rpc_requests_total",
			Help: "Total number of JSON-RPC requests by method",
		}, []string{"method"}),
		rpcErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_rpc_errors_total",
			Help: "Total number of JSON-RPC error responses by code",
		}, []string{"code"}),
	}
}

// Registry returns the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Session tracking
func (m *Metrics) SessionOpened() {
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	m.sessionsActive.Dec()
}

func (m *Metrics) SessionReattached() {
	m.sessionReplaced.Inc()
}

// Subscription tracking
func (m *Metrics) SubscriptionCreated() {
	m.subscriptionsCreated.Inc()
	m.subscriptionsActive.Inc()
}

func (m *Metrics) SubscriptionRemoved() {
	m.subscriptionsActive.Dec()
}

func (m *Metrics) SubscriptionExpired() {
	m.subscriptionsExpired.Inc()
	m.subscriptionsActive.Dec()
}

// Event tracking
func (m *Metrics) EventPublished() {
	m.eventsPublished.Inc()
}

func (m *Metrics) PublishRejected() {
	m.publishRejected.Inc()
}

func (m *Metrics) EventDelivered(channel string) {
	m.eventsDelivered.WithLabelValues(channel).Inc()
}

// EventsDelivered counts a whole batch at once.
func (m *Metrics) EventsDelivered(channel string, count int) {
	m.eventsDelivered.WithLabelValues(channel).Add(float64(count))
}

func (m *Metrics) EventDropped(reason string) {
	m.eventsDropped.WithLabelValues(reason).Inc()
}

// EventsDropped counts a whole batch at once.
func (m *Metrics) EventsDropped(reason string, count int) {
	m.eventsDropped.WithLabelValues(reason).Add(float64(count))
}

// Delivery tracking
func (m *Metrics) BatchFlushed(channel string, size int) {
	m.batchesFlushed.WithLabelValues(channel).Inc()
	m.batchSize.Observe(float64(size))
}

// Handler tracking
func (m *Metrics) HandlerInvoked(handlerType string) {
	m.handlerInvocations.WithLabelValues(handlerType).Inc()
}

func (m *Metrics) HandlerFailed() {
	m.handlerFailures.Inc()
}

// Protocol tracking
func (m *Metrics) RPCRequest(method string) {
	m.rpcRequests.WithLabelValues(method).Inc()
}

func (m *Metrics) RPCError(code string) {
	m.rpcErrors.WithLabelValues(code).Inc()
}

// Drop reasons recorded by EventDropped.
const (
	DropReasonQueueFull      = "queue_full"
	DropReasonBufferOverflow = "buffer_overflow"
	DropReasonSessionGone    = "session_gone"
)
