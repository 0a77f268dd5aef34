// Package api is the HTTP surface of the hub: the WebSocket endpoint the
// JSON-RPC protocol runs over, the publish ingress producers POST events to,
// and the health and metrics endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/mcpe-dev/hub/pkg/config"
	"github.com/mcpe-dev/hub/pkg/metrics"
	"github.com/mcpe-dev/hub/pkg/router"
	"github.com/mcpe-dev/hub/pkg/session"
	"github.com/mcpe-dev/hub/pkg/subscription"
	"github.com/mcpe-dev/hub/pkg/transport"
)

// Server is the HTTP server wrapping the hub's WebSocket transport and
// publish ingress.
type Server struct {
	cfg           *config.Config
	connManager   *transport.Transport
	eventRouter   *router.Router
	registry      *session.Registry
	subscriptions *subscription.Manager
	mtr           *metrics.Metrics
	limiter       *rate.Limiter
	startedAt     time.Time

	httpSrv *http.Server
}

// NewServer creates the API server. The rate limiter for the publish
// ingress is built from the config's publish rate and burst.
func NewServer(
	cfg *config.Config,
	connManager *transport.Transport,
	eventRouter *router.Router,
	registry *session.Registry,
	subscriptions *subscription.Manager,
	mtr *metrics.Metrics,
) *Server {
	return &Server{
		cfg:           cfg,
		connManager:   connManager,
		eventRouter:   eventRouter,
		registry:      registry,
		subscriptions: subscriptions,
		mtr:           mtr,
		limiter:       rate.NewLimiter(rate.Limit(cfg.PublishRate), cfg.PublishBurst),
		startedAt:     time.Now(),
	}
}

// Routes builds the gin engine with all endpoints and middleware attached.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(recovery(), requestLogger(), securityHeaders())

	r.GET("/ws", s.wsHandler)
	r.POST("/v1/events", s.publishHandler)
	r.GET("/healthz", s.healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.mtr.Registry(), promhttp.HandlerOpts{})))

	return r
}

// Start runs the HTTP server on addr. It blocks until the listener fails or
// Shutdown is called, mirroring http.ListenAndServe.
func (s *Server) Start(addr string) error {
	// No global write timeout: /ws connections are long-lived and a server
	// write deadline would sever them.
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting new connections and waits for in-flight requests
// up to the context deadline. Live WebSocket sessions are closed by the
// transport, not here.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
