// mcpe-hub is the event subscription server: it accepts JSON-RPC over WebSocket,
// routes published events to subscribers, and schedules aggregated
// deliveries.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/mcpe-dev/hub/pkg/config"
	"github.com/mcpe-dev/hub/pkg/hub"
	"github.com/mcpe-dev/hub/pkg/version"
)

func main() {
	// 1. Load configuration (environment > .env > defaults)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Configure logging before anything else logs
	setupLogging(cfg)

	slog.Info("Starting mcpe-hub",
		"version", version.Full(),
		"addr", cfg.Addr,
		"max_subscriptions_per_client", cfg.MaxSubscriptionsPerClient,
		"client_grace_period", cfg.ClientGracePeriod)

	ctx := context.Background()

	// 3. Build the hub and start the background loops
	h := hub.New(cfg, hub.Options{})
	h.Start(ctx)

	// 4. Start the HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Addr)
		if err := h.Server().Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("mcpe-hub started successfully")

	// 5. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 6. Graceful shutdown: stop accepting HTTP traffic first, then halt the
	// loops and drain handler invocations
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := h.Server().Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	stopCtx, stopCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer stopCancel()
	h.Stop(stopCtx)

	slog.Info("Shutdown complete")
}

// setupLogging installs the process-wide slog default from config.
func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
