// Package e2e exercises the hub through its public surfaces only: the
// WebSocket protocol endpoint and the HTTP publish ingress.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcpe-dev/hub/pkg/config"
	"github.com/mcpe-dev/hub/pkg/handler"
	"github.com/mcpe-dev/hub/pkg/hub"
)

// TestApp boots a complete hub instance for e2e testing.
type TestApp struct {
	Config  *config.Config
	Hub     *hub.Hub
	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/ws"

	t *testing.T
}

type testAppConfig struct {
	mutate  func(cfg *config.Config)
	invoker handler.Invoker
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithConfig mutates the default config before the hub is built.
func WithConfig(mutate func(cfg *config.Config)) TestAppOption {
	return func(c *testAppConfig) { c.mutate = mutate }
}

// WithInvoker installs a handler invoker, typically a recording fake.
func WithInvoker(inv handler.Invoker) TestAppOption {
	return func(c *testAppConfig) { c.invoker = inv }
}

// NewTestApp builds and starts a hub behind an httptest server. Everything
// is torn down via t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	var tac testAppConfig
	for _, opt := range opts {
		opt(&tac)
	}

	cfg := config.Default()
	if tac.mutate != nil {
		tac.mutate(cfg)
	}

	h := hub.New(cfg, hub.Options{Invoker: tac.invoker})
	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)

	ts := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		ts.Close()
		stopCtx, stop := context.WithTimeout(context.Background(), 3*time.Second)
		defer stop()
		h.Stop(stopCtx)
		cancel()
	})

	return &TestApp{
		Config:  cfg,
		Hub:     h,
		BaseURL: ts.URL,
		WSURL:   "ws" + ts.URL[len("http"):] + "/ws",
		t:       t,
	}
}

// Publish posts an event to the ingress and returns the assigned event id.
func (app *TestApp) Publish(t *testing.T, event map[string]any) string {
	t.Helper()

	data, err := json.Marshal(event)
	require.NoError(t, err)

	resp, err := http.Post(app.BaseURL+"/v1/events", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "ingress rejected event: %s", raw)

	var body struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	require.NotEmpty(t, body.ID)
	return body.ID
}
