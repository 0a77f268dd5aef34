// Package transport runs the WebSocket side of the hub: one read loop and
// one writer goroutine per connection. All outbound frames for a connection
// flow through its session queue, so responses and event notifications reach
// the wire in enqueue order.
package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/mcpe-dev/hub/pkg/metrics"
	"github.com/mcpe-dev/hub/pkg/session"
)

// Dispatcher handles one inbound frame and returns the response frame, or
// nil when the frame was a notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess *session.Session, data []byte) []byte
}

// Options tunes per-connection behavior.
type Options struct {
	// QueueSize bounds the outbound queue per session.
	QueueSize int
	// WriteTimeout caps a single WebSocket write.
	WriteTimeout time.Duration
	// ReadLimit caps the size of an inbound frame in bytes.
	ReadLimit int64
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	return o
}

// Transport accepts connections and pumps frames between the wire and the
// dispatcher.
type Transport struct {
	registry     *session.Registry
	dispatcher   Dispatcher
	opts         Options
	onDisconnect func(*session.Session)
	mtr          *metrics.Metrics
}

// New creates a transport. onDisconnect runs after a session has been
// removed from the registry, with the connection already torn down; it may
// be nil.
func New(registry *session.Registry, dispatcher Dispatcher, opts Options, onDisconnect func(*session.Session), mtr *metrics.Metrics) *Transport {
	return &Transport{
		registry:     registry,
		dispatcher:   dispatcher,
		opts:         opts.withDefaults(),
		onDisconnect: onDisconnect,
		mtr:          mtr,
	}
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the HTTP handler after upgrade. Blocks until the connection
// closes.
func (t *Transport) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	sessID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	conn.SetReadLimit(t.opts.ReadLimit)

	sess := session.New(sessID, t.opts.QueueSize)
	t.registry.Add(sess)
	t.mtr.SessionOpened()
	slog.Debug("WebSocket session opened", "session_id", sessID)

	// Unblock the read loop when the session is closed from elsewhere,
	// e.g. a reconnect under the same client id displacing this binding.
	go func() {
		select {
		case <-sess.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		t.writeLoop(ctx, sess, conn)
	}()

	t.readLoop(ctx, sess, conn)

	cancel()
	sess.Close()
	<-writerDone

	t.registry.Remove(sessID)
	if t.onDisconnect != nil {
		t.onDisconnect(sess)
	}
	// Going away covers both server shutdown and displacement by a
	// reconnect; when the peer closed first this write is a no-op.
	_ = conn.Close(websocket.StatusGoingAway, "")
	t.mtr.SessionClosed()
	slog.Debug("WebSocket session closed",
		"session_id", sessID,
		"client_id", sess.ClientID(),
		"dropped_frames", sess.Dropped())
}

// readLoop processes inbound frames until the connection closes.
func (t *Transport) readLoop(ctx context.Context, sess *session.Session, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Connection closed or read error, exit the loop.
			return
		}

		resp := t.dispatcher.Dispatch(ctx, sess, data)
		if resp == nil {
			continue
		}
		if err := sess.Send(ctx, resp); err != nil {
			return
		}
	}
}

// writeLoop drains the session queue onto the wire. A write failure closes
// the session, which in turn unwinds the read loop.
func (t *Transport) writeLoop(ctx context.Context, sess *session.Session, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		case data := <-sess.Outbound():
			writeCtx, cancel := context.WithTimeout(ctx, t.opts.WriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Warn("Failed to send to WebSocket client",
					"session_id", sess.ID, "error", err)
				sess.Close()
				return
			}
		}
	}
}
