// Package session holds per-connection protocol state and the outbound FIFO
// queue. A session is created on connect, initialized by the handshake, and
// drained by a single writer goroutine owned by the transport, which keeps
// outbound delivery in enqueue order.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrAlreadyInitialized is returned by a second initialize on the same
// session.
var ErrAlreadyInitialized = errors.New("session already initialized")

// ErrClosed is returned when enqueueing on a closed session.
var ErrClosed = errors.New("session closed")

// Session is one connected client.
type Session struct {
	// ID is the connection id, assigned at accept time.
	ID string

	mu              sync.RWMutex
	initialized     bool
	clientID        string
	protocolVersion string

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	dropped atomic.Uint64
}

// New creates a session with a bounded outbound queue.
func New(id string, queueSize int) *Session {
	return &Session{
		ID:     id,
		send:   make(chan []byte, queueSize),
		closed: make(chan struct{}),
	}
}

// Initialize marks the handshake complete, binding the client identity.
func (s *Session) Initialize(clientID, protocolVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return ErrAlreadyInitialized
	}
	s.initialized = true
	s.clientID = clientID
	s.protocolVersion = protocolVersion
	return nil
}

// Initialized reports whether the handshake completed.
func (s *Session) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// ClientID returns the bound client identity, empty before initialize.
func (s *Session) ClientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientID
}

// ProtocolVersion returns the negotiated version, empty before initialize.
func (s *Session) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}

// Send enqueues a frame, blocking while the queue is full. Responses,
// batches, and lifecycle notifications use this path: they are never
// dropped, backpressure propagates to the caller.
func (s *Session) Send(ctx context.Context, data []byte) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	select {
	case s.send <- data:
		return nil
	case <-s.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues a frame without blocking. Realtime event notifications
// use this path: a full queue drops the frame and the drop is counted.
func (s *Session) TrySend(data []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Outbound is the writer goroutine's end of the queue.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// Close tears the session down. Idempotent; pending frames in the queue are
// discarded by the writer exiting.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Dropped reports how many realtime frames were dropped on the floor.
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}
