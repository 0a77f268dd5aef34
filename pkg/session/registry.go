package session

import (
	"log/slog"
	"sync"
)

// Registry tracks live sessions by connection id and by client identity.
// The client binding is established at initialize time; a client reconnecting
// under the same id takes over the binding from the old connection.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Session
	byClient map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*Session),
		byClient: make(map[string]*Session),
	}
}

// Add registers a freshly accepted session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
}

// Remove drops a session and, if it holds the client binding, frees it.
// Returns the session so the caller can finish teardown.
func (r *Registry) Remove(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	if cid := s.ClientID(); cid != "" && r.byClient[cid] == s {
		delete(r.byClient, cid)
	}
	return s
}

// Bind attaches a client identity to a session after initialize. When the
// client already has a live session the newest connection wins and the old
// one is closed.
func (r *Registry) Bind(s *Session, clientID string) {
	r.mu.Lock()
	old := r.byClient[clientID]
	r.byClient[clientID] = s
	r.mu.Unlock()

	if old != nil && old != s {
		slog.Warn("Client reconnected, closing previous session",
			"client_id", clientID,
			"old_session", old.ID,
			"new_session", s.ID)
		old.Close()
	}
}

// Client returns the live session bound to a client identity.
func (r *Registry) Client(clientID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byClient[clientID]
	return s, ok
}

// Get returns a session by connection id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// CloseAll closes every live session. Used during shutdown; the transport
// unwinds each connection as its session closes.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}
