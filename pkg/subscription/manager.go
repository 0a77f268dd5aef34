// Package subscription implements the hub's subscription table: lifecycle
// transitions, per-client limits, ownership checks, match-index maintenance,
// and the reaper that enforces expirations and reconnect grace.
//
// One mutex guards the table, the index, and the per-client sets. Scheduler
// hooks are invoked while that mutex is held; the scheduler must never call
// back into the manager while holding its own lock.
package subscription

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mcpe-dev/hub/pkg/match"
	"github.com/mcpe-dev/hub/pkg/metrics"
	"github.com/mcpe-dev/hub/pkg/models"
)

// Hook receives lifecycle changes the scheduler must mirror. Arm is called
// for subscriptions entering a deliverable aggregating state, Disarm when a
// subscription stops being schedulable.
type Hook interface {
	Arm(sub *models.Subscription)
	Disarm(subID string)
}

// NopHook ignores all lifecycle changes. Useful in tests.
type NopHook struct{}

func (NopHook) Arm(*models.Subscription) {}
func (NopHook) Disarm(string)            {}

// Candidate is the routing view of a matched subscription, safe to use
// without the manager lock. The handler spec is shared read-only state.
type Candidate struct {
	ID       string
	ClientID string
	Class    models.Channel
	Handler  *models.HandlerSpec
}

// Update carries a partial subscription update. Nil fields stay unchanged.
type Update struct {
	Filter    *models.Filter
	Delivery  *models.DeliveryPreferences
	Handler   *models.HandlerSpec
	ExpiresAt *time.Time
}

// Manager owns the subscription table.
type Manager struct {
	limit int
	grace time.Duration
	hook  Hook
	mtr   *metrics.Metrics

	mu       sync.RWMutex
	subs     map[string]*models.Subscription
	index    *match.Index
	byClient map[string]map[string]struct{}
	detached map[string]time.Time // client id -> disconnect instant

	now func() time.Time
}

// NewManager creates a manager enforcing limit live subscriptions per client
// and retaining disconnected clients' subscriptions for grace.
func NewManager(limit int, grace time.Duration, hook Hook, mtr *metrics.Metrics) *Manager {
	if hook == nil {
		hook = NopHook{}
	}
	return &Manager{
		limit:    limit,
		grace:    grace,
		hook:     hook,
		mtr:      mtr,
		subs:     make(map[string]*models.Subscription),
		index:    match.NewIndex(),
		byClient: make(map[string]map[string]struct{}),
		detached: make(map[string]time.Time),
		now:      time.Now,
	}
}

// SetHook wires the scheduler in after construction; the manager and the
// scheduler reference each other, so one side has to be bound late. Call
// before the manager serves traffic.
func (m *Manager) SetHook(hook Hook) {
	if hook == nil {
		hook = NopHook{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// Create validates and stores a new subscription for clientID. The caller
// provides filter, delivery, handler, and expires_at; server-assigned fields
// are overwritten. On return the subscription is active and routable.
func (m *Manager) Create(clientID string, sub *models.Subscription) (*models.Subscription, error) {
	now := m.now().UTC()

	sub = sub.Clone()
	sub.ClientID = clientID
	sub.Status = models.StatusActive
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if err := sub.Validate(now); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.liveCountLocked(clientID) >= m.limit {
		return nil, ErrLimitExceeded
	}

	sub.ID = models.NewSubscriptionID()
	for _, exists := m.subs[sub.ID]; exists; _, exists = m.subs[sub.ID] {
		sub.ID = models.NewSubscriptionID()
	}

	m.subs[sub.ID] = sub
	owned := m.byClient[clientID]
	if owned == nil {
		owned = make(map[string]struct{})
		m.byClient[clientID] = owned
	}
	owned[sub.ID] = struct{}{}
	m.indexLocked(sub)
	if sub.Class().Aggregating() {
		m.hook.Arm(sub)
	}

	m.mtr.SubscriptionCreated()
	slog.Debug("Subscription created",
		"subscription_id", sub.ID,
		"client_id", clientID,
		"class", sub.Class(),
		"status", sub.Status)
	return sub.Clone(), nil
}

// Get returns the client's subscription by id.
func (m *Manager) Get(clientID, subID string) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, err := m.ownedLocked(clientID, subID)
	if err != nil {
		return nil, err
	}
	return sub.Clone(), nil
}

// List returns the client's subscriptions, optionally filtered by status,
// ordered by creation time.
func (m *Manager) List(clientID string, status *models.SubscriptionStatus) []*models.Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Subscription, 0, len(m.byClient[clientID]))
	for id := range m.byClient[clientID] {
		sub := m.subs[id]
		if status != nil && sub.Status != *status {
			continue
		}
		out = append(out, sub.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Remove deletes the client's subscription. After return no new dispatches
// for it will occur.
func (m *Manager) Remove(clientID, subID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, err := m.ownedLocked(clientID, subID)
	if err != nil {
		return err
	}
	m.dropLocked(sub)
	if sub.Status != models.StatusExpired {
		m.mtr.SubscriptionRemoved()
	}

	slog.Debug("Subscription removed", "subscription_id", subID, "client_id", clientID)
	return nil
}

// Pause suspends delivery. Pausing a paused subscription is a no-op;
// a terminal subscription cannot be paused.
func (m *Manager) Pause(clientID, subID string) (*models.Subscription, error) {
	return m.setStatus(clientID, subID, models.StatusPaused)
}

// Resume reactivates a paused subscription. Resuming an active subscription
// is a no-op; a terminal subscription cannot be resumed.
func (m *Manager) Resume(clientID, subID string) (*models.Subscription, error) {
	return m.setStatus(clientID, subID, models.StatusActive)
}

func (m *Manager) setStatus(clientID, subID string, status models.SubscriptionStatus) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, err := m.ownedLocked(clientID, subID)
	if err != nil {
		return nil, err
	}
	if sub.Status == models.StatusExpired {
		return nil, models.NewValidationError("subscription_id", "subscription is expired")
	}
	if sub.Status == status {
		return sub.Clone(), nil
	}

	sub.Status = status
	sub.UpdatedAt = m.now().UTC()
	switch status {
	case models.StatusActive:
		m.indexLocked(sub)
		if sub.Class().Aggregating() {
			m.hook.Arm(sub)
		}
	case models.StatusPaused:
		m.index.Remove(sub.ID)
		m.hook.Disarm(sub.ID)
	}

	slog.Debug("Subscription status changed",
		"subscription_id", subID,
		"client_id", clientID,
		"status", status)
	return sub.Clone(), nil
}

// Apply merges a partial update into the client's subscription. The merged
// result is validated before anything is committed; the index and scheduler
// are refreshed when the update touches filter or delivery.
func (m *Manager) Apply(clientID, subID string, upd Update) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, err := m.ownedLocked(clientID, subID)
	if err != nil {
		return nil, err
	}
	if sub.Status == models.StatusExpired {
		return nil, models.NewValidationError("subscription_id", "subscription is expired")
	}

	now := m.now().UTC()
	next := sub.Clone()
	if upd.Filter != nil {
		next.Filter = upd.Filter.Clone()
	}
	if upd.Delivery != nil {
		next.Delivery = *upd.Delivery.Clone()
	}
	if upd.Handler != nil {
		next.Handler = upd.Handler.Clone()
	}
	if upd.ExpiresAt != nil {
		t := upd.ExpiresAt.UTC()
		next.ExpiresAt = &t
	}
	next.UpdatedAt = now
	if err := next.Validate(now); err != nil {
		return nil, err
	}

	deliveryChanged := upd.Delivery != nil
	m.subs[subID] = next
	if next.Status == models.StatusActive {
		if upd.Filter != nil {
			m.indexLocked(next)
		}
		if deliveryChanged {
			// Arm re-inserts in place and keeps the aggregation buffer, so
			// pending events survive a schedule or cap change. Disarm only
			// when switching to realtime: that discards the buffer.
			if next.Class().Aggregating() {
				m.hook.Arm(next)
			} else {
				m.hook.Disarm(subID)
			}
		}
	}

	slog.Debug("Subscription updated",
		"subscription_id", subID,
		"client_id", clientID,
		"class", next.Class())
	return next.Clone(), nil
}

// Candidates returns the routing view of every active subscription whose
// filter matches the event.
func (m *Manager) Candidates(event *models.Event) []Candidate {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.index.Lookup(event.Type)
	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		sub := m.subs[id]
		if sub == nil || !sub.Deliverable() {
			continue
		}
		if !sub.Filter.Matches(event) {
			continue
		}
		out = append(out, Candidate{
			ID:       sub.ID,
			ClientID: sub.ClientID,
			Class:    sub.Class(),
			Handler:  sub.Handler,
		})
	}
	return out
}

// Expire transitions a subscription to the terminal state regardless of
// owner, returning its final snapshot. The scheduler uses this for
// auto-expiring scheduled deliveries.
func (m *Manager) Expire(subID string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[subID]
	if !ok {
		return nil, ErrNotFound
	}
	if sub.Status == models.StatusExpired {
		return sub.Clone(), nil
	}
	m.expireLocked(sub)
	return sub.Clone(), nil
}

// ReapExpired transitions every subscription whose expires_at has passed.
// It returns the final snapshots so the caller can notify owners.
func (m *Manager) ReapExpired(now time.Time) []*models.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped []*models.Subscription
	for _, sub := range m.subs {
		if sub.Status == models.StatusExpired || !sub.ExpiredBy(now) {
			continue
		}
		m.expireLocked(sub)
		reaped = append(reaped, sub.Clone())
	}
	return reaped
}

// Detach records that the client disconnected. Its subscriptions stay live
// for the grace period so a reconnecting client finds them intact.
func (m *Manager) Detach(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.byClient[clientID]) == 0 {
		return
	}
	m.detached[clientID] = m.now().UTC()
	slog.Debug("Client detached",
		"client_id", clientID,
		"subscriptions", len(m.byClient[clientID]),
		"grace", m.grace)
}

// Reattach clears the client's detach mark. It reports whether any
// subscriptions were waiting for the client.
func (m *Manager) Reattach(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.detached, clientID)
	return len(m.byClient[clientID]) > 0
}

// ReapDetached removes every subscription belonging to clients whose grace
// period elapsed without a reconnect. Removal, not expiry: a client that
// never returns gets no tombstones.
func (m *Manager) ReapDetached(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped []string
	for clientID, at := range m.detached {
		if now.Sub(at) < m.grace {
			continue
		}
		for id := range m.byClient[clientID] {
			sub := m.subs[id]
			m.dropLocked(sub)
			if sub.Status != models.StatusExpired {
				m.mtr.SubscriptionRemoved()
			}
		}
		delete(m.detached, clientID)
		reaped = append(reaped, clientID)
		slog.Info("Reaped subscriptions of departed client", "client_id", clientID)
	}
	return reaped
}

// LiveCount reports the client's subscriptions counting against the limit.
func (m *Manager) LiveCount(clientID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.liveCountLocked(clientID)
}

// Len reports the total number of stored subscriptions, tombstones included.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// liveCountLocked counts active and paused subscriptions; expired tombstones
// are free.
func (m *Manager) liveCountLocked(clientID string) int {
	n := 0
	for id := range m.byClient[clientID] {
		if m.subs[id].Status != models.StatusExpired {
			n++
		}
	}
	return n
}

func (m *Manager) ownedLocked(clientID, subID string) (*models.Subscription, error) {
	sub, ok := m.subs[subID]
	if !ok || sub.ClientID != clientID {
		return nil, ErrNotFound
	}
	return sub, nil
}

func (m *Manager) indexLocked(sub *models.Subscription) {
	var types []string
	if sub.Filter != nil {
		types = sub.Filter.EventTypes
	}
	m.index.Add(sub.ID, types)
}

// expireLocked performs the terminal transition: unroutable, unscheduled,
// tombstone retained for list visibility.
func (m *Manager) expireLocked(sub *models.Subscription) {
	sub.Status = models.StatusExpired
	sub.UpdatedAt = m.now().UTC()
	m.index.Remove(sub.ID)
	m.hook.Disarm(sub.ID)
	m.mtr.SubscriptionExpired()
	slog.Debug("Subscription expired", "subscription_id", sub.ID, "client_id", sub.ClientID)
}

// dropLocked removes a subscription from every structure.
func (m *Manager) dropLocked(sub *models.Subscription) {
	delete(m.subs, sub.ID)
	if owned := m.byClient[sub.ClientID]; owned != nil {
		delete(owned, sub.ID)
		if len(owned) == 0 {
			delete(m.byClient, sub.ClientID)
		}
	}
	m.index.Remove(sub.ID)
	m.hook.Disarm(sub.ID)
}
