package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus tracks the subscription lifecycle: active and paused
// are interchangeable, expired is terminal.
type SubscriptionStatus string

const (
	StatusActive  SubscriptionStatus = "active"
	StatusPaused  SubscriptionStatus = "paused"
	StatusExpired SubscriptionStatus = "expired"
)

// IsValid checks if the status is recognized.
func (s SubscriptionStatus) IsValid() bool {
	return s == StatusActive || s == StatusPaused || s == StatusExpired
}

// IsTerminal reports whether the status admits no further transitions.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == StatusExpired
}

// NewSubscriptionID returns a fresh id of the form "sub-<8 hex chars>".
func NewSubscriptionID() string {
	return "sub-" + uuid.New().String()[:8]
}

// Subscription binds a client's filter to delivery preferences and an
// optional handler descriptor.
type Subscription struct {
	ID        string              `json:"id"`
	ClientID  string              `json:"client_id"`
	Filter    *Filter             `json:"filter,omitempty"`
	Delivery  DeliveryPreferences `json:"delivery"`
	Handler   *HandlerSpec        `json:"handler,omitempty"`
	Status    SubscriptionStatus  `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
}

// Class resolves the subscription's delivery class.
func (s *Subscription) Class() Channel {
	return s.Delivery.Class()
}

// Deliverable reports whether matched events should reach this subscription.
func (s *Subscription) Deliverable() bool {
	return s.Status == StatusActive
}

// ExpiredBy reports whether the explicit expires_at deadline has passed.
// Scheduled-delivery auto-expiry is handled by the scheduler, not here.
func (s *Subscription) ExpiredBy(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// Validate checks the full subscription against now. The zero filter is
// valid and matches every event.
func (s *Subscription) Validate(now time.Time) error {
	if s.ClientID == "" {
		return NewValidationError("client_id", "client_id is required")
	}
	if s.Filter != nil {
		if err := s.Filter.Validate(); err != nil {
			return err
		}
	}
	if err := s.Delivery.Validate(now); err != nil {
		return err
	}
	if s.Handler != nil {
		if err := s.Handler.Validate(); err != nil {
			return err
		}
	}
	if s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
		return NewValidationError("expires_at", "expires_at must be in the future")
	}
	if !s.Status.IsValid() {
		return NewValidationError("status", "unknown status: "+string(s.Status))
	}
	return nil
}

// Clone returns a deep copy safe to hand outside the manager's lock.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	out := *s
	out.Filter = s.Filter.Clone()
	d := s.Delivery.Clone()
	out.Delivery = *d
	out.Handler = s.Handler.Clone()
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}
