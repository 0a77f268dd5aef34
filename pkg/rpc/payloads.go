// Package rpc interprets decoded frames: the method table, the initialize
// gate, parameter decoding, and the mapping from domain errors to wire
// codes. It also builds the hub-to-client notification frames.
package rpc

import (
	"time"

	"github.com/mcpe-dev/hub/pkg/models"
	"github.com/mcpe-dev/hub/pkg/schema"
	"github.com/mcpe-dev/hub/pkg/wire"
)

// ProtocolVersion is the protocol version this hub speaks.
const ProtocolVersion = "2025-01-01"

// Client-callable methods.
const (
	MethodInitialize   = "initialize"
	MethodPing         = "ping"
	MethodCapabilities = "mcpe/capabilities"
	MethodSchema       = "mcpe/schema"
	MethodCreate       = "subscriptions/create"
	MethodRemove       = "subscriptions/remove"
	MethodList         = "subscriptions/list"
	MethodUpdate       = "subscriptions/update"
	MethodPause        = "subscriptions/pause"
	MethodResume       = "subscriptions/resume"
	MethodAcknowledge  = "events/acknowledge"
)

// Hub-to-client notification methods.
const (
	NotifyEvent   = "events/event"
	NotifyBatch   = "events/batch"
	NotifyExpired = "notifications/subscription_expired"
)

// ClientInfo identifies the connecting client. ClientID is the stable
// identity that subscription ownership and reconnect grace key on.
type ClientInfo struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// InitializeParams opens a session.
type InitializeParams struct {
	ProtocolVersion string      `json:"protocol_version"`
	ClientInfo      *ClientInfo `json:"client_info,omitempty"`
}

// InitializeResult completes the handshake.
type InitializeResult struct {
	ProtocolVersion string              `json:"protocol_version"`
	ServerInfo      schema.ServerInfo   `json:"server_info"`
	Capabilities    schema.Capabilities `json:"capabilities"`
}

// CreateParams creates a subscription.
type CreateParams struct {
	Filter    *models.Filter             `json:"filter,omitempty"`
	Delivery  models.DeliveryPreferences `json:"delivery"`
	Handler   *models.HandlerSpec        `json:"handler,omitempty"`
	ExpiresAt *time.Time                 `json:"expires_at,omitempty"`
}

// SubscriptionIDParams addresses one subscription.
type SubscriptionIDParams struct {
	SubscriptionID string `json:"subscription_id"`
}

// ListParams optionally narrows a list to one status.
type ListParams struct {
	Status string `json:"status,omitempty"`
}

// ListResult carries the caller's subscriptions.
type ListResult struct {
	Subscriptions []*models.Subscription `json:"subscriptions"`
	Count         int                    `json:"count"`
}

// UpdateParams is a partial update; nil fields stay unchanged.
type UpdateParams struct {
	SubscriptionID string                      `json:"subscription_id"`
	Filter         *models.Filter              `json:"filter,omitempty"`
	Delivery       *models.DeliveryPreferences `json:"delivery,omitempty"`
	Handler        *models.HandlerSpec         `json:"handler,omitempty"`
	ExpiresAt      *time.Time                  `json:"expires_at,omitempty"`
}

// RemoveResult confirms a removal.
type RemoveResult struct {
	Success bool `json:"success"`
}

// ToggleResult reports the status a pause or resume left the subscription in.
type ToggleResult struct {
	Success bool                      `json:"success"`
	Status  models.SubscriptionStatus `json:"status"`
}

// AcknowledgeParams names delivered events. Accepted and ignored: delivery
// is best-effort and nothing is retained for redelivery.
type AcknowledgeParams struct {
	SubscriptionID string   `json:"subscription_id,omitempty"`
	EventIDs       []string `json:"event_ids,omitempty"`
}

// AcknowledgeResult confirms receipt of an acknowledge.
type AcknowledgeResult struct {
	Success bool `json:"success"`
}

// SchemaResult carries the operation schemas.
type SchemaResult struct {
	Operations []schema.OperationSchema `json:"operations"`
}

// EventParams is the payload of an events/event notification.
type EventParams struct {
	SubscriptionID string        `json:"subscription_id"`
	Event          *models.Event `json:"event"`
}

// BatchWindow reports the fire instant of an aggregated delivery.
type BatchWindow struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// BatchParams is the payload of an events/batch notification.
type BatchParams struct {
	SubscriptionID string          `json:"subscription_id"`
	Events         []*models.Event `json:"events"`
	Count          int             `json:"count"`
	Window         *BatchWindow    `json:"window,omitempty"`
}

// ExpiredParams is the payload of a subscription_expired notification.
type ExpiredParams struct {
	SubscriptionID string    `json:"subscription_id"`
	ExpiredAt      time.Time `json:"expired_at"`
}

// NewEventNotification frames one realtime event for a subscription.
func NewEventNotification(subID string, event *models.Event) ([]byte, error) {
	msg, err := wire.NewNotification(NotifyEvent, EventParams{
		SubscriptionID: subID,
		Event:          event,
	})
	if err != nil {
		return nil, err
	}
	return msg.Encode()
}

// NewBatchNotification frames an aggregated delivery. A zero scheduledFor
// omits the window.
func NewBatchNotification(subID string, events []*models.Event, scheduledFor time.Time) ([]byte, error) {
	if events == nil {
		// An empty fire still delivers "events": [] on the wire.
		events = []*models.Event{}
	}
	params := BatchParams{
		SubscriptionID: subID,
		Events:         events,
		Count:          len(events),
	}
	if !scheduledFor.IsZero() {
		params.Window = &BatchWindow{ScheduledFor: scheduledFor}
	}
	msg, err := wire.NewNotification(NotifyBatch, params)
	if err != nil {
		return nil, err
	}
	return msg.Encode()
}

// NewExpiredNotification frames a subscription_expired notification.
func NewExpiredNotification(subID string, expiredAt time.Time) ([]byte, error) {
	msg, err := wire.NewNotification(NotifyExpired, ExpiredParams{
		SubscriptionID: subID,
		ExpiredAt:      expiredAt,
	})
	if err != nil {
		return nil, err
	}
	return msg.Encode()
}
