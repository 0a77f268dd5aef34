package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/mcpe-dev/hub/pkg/metrics"
	"github.com/mcpe-dev/hub/pkg/models"
	"github.com/mcpe-dev/hub/pkg/schema"
	"github.com/mcpe-dev/hub/pkg/session"
	"github.com/mcpe-dev/hub/pkg/subscription"
	"github.com/mcpe-dev/hub/pkg/wire"
)

// Dispatcher routes decoded requests to subscription operations. Initialize
// and ping are the only methods allowed before the handshake completes.
type Dispatcher struct {
	manager  *subscription.Manager
	schemas  *schema.Service
	registry *session.Registry
	limit    int
	mtr      *metrics.Metrics
}

// NewDispatcher creates a dispatcher. limit is the per-client subscription
// cap, reported in -32002 errors.
func NewDispatcher(manager *subscription.Manager, schemas *schema.Service, registry *session.Registry, limit int, mtr *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		manager:  manager,
		schemas:  schemas,
		registry: registry,
		limit:    limit,
		mtr:      mtr,
	}
}

// Dispatch handles one inbound frame and returns the response frame, or nil
// for notifications.
func (d *Dispatcher) Dispatch(_ context.Context, sess *session.Session, data []byte) []byte {
	msg, decErr := wire.Decode(data)
	if decErr != nil {
		d.mtr.RPCError(strconv.Itoa(decErr.Code))
		return encode(wire.NewErrorResponse(wire.NullID, decErr))
	}

	if msg.IsNotification() {
		slog.Debug("Ignoring inbound notification",
			"method", msg.Method, "session_id", sess.ID)
		return nil
	}

	d.mtr.RPCRequest(msg.Method)

	result, rpcErr := d.call(sess, msg)
	if rpcErr != nil {
		d.mtr.RPCError(strconv.Itoa(rpcErr.Code))
		slog.Debug("RPC request failed",
			"method", msg.Method, "code", rpcErr.Code, "session_id", sess.ID)
		return encode(wire.NewErrorResponse(msg.ID, rpcErr))
	}

	resp, err := wire.NewResponse(msg.ID, result)
	if err != nil {
		d.mtr.RPCError(strconv.Itoa(wire.CodeInternalError))
		slog.Error("Failed to marshal RPC result",
			"method", msg.Method, "error", err)
		return encode(wire.NewErrorResponse(msg.ID, wire.ErrInternal("failed to encode result")))
	}
	return encode(resp)
}

func encode(msg *wire.Message) []byte {
	data, err := msg.Encode()
	if err != nil {
		slog.Error("Failed to encode response frame", "error", err)
		return nil
	}
	return data
}

func (d *Dispatcher) call(sess *session.Session, msg *wire.Message) (result any, rpcErr *wire.Error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("RPC handler panicked", "method", msg.Method, "panic", r)
			result, rpcErr = nil, wire.ErrInternal("internal error")
		}
	}()

	if !sess.Initialized() && msg.Method != MethodInitialize && msg.Method != MethodPing {
		return nil, wire.ErrNotInitialized()
	}

	switch msg.Method {
	case MethodInitialize:
		return d.initialize(sess, msg.Params)
	case MethodPing:
		return struct{}{}, nil
	case MethodCapabilities:
		return d.schemas.Capabilities(), nil
	case MethodSchema:
		return SchemaResult{Operations: d.schemas.Operations()}, nil
	case MethodCreate:
		return d.create(sess, msg.Params)
	case MethodRemove:
		return d.remove(sess, msg.Params)
	case MethodList:
		return d.list(sess, msg.Params)
	case MethodUpdate:
		return d.update(sess, msg.Params)
	case MethodPause:
		return d.toggle(sess, msg.Params, d.manager.Pause)
	case MethodResume:
		return d.toggle(sess, msg.Params, d.manager.Resume)
	case MethodAcknowledge:
		return d.acknowledge(sess, msg.Params)
	default:
		return nil, wire.ErrMethodNotFound(msg.Method)
	}
}

func (d *Dispatcher) initialize(sess *session.Session, params json.RawMessage) (any, *wire.Error) {
	var p InitializeParams
	if perr := wire.UnmarshalParams(params, &p); perr != nil {
		return nil, perr
	}
	if p.ProtocolVersion != ProtocolVersion {
		return nil, wire.NewError(wire.CodeInvalidParams, "Invalid params").WithData(map[string]any{
			"detail":             fmt.Sprintf("unsupported protocol version %q", p.ProtocolVersion),
			"supported_versions": []string{ProtocolVersion},
		})
	}

	var clientID, clientName string
	if p.ClientInfo != nil {
		clientID = p.ClientInfo.ClientID
		clientName = p.ClientInfo.Name
	}
	if clientID == "" {
		// Anonymous clients get a fresh identity per connection; they
		// cannot reattach after a disconnect.
		clientID = "client-" + uuid.New().String()[:8]
	}

	if err := sess.Initialize(clientID, p.ProtocolVersion); err != nil {
		return nil, wire.ErrInvalidRequest("session already initialized")
	}

	d.registry.Bind(sess, clientID)
	if d.manager.Reattach(clientID) {
		d.mtr.SessionReattached()
		slog.Info("Client reattached to detached subscriptions",
			"client_id", clientID, "session_id", sess.ID)
	}

	slog.Info("Session initialized",
		"session_id", sess.ID, "client_id", clientID, "client_name", clientName)

	caps := d.schemas.Capabilities()
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      caps.ServerInfo,
		Capabilities:    caps,
	}, nil
}

func (d *Dispatcher) create(sess *session.Session, params json.RawMessage) (any, *wire.Error) {
	var p CreateParams
	if perr := wire.UnmarshalParams(params, &p); perr != nil {
		return nil, perr
	}

	sub, err := d.manager.Create(sess.ClientID(), &models.Subscription{
		Filter:    p.Filter,
		Delivery:  p.Delivery,
		Handler:   p.Handler,
		ExpiresAt: p.ExpiresAt,
	})
	if err != nil {
		return nil, d.domainError(err, "")
	}
	return sub, nil
}

func (d *Dispatcher) remove(sess *session.Session, params json.RawMessage) (any, *wire.Error) {
	var p SubscriptionIDParams
	if perr := wire.UnmarshalParams(params, &p); perr != nil {
		return nil, perr
	}
	if p.SubscriptionID == "" {
		return nil, wire.ErrInvalidParams("subscription_id is required")
	}
	if err := d.manager.Remove(sess.ClientID(), p.SubscriptionID); err != nil {
		return nil, d.domainError(err, p.SubscriptionID)
	}
	return RemoveResult{Success: true}, nil
}

func (d *Dispatcher) list(sess *session.Session, params json.RawMessage) (any, *wire.Error) {
	var p ListParams
	if perr := wire.UnmarshalParams(params, &p); perr != nil {
		return nil, perr
	}
	var status *models.SubscriptionStatus
	if p.Status != "" {
		s := models.SubscriptionStatus(p.Status)
		if !s.IsValid() {
			return nil, wire.ErrInvalidParams("unknown status " + p.Status)
		}
		status = &s
	}
	subs := d.manager.List(sess.ClientID(), status)
	return ListResult{Subscriptions: subs, Count: len(subs)}, nil
}

func (d *Dispatcher) update(sess *session.Session, params json.RawMessage) (any, *wire.Error) {
	var p UpdateParams
	if perr := wire.UnmarshalParams(params, &p); perr != nil {
		return nil, perr
	}
	if p.SubscriptionID == "" {
		return nil, wire.ErrInvalidParams("subscription_id is required")
	}
	sub, err := d.manager.Apply(sess.ClientID(), p.SubscriptionID, subscription.Update{
		Filter:    p.Filter,
		Delivery:  p.Delivery,
		Handler:   p.Handler,
		ExpiresAt: p.ExpiresAt,
	})
	if err != nil {
		return nil, d.domainError(err, p.SubscriptionID)
	}
	return sub, nil
}

func (d *Dispatcher) toggle(sess *session.Session, params json.RawMessage, fn func(clientID, subID string) (*models.Subscription, error)) (any, *wire.Error) {
	var p SubscriptionIDParams
	if perr := wire.UnmarshalParams(params, &p); perr != nil {
		return nil, perr
	}
	if p.SubscriptionID == "" {
		return nil, wire.ErrInvalidParams("subscription_id is required")
	}
	sub, err := fn(sess.ClientID(), p.SubscriptionID)
	if err != nil {
		return nil, d.domainError(err, p.SubscriptionID)
	}
	return ToggleResult{Success: true, Status: sub.Status}, nil
}

func (d *Dispatcher) acknowledge(sess *session.Session, params json.RawMessage) (any, *wire.Error) {
	var p AcknowledgeParams
	if perr := wire.UnmarshalParams(params, &p); perr != nil {
		return nil, perr
	}
	slog.Debug("Acknowledge received",
		"session_id", sess.ID,
		"subscription_id", p.SubscriptionID,
		"events", len(p.EventIDs))
	return AcknowledgeResult{Success: true}, nil
}

// domainError maps manager errors onto wire codes.
func (d *Dispatcher) domainError(err error, subID string) *wire.Error {
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		return wire.ErrSubscriptionNotFound(subID)
	case errors.Is(err, subscription.ErrLimitExceeded):
		return wire.ErrLimitExceeded(d.limit)
	}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return wire.NewError(wire.CodeInvalidParams, "Invalid params").WithData(map[string]string{
			"field":   verr.Field,
			"message": verr.Message,
		})
	}
	var rpcErr *wire.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return wire.ErrInternal(err.Error())
}
