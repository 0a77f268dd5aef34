// Package schema serves the hub's discovery surface: the capability
// document returned by initialize and mcpe/capabilities, and the
// per-operation schemas returned by mcpe/schema. Agent clients use these to
// construct valid calls without out-of-band documentation. Both documents
// are computed once at startup.
package schema

import (
	"github.com/mcpe-dev/hub/pkg/models"
)

// ServerInfo identifies the hub build.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// SubscriptionCaps advertises subscription limits and enums.
type SubscriptionCaps struct {
	MaxActivePerClient int      `json:"max_active_per_client"`
	Channels           []string `json:"channels"`
	Priorities         []string `json:"priorities"`
}

// FilterCaps advertises which filter dimensions the hub matches on.
type FilterCaps struct {
	EventTypeWildcards bool `json:"event_type_wildcards"`
	Tags               bool `json:"tags"`
	Priorities         bool `json:"priorities"`
	Sources            bool `json:"sources"`
}

// SchedulingCaps advertises aggregated delivery support.
type SchedulingCaps struct {
	Cron                    bool     `json:"cron"`
	CronPresets             []string `json:"cron_presets"`
	Scheduled               bool     `json:"scheduled"`
	Timezones               string   `json:"timezones"`
	MaxEventsPerDeliveryCap int      `json:"max_events_per_delivery_cap"`
}

// HandlerCaps advertises supported handler descriptor types.
type HandlerCaps struct {
	Types []string `json:"types"`
}

// AcknowledgeCaps advertises acknowledge semantics.
type AcknowledgeCaps struct {
	Durable bool `json:"durable"`
}

// Capabilities is the capability document.
type Capabilities struct {
	ProtocolVersions []string         `json:"protocol_versions"`
	ServerInfo       ServerInfo       `json:"server_info"`
	Subscriptions    SubscriptionCaps `json:"subscriptions"`
	Filters          FilterCaps       `json:"filters"`
	Scheduling       SchedulingCaps   `json:"scheduling"`
	Handlers         HandlerCaps      `json:"handlers"`
	Acknowledge      AcknowledgeCaps  `json:"acknowledge"`
}

// OperationSchema describes one client-callable method. Input and Output
// are JSON-schema-shaped maps.
type OperationSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Input       map[string]any `json:"input"`
	Output      map[string]any `json:"output"`
	Example     map[string]any `json:"example,omitempty"`
}

// Service holds the precomputed discovery documents.
type Service struct {
	caps Capabilities
	ops  []OperationSchema
}

// New computes the discovery documents from build and config values.
func New(serverName, serverVersion, protocolVersion string, maxPerClient, deliveryCap int) *Service {
	return &Service{
		caps: Capabilities{
			ProtocolVersions: []string{protocolVersion},
			ServerInfo:       ServerInfo{Name: serverName, Version: serverVersion},
			Subscriptions: SubscriptionCaps{
				MaxActivePerClient: maxPerClient,
				Channels: []string{
					string(models.ChannelRealtime),
					string(models.ChannelCron),
					string(models.ChannelScheduled),
				},
				Priorities: priorityNames(),
			},
			Filters: FilterCaps{
				EventTypeWildcards: true,
				Tags:               true,
				Priorities:         true,
				Sources:            true,
			},
			Scheduling: SchedulingCaps{
				Cron:                    true,
				CronPresets:             models.CronPresets,
				Scheduled:               true,
				Timezones:               "IANA",
				MaxEventsPerDeliveryCap: deliveryCap,
			},
			Handlers: HandlerCaps{
				Types: []string{
					string(models.HandlerBash),
					string(models.HandlerWebhook),
					string(models.HandlerAgent),
				},
			},
			Acknowledge: AcknowledgeCaps{Durable: false},
		},
		ops: operations(),
	}
}

// Capabilities returns the capability document.
func (s *Service) Capabilities() Capabilities {
	return s.caps
}

// Operations returns the operation schemas, one per client-callable method.
func (s *Service) Operations() []OperationSchema {
	return s.ops
}

func priorityNames() []string {
	ps := models.Priorities()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
