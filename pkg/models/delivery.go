package models

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Channel selects how matched events reach the client.
type Channel string

const (
	// ChannelRealtime pushes each matched event immediately.
	ChannelRealtime Channel = "realtime"
	// ChannelCron aggregates matched events and flushes on a recurring schedule.
	ChannelCron Channel = "cron"
	// ChannelScheduled aggregates until a single absolute time, then flushes once.
	ChannelScheduled Channel = "scheduled"
)

// IsValid checks if the channel is recognized.
func (c Channel) IsValid() bool {
	return c == ChannelRealtime || c == ChannelCron || c == ChannelScheduled
}

// Aggregating reports whether the channel buffers events instead of pushing
// them one by one.
func (c Channel) Aggregating() bool {
	return c == ChannelCron || c == ChannelScheduled
}

// Channels lists all supported delivery channels.
func Channels() []Channel {
	return []Channel{ChannelRealtime, ChannelCron, ChannelScheduled}
}

// DefaultMaxEventsPerDelivery bounds a cron batch when the subscription does
// not specify its own limit.
const DefaultMaxEventsPerDelivery = 100

// CronPresets are the shorthand schedules accepted in place of a five-field
// expression.
var CronPresets = []string{"@hourly", "@daily", "@weekly", "@monthly"}

// cronParser accepts five-field POSIX expressions (minute hour dom month dow)
// plus descriptors. Descriptors outside CronPresets are rejected before
// parsing.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronSchedule configures recurring aggregated delivery.
type CronSchedule struct {
	Expression           string `json:"expression"`                       // five-field POSIX cron or a preset
	Timezone             string `json:"timezone,omitempty"`               // IANA name; firing decisions use this zone (default UTC)
	AggregateEvents      *bool  `json:"aggregate_events,omitempty"`       // default true: suppress empty batches
	MaxEventsPerDelivery int    `json:"max_events_per_delivery,omitempty"` // default 100; overflow drops oldest
}

// Aggregate reports the aggregate_events setting with its default (true).
func (c *CronSchedule) Aggregate() bool {
	return c.AggregateEvents == nil || *c.AggregateEvents
}

// BatchLimit returns the effective per-delivery cap.
func (c *CronSchedule) BatchLimit() int {
	if c.MaxEventsPerDelivery <= 0 {
		return DefaultMaxEventsPerDelivery
	}
	return c.MaxEventsPerDelivery
}

// Schedule parses the expression in the schedule's timezone. The returned
// schedule computes fire instants in that zone; callers store them as UTC.
func (c *CronSchedule) Schedule() (cron.Schedule, error) {
	spec := c.Expression
	if tz := c.timezone(); tz != "" {
		spec = "CRON_TZ=" + tz + " " + spec
	}
	return cronParser.Parse(spec)
}

func (c *CronSchedule) timezone() string {
	if c.Timezone == "" {
		return "UTC"
	}
	return c.Timezone
}

// Validate checks the expression, preset, timezone, and batch limit.
func (c *CronSchedule) Validate() error {
	if c.Expression == "" {
		return NewValidationError("delivery.cron_schedule.expression", "cron expression is required")
	}
	if strings.HasPrefix(c.Expression, "@") && !isCronPreset(c.Expression) {
		return NewValidationError("delivery.cron_schedule.expression",
			"unknown preset "+c.Expression+" (supported: "+strings.Join(CronPresets, ", ")+")")
	}
	if _, err := time.LoadLocation(c.timezone()); err != nil {
		return NewValidationError("delivery.cron_schedule.timezone", "unknown timezone: "+c.Timezone)
	}
	if _, err := c.Schedule(); err != nil {
		return NewValidationError("delivery.cron_schedule.expression", "invalid cron expression: "+err.Error())
	}
	if c.MaxEventsPerDelivery < 0 {
		return NewValidationError("delivery.cron_schedule.max_events_per_delivery", "must be positive")
	}
	return nil
}

func isCronPreset(expr string) bool {
	for _, p := range CronPresets {
		if p == expr {
			return true
		}
	}
	return false
}

// ScheduledDelivery configures one-shot aggregated delivery at an absolute
// instant.
type ScheduledDelivery struct {
	DeliverAt       time.Time `json:"deliver_at"`                 // absolute UTC fire time
	Timezone        string    `json:"timezone,omitempty"`         // informational; DeliverAt is already absolute
	AggregateEvents *bool     `json:"aggregate_events,omitempty"` // default true
	AutoExpire      *bool     `json:"auto_expire,omitempty"`      // default true: expire the subscription with the flush
}

// Aggregate reports the aggregate_events setting with its default (true).
func (s *ScheduledDelivery) Aggregate() bool {
	return s.AggregateEvents == nil || *s.AggregateEvents
}

// Expire reports the auto_expire setting with its default (true).
func (s *ScheduledDelivery) Expire() bool {
	return s.AutoExpire == nil || *s.AutoExpire
}

// Validate checks the deliver_at instant against now. A deliver_at strictly
// in the past is rejected; equality is allowed (fires immediately).
func (s *ScheduledDelivery) Validate(now time.Time) error {
	if s.DeliverAt.IsZero() {
		return NewValidationError("delivery.scheduled_delivery.deliver_at", "deliver_at is required")
	}
	if s.DeliverAt.Before(now) {
		return NewValidationError("delivery.scheduled_delivery.deliver_at", "deliver_at must not be in the past")
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return NewValidationError("delivery.scheduled_delivery.timezone", "unknown timezone: "+s.Timezone)
		}
	}
	return nil
}

// DeliveryPreferences selects the delivery class and its schedule. A
// subscription is in exactly one class: the first aggregating channel listed
// wins, otherwise realtime.
type DeliveryPreferences struct {
	Channels          []Channel          `json:"channels"`
	CronSchedule      *CronSchedule      `json:"cron_schedule,omitempty"`
	ScheduledDelivery *ScheduledDelivery `json:"scheduled_delivery,omitempty"`
}

// Class resolves the effective delivery class.
func (d *DeliveryPreferences) Class() Channel {
	for _, ch := range d.Channels {
		if ch.Aggregating() {
			return ch
		}
	}
	return ChannelRealtime
}

// Validate checks channel names, the presence of exactly the schedule object
// the class requires, and the schedule itself. now anchors the past-check for
// scheduled delivery.
func (d *DeliveryPreferences) Validate(now time.Time) error {
	if d == nil || len(d.Channels) == 0 {
		return NewValidationError("delivery.channels", "at least one delivery channel is required")
	}
	for _, ch := range d.Channels {
		if !ch.IsValid() {
			return NewValidationError("delivery.channels", "unknown channel: "+string(ch))
		}
	}
	switch d.Class() {
	case ChannelCron:
		if d.CronSchedule == nil {
			return NewValidationError("delivery.cron_schedule", "cron_schedule is required for cron delivery")
		}
		if d.ScheduledDelivery != nil {
			return NewValidationError("delivery.scheduled_delivery", "scheduled_delivery is not allowed for cron delivery")
		}
		return d.CronSchedule.Validate()
	case ChannelScheduled:
		if d.ScheduledDelivery == nil {
			return NewValidationError("delivery.scheduled_delivery", "scheduled_delivery is required for scheduled delivery")
		}
		if d.CronSchedule != nil {
			return NewValidationError("delivery.cron_schedule", "cron_schedule is not allowed for scheduled delivery")
		}
		return d.ScheduledDelivery.Validate(now)
	default:
		return nil
	}
}

// Clone returns a deep copy.
func (d *DeliveryPreferences) Clone() *DeliveryPreferences {
	if d == nil {
		return nil
	}
	out := &DeliveryPreferences{
		Channels: append([]Channel(nil), d.Channels...),
	}
	if d.CronSchedule != nil {
		cs := *d.CronSchedule
		if d.CronSchedule.AggregateEvents != nil {
			v := *d.CronSchedule.AggregateEvents
			cs.AggregateEvents = &v
		}
		out.CronSchedule = &cs
	}
	if d.ScheduledDelivery != nil {
		sd := *d.ScheduledDelivery
		if d.ScheduledDelivery.AggregateEvents != nil {
			v := *d.ScheduledDelivery.AggregateEvents
			sd.AggregateEvents = &v
		}
		if d.ScheduledDelivery.AutoExpire != nil {
			v := *d.ScheduledDelivery.AutoExpire
			sd.AutoExpire = &v
		}
		out.ScheduledDelivery = &sd
	}
	return out
}
