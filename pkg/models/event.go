// Package models defines the hub's domain types: events, filters, delivery
// preferences, handler descriptors, and subscriptions. Types here are pure
// data plus validation, with no I/O and no locking.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Priority classifies an event's urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid checks if the priority is one of the four recognized levels.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Priorities lists all valid priority levels in ascending order of urgency.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}
}

// EventMetadata carries routing and provenance information for an event.
type EventMetadata struct {
	SourceEventID string    `json:"source_event_id,omitempty"` // upstream identifier, if the producer has one
	Timestamp     time.Time `json:"timestamp"`                 // absolute UTC; defaulted to now by Normalize
	Priority      Priority  `json:"priority"`                  // defaulted to "normal" by Normalize
	Tags          []string  `json:"tags,omitempty"`            // unordered set, matched by intersection
	Source        string    `json:"source,omitempty"`          // producer identity (e.g. "github", "poller:ci")
}

// Event is an immutable unit published into the hub. The Type field uses
// dot-notation hierarchy ("github.push", "ci.build.failed") which filters
// match exactly or by "prefix.*" patterns.
type Event struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Data     any           `json:"data,omitempty"`
	Metadata EventMetadata `json:"metadata"`
}

// Normalize fills server-assigned defaults in place: missing ID (uuid),
// zero timestamp (now, UTC), empty priority ("normal"). Timestamps provided
// by the producer are converted to UTC.
func (e *Event) Normalize(now time.Time) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Metadata.Timestamp.IsZero() {
		e.Metadata.Timestamp = now.UTC()
	} else {
		e.Metadata.Timestamp = e.Metadata.Timestamp.UTC()
	}
	if e.Metadata.Priority == "" {
		e.Metadata.Priority = PriorityNormal
	}
}

// Validate checks structural validity. Call Normalize first; Validate does
// not fill defaults.
func (e *Event) Validate() error {
	if e.Type == "" {
		return NewValidationError("type", "event type is required")
	}
	if !e.Metadata.Priority.IsValid() {
		return NewValidationError("metadata.priority", "unknown priority: "+string(e.Metadata.Priority))
	}
	return nil
}

// HasTag reports whether the event carries the given tag.
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Metadata.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
