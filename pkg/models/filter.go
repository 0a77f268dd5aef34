package models

import "strings"

// Wildcard is the event-type pattern that matches every event type.
const Wildcard = "*"

// WildcardSuffix marks a prefix pattern ("github.*" matches "github.push"
// and "github.pull_request.opened" but not the literal "github").
const WildcardSuffix = ".*"

// Filter is a predicate over events. All fields are optional; an omitted
// field always matches. Semantics: AND across fields, OR within a field.
// The zero value matches every event.
type Filter struct {
	EventTypes []string   `json:"event_types,omitempty"` // literal types, "prefix.*" patterns, or "*"
	Tags       []string   `json:"tags,omitempty"`        // match if intersection with event tags is nonempty
	Priorities []Priority `json:"priority,omitempty"`    // match if event priority is listed
	Sources    []string   `json:"sources,omitempty"`     // match if event source is listed
}

// MatchesType reports whether a single pattern matches an event type.
func MatchesType(pattern, eventType string) bool {
	if pattern == Wildcard {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, WildcardSuffix); ok {
		// The dot is required: "github.*" does not match the literal "github".
		return strings.HasPrefix(eventType, prefix+".")
	}
	return pattern == eventType
}

// ValidTypePattern reports whether the pattern is well formed: "*", a
// non-empty literal, or a "prefix.*" with a non-empty prefix.
func ValidTypePattern(pattern string) bool {
	if pattern == "" {
		return false
	}
	if pattern == Wildcard {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, WildcardSuffix); ok {
		return prefix != "" && !strings.Contains(prefix, Wildcard)
	}
	return !strings.Contains(pattern, Wildcard)
}

// Matches evaluates the filter against an event.
func (f *Filter) Matches(e *Event) bool {
	if f == nil {
		return true
	}
	if len(f.EventTypes) > 0 {
		ok := false
		for _, p := range f.EventTypes {
			if MatchesType(p, e.Type) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Tags) > 0 {
		ok := false
		for _, tag := range f.Tags {
			if e.HasTag(tag) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Priorities) > 0 {
		ok := false
		for _, p := range f.Priorities {
			if p == e.Metadata.Priority {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Sources) > 0 {
		ok := false
		for _, s := range f.Sources {
			if s == e.Metadata.Source {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Validate checks that all type patterns are well formed and all listed
// priorities are recognized.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for _, p := range f.EventTypes {
		if !ValidTypePattern(p) {
			return NewValidationError("filter.event_types", "invalid type pattern: "+p)
		}
	}
	for _, p := range f.Priorities {
		if !p.IsValid() {
			return NewValidationError("filter.priority", "unknown priority: "+string(p))
		}
	}
	return nil
}

// Clone returns a deep copy of the filter. A nil filter clones to nil.
func (f *Filter) Clone() *Filter {
	if f == nil {
		return nil
	}
	out := &Filter{}
	if f.EventTypes != nil {
		out.EventTypes = append([]string(nil), f.EventTypes...)
	}
	if f.Tags != nil {
		out.Tags = append([]string(nil), f.Tags...)
	}
	if f.Priorities != nil {
		out.Priorities = append([]Priority(nil), f.Priorities...)
	}
	if f.Sources != nil {
		out.Sources = append([]string(nil), f.Sources...)
	}
	return out
}
