// Package match implements the subscription lookup index. Type patterns are
// split into three buckets so matching an event costs one exact probe, one
// probe per dotted prefix of the type, and the wildcard set, independent of
// the number of subscriptions.
//
// The index is not safe for concurrent use. The subscription manager owns it
// and serializes access under its own lock.
package match

import (
	"strings"

	"github.com/mcpe-dev/hub/pkg/models"
)

// Index buckets subscription ids by pattern shape.
type Index struct {
	exact    map[string]map[string]struct{} // event type -> subscription ids
	prefix   map[string]map[string]struct{} // prefix (without ".*") -> subscription ids
	wildcard map[string]struct{}            // ids subscribed to "*" or with no type patterns
	patterns map[string][]string            // id -> registered patterns, for removal
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		exact:    make(map[string]map[string]struct{}),
		prefix:   make(map[string]map[string]struct{}),
		wildcard: make(map[string]struct{}),
		patterns: make(map[string][]string),
	}
}

// Add registers a subscription under its type patterns. No patterns means
// the subscription matches every event type. Re-adding an id replaces its
// previous registration.
func (ix *Index) Add(id string, types []string) {
	if _, ok := ix.patterns[id]; ok {
		ix.Remove(id)
	}
	ix.patterns[id] = append([]string(nil), types...)

	if len(types) == 0 {
		ix.wildcard[id] = struct{}{}
		return
	}
	for _, pattern := range types {
		switch {
		case pattern == models.Wildcard:
			ix.wildcard[id] = struct{}{}
		case strings.HasSuffix(pattern, models.WildcardSuffix):
			p := strings.TrimSuffix(pattern, models.WildcardSuffix)
			bucket := ix.prefix[p]
			if bucket == nil {
				bucket = make(map[string]struct{})
				ix.prefix[p] = bucket
			}
			bucket[id] = struct{}{}
		default:
			bucket := ix.exact[pattern]
			if bucket == nil {
				bucket = make(map[string]struct{})
				ix.exact[pattern] = bucket
			}
			bucket[id] = struct{}{}
		}
	}
}

// Remove unregisters a subscription from every bucket it appears in.
func (ix *Index) Remove(id string) {
	types, ok := ix.patterns[id]
	if !ok {
		return
	}
	delete(ix.patterns, id)

	if len(types) == 0 {
		delete(ix.wildcard, id)
		return
	}
	for _, pattern := range types {
		switch {
		case pattern == models.Wildcard:
			delete(ix.wildcard, id)
		case strings.HasSuffix(pattern, models.WildcardSuffix):
			p := strings.TrimSuffix(pattern, models.WildcardSuffix)
			if bucket := ix.prefix[p]; bucket != nil {
				delete(bucket, id)
				if len(bucket) == 0 {
					delete(ix.prefix, p)
				}
			}
		default:
			if bucket := ix.exact[pattern]; bucket != nil {
				delete(bucket, id)
				if len(bucket) == 0 {
					delete(ix.exact, pattern)
				}
			}
		}
	}
}

// Lookup returns the ids whose type patterns match the event type. Ids are
// deduplicated; order is unspecified. Tag, priority, and source constraints
// are the caller's post-filter.
func (ix *Index) Lookup(eventType string) []string {
	seen := make(map[string]struct{}, len(ix.wildcard))
	for id := range ix.wildcard {
		seen[id] = struct{}{}
	}
	for id := range ix.exact[eventType] {
		seen[id] = struct{}{}
	}
	// "a.b.c" consults the prefix buckets for "a" and "a.b". The bucket for
	// "a.b.c" itself is not consulted: "a.b.c.*" does not match "a.b.c".
	for i := 0; i < len(eventType); i++ {
		if eventType[i] == '.' {
			for id := range ix.prefix[eventType[:i]] {
				seen[id] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// Len reports how many subscriptions are registered.
func (ix *Index) Len() int {
	return len(ix.patterns)
}
