package scheduler

import (
	"sync"

	"github.com/mcpe-dev/hub/pkg/models"
)

// buffer is one subscription's FIFO aggregation buffer. It keeps at most
// limit events; appending beyond that drops the oldest so a flush always
// carries the most recent events in publish order.
type buffer struct {
	mu     sync.Mutex
	events []*models.Event
	limit  int
	closed bool
}

func newBuffer(limit int) *buffer {
	return &buffer{limit: limit}
}

// append adds an event, reporting whether an older event was dropped to
// make room. Appending to a closed buffer is refused: a caller racing a
// disarm must not land an event after the final snapshot.
func (b *buffer) append(e *models.Event) (dropped, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false, false
	}
	if len(b.events) >= b.limit {
		n := copy(b.events, b.events[1:])
		b.events = b.events[:n]
		dropped = true
	}
	b.events = append(b.events, e)
	return dropped, true
}

// close refuses further appends. Already-buffered events stay readable
// through snapshot so an in-flight flush can still drain them.
func (b *buffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// snapshot returns the buffered events in order and clears the buffer.
func (b *buffer) snapshot() []*models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.events
	b.events = nil
	return out
}

// setLimit adjusts the cap, dropping oldest events if the buffer is over
// the new limit.
func (b *buffer) setLimit(limit int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.limit = limit
	if over := len(b.events) - limit; over > 0 {
		b.events = append(b.events[:0], b.events[over:]...)
	}
}

// size reports the number of buffered events.
func (b *buffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
