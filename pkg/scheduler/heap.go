package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mcpe-dev/hub/pkg/models"
)

// entry is one armed subscription in the fire queue. Cron entries are
// re-armed with the next schedule instant after every fire; scheduled
// entries fire once.
type entry struct {
	subID    string
	clientID string
	class    models.Channel
	handler  *models.HandlerSpec

	fireAt     time.Time
	schedule   cron.Schedule // cron only; recomputes fireAt after a flush
	aggregate  bool          // suppress empty flushes when true
	autoExpire bool          // scheduled only
	limit      int           // batch cap for the flush

	index int // heap index
}

// fireHeap is a min-heap ordered by fire instant.
type fireHeap []*entry

func (h fireHeap) Len() int { return len(h) }

func (h fireHeap) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].subID < h[j].subID
	}
	return h[i].fireAt.Before(h[j].fireAt)
}

func (h fireHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *fireHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *fireHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
