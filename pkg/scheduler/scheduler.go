// Package scheduler drives aggregated delivery: a single fire queue over all
// cron and scheduled subscriptions, per-subscription FIFO buffers with
// drop-oldest overflow, and the flush path that snapshots a buffer and hands
// the batch to the delivery callback.
//
// One goroutine waits on the earliest fire instant. Arm/Disarm/Append take
// the scheduler lock; the fire path releases it before calling the expirer
// or the delivery callback, so the manager lock is always taken first.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpe-dev/hub/pkg/metrics"
	"github.com/mcpe-dev/hub/pkg/models"
)

// Expirer transitions a subscription to its terminal state. Implemented by
// the subscription manager.
type Expirer interface {
	Expire(subID string) (*models.Subscription, error)
}

// Flush is one delivered batch.
type Flush struct {
	SubscriptionID string
	ClientID       string
	Channel        models.Channel
	Events         []*models.Event
	ScheduledFor   time.Time
	Handler        *models.HandlerSpec
	AutoExpired    bool
}

// FlushFunc receives flushed batches. Called from the scheduler goroutine
// with no scheduler lock held; it may block on the outbound queue.
type FlushFunc func(f Flush)

// Scheduler owns the fire queue and the aggregation buffers.
type Scheduler struct {
	expirer      Expirer
	deliver      FlushFunc
	scheduledCap int // buffer cap for scheduled subscriptions
	mtr          *metrics.Metrics

	mu      sync.Mutex
	heap    fireHeap
	entries map[string]*entry
	buffers map[string]*buffer

	resetCh  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	now func() time.Time
}

// New creates a scheduler. scheduledCap bounds the buffer of scheduled
// subscriptions, which have no per-subscription batch limit.
func New(expirer Expirer, deliver FlushFunc, scheduledCap int, mtr *metrics.Metrics) *Scheduler {
	return &Scheduler{
		expirer:      expirer,
		deliver:      deliver,
		scheduledCap: scheduledCap,
		mtr:          mtr,
		entries:      make(map[string]*entry),
		buffers:      make(map[string]*buffer),
		resetCh:      make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		now:          time.Now,
	}
}

// Start launches the fire loop. Safe to call once; subsequent calls are
// no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	if s.started {
		slog.Warn("Scheduler already started, ignoring duplicate Start call")
		return
	}
	s.started = true

	slog.Info("Starting delivery scheduler")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop halts the fire loop and waits for an in-flight flush to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Arm inserts or re-inserts a subscription into the fire queue. Realtime
// subscriptions are ignored. An existing aggregation buffer is preserved, so
// an update that keeps the subscription aggregating keeps its pending
// events; the buffer limit is re-applied.
func (s *Scheduler) Arm(sub *models.Subscription) {
	now := s.now().UTC()

	e := &entry{
		subID:    sub.ID,
		clientID: sub.ClientID,
		class:    sub.Class(),
		handler:  sub.Handler,
	}
	switch e.class {
	case models.ChannelCron:
		cs := sub.Delivery.CronSchedule
		schedule, err := cs.Schedule()
		if err != nil {
			// Unreachable after validation; never arm a broken schedule.
			slog.Error("Refusing to arm invalid cron schedule",
				"subscription_id", sub.ID, "error", err)
			return
		}
		e.schedule = schedule
		e.fireAt = schedule.Next(now)
		e.aggregate = cs.Aggregate()
		e.limit = cs.BatchLimit()
	case models.ChannelScheduled:
		sd := sub.Delivery.ScheduledDelivery
		e.fireAt = sd.DeliverAt.UTC()
		if e.fireAt.Before(now) {
			// Late arm: fire immediately with whatever is buffered.
			e.fireAt = now
		}
		e.aggregate = sd.Aggregate()
		e.autoExpire = sd.Expire()
		e.limit = s.scheduledCap
	default:
		return
	}

	s.mu.Lock()
	if old := s.entries[sub.ID]; old != nil && old.index >= 0 {
		heap.Remove(&s.heap, old.index)
	}
	buf := s.buffers[sub.ID]
	if buf == nil {
		buf = newBuffer(e.limit)
		s.buffers[sub.ID] = buf
	} else {
		buf.setLimit(e.limit)
	}
	s.entries[sub.ID] = e
	heap.Push(&s.heap, e)
	s.mu.Unlock()

	s.kick()
	slog.Debug("Subscription armed",
		"subscription_id", sub.ID,
		"class", e.class,
		"fire_at", e.fireAt)
}

// Disarm removes a subscription from the fire queue and discards its
// buffer. The buffer is closed before it is dropped, so an Append holding a
// stale reference is refused instead of writing into a buffer nothing will
// ever flush.
func (s *Scheduler) Disarm(subID string) {
	s.mu.Lock()
	if e := s.entries[subID]; e != nil {
		if e.index >= 0 {
			heap.Remove(&s.heap, e.index)
		}
		delete(s.entries, subID)
	}
	if buf := s.buffers[subID]; buf != nil {
		buf.close()
		delete(s.buffers, subID)
	}
	s.mu.Unlock()

	s.kick()
}

// Append buffers an event for an aggregating subscription. It reports false
// when the subscription has no buffer, or the buffer was closed by a
// concurrent disarm; either way it was disarmed between matching and
// delivery.
func (s *Scheduler) Append(subID string, e *models.Event) bool {
	s.mu.Lock()
	buf := s.buffers[subID]
	s.mu.Unlock()

	if buf == nil {
		return false
	}
	dropped, ok := buf.append(e)
	if !ok {
		return false
	}
	if dropped {
		s.mtr.EventDropped(metrics.DropReasonBufferOverflow)
	}
	return true
}

// Buffered reports how many events are pending for a subscription.
func (s *Scheduler) Buffered(subID string) int {
	s.mu.Lock()
	buf := s.buffers[subID]
	s.mu.Unlock()

	if buf == nil {
		return 0
	}
	return buf.size()
}

// NextFire returns the pending fire instant for a subscription.
func (s *Scheduler) NextFire(subID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[subID]
	if e == nil {
		return time.Time{}, false
	}
	return e.fireAt, true
}

// FireNow moves a subscription's fire instant to the present, forcing the
// next loop iteration to flush it. It reports whether the subscription was
// armed.
func (s *Scheduler) FireNow(subID string) bool {
	s.mu.Lock()
	e := s.entries[subID]
	if e == nil || e.index < 0 {
		s.mu.Unlock()
		return false
	}
	e.fireAt = s.now().UTC()
	heap.Fix(&s.heap, e.index)
	s.mu.Unlock()

	s.kick()
	return true
}

// kick wakes the fire loop after the queue head may have changed.
func (s *Scheduler) kick() {
	select {
	case s.resetCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	for {
		s.mu.Lock()
		var wait time.Duration
		armed := s.heap.Len() > 0
		if armed {
			wait = s.heap[0].fireAt.Sub(s.now())
		}
		s.mu.Unlock()

		if !armed {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-s.resetCh:
			}
			continue
		}

		if wait <= 0 {
			s.fireDue()
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-s.resetCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// fireDue pops every entry at or past its fire instant, re-arms cron
// entries, and flushes the fired ones with no scheduler lock held.
func (s *Scheduler) fireDue() {
	now := s.now().UTC()

	s.mu.Lock()
	var due []*entry
	for s.heap.Len() > 0 && !s.heap[0].fireAt.After(now) {
		e := heap.Pop(&s.heap).(*entry)
		if e.class == models.ChannelCron {
			// Next is strictly after now, so a fire never re-queues itself
			// into the same pass.
			e.fireAt = e.schedule.Next(now)
			heap.Push(&s.heap, e)
		} else {
			// Scheduled entries fire once. The buffer stays: an update with
			// a new deliver_at re-arms and flushes whatever accumulates.
			delete(s.entries, e.subID)
		}
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.flush(e, now)
	}
}

func (s *Scheduler) flush(e *entry, firedAt time.Time) {
	s.mu.Lock()
	buf := s.buffers[e.subID]
	s.mu.Unlock()

	if buf == nil {
		// Disarmed after the pop; the subscription is gone.
		return
	}

	// Fix the expiry point before draining, so nothing published after this
	// instant can match the subscription or join the batch. Expire disarms,
	// which closes the buffer: an append racing the expiry either lands
	// before the snapshot below or is refused.
	autoExpired := false
	if e.class == models.ChannelScheduled && e.autoExpire {
		if _, err := s.expirer.Expire(e.subID); err != nil {
			slog.Error("Failed to expire scheduled subscription",
				"subscription_id", e.subID, "error", err)
		} else {
			autoExpired = true
		}
	}

	events := buf.snapshot()

	if len(events) == 0 && e.aggregate {
		// Empty fire suppressed; an auto-expire still happened above and is
		// visible through the subscription status.
		return
	}

	s.mtr.BatchFlushed(string(e.class), len(events))
	slog.Debug("Flushing aggregation buffer",
		"subscription_id", e.subID,
		"channel", e.class,
		"events", len(events),
		"auto_expired", autoExpired)

	s.deliver(Flush{
		SubscriptionID: e.subID,
		ClientID:       e.clientID,
		Channel:        e.class,
		Events:         events,
		ScheduledFor:   firedAt,
		Handler:        e.handler,
		AutoExpired:    autoExpired,
	})
}
