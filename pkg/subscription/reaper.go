package subscription

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpe-dev/hub/pkg/models"
)

// Reaper periodically sweeps the manager: expires_at deadlines become
// terminal transitions, and clients past their reconnect grace lose their
// subscriptions. Expirations are reported through onExpired so the owning
// session can be notified.
type Reaper struct {
	manager   *Manager
	interval  time.Duration
	onExpired func(sub *models.Subscription)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// NewReaper creates a reaper sweeping at interval. onExpired may be nil.
func NewReaper(manager *Manager, interval time.Duration, onExpired func(sub *models.Subscription)) *Reaper {
	if onExpired == nil {
		onExpired = func(*models.Subscription) {}
	}
	return &Reaper{
		manager:   manager,
		interval:  interval,
		onExpired: onExpired,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the sweep loop. Safe to call once; subsequent calls are
// no-ops.
func (r *Reaper) Start(ctx context.Context) {
	if r.started {
		slog.Warn("Reaper already started, ignoring duplicate Start call")
		return
	}
	r.started = true

	slog.Info("Starting expiration reaper", "interval", r.interval)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

// Stop halts the loop and waits for the in-flight sweep to finish.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Reaper) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Sweep(time.Now())
		}
	}
}

// Sweep runs one pass at the given instant. Exposed so tests can drive the
// reaper without waiting on the ticker.
func (r *Reaper) Sweep(now time.Time) {
	for _, sub := range r.manager.ReapExpired(now) {
		r.onExpired(sub)
	}
	r.manager.ReapDetached(now)
}
