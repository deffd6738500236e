// Package poller drives the reconciliation pipeline on a fixed interval.
package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/atomic"

	"github.com/taipei-transit/crowding-dashboard/internal/store"
	"github.com/taipei-transit/crowding-dashboard/internal/transit"
)

// DefaultInterval matches the dashboard's 20-second refresh cadence.
const DefaultInterval = 20 * time.Second

// Reconciler runs one reconciliation cycle.
type Reconciler interface {
	Reconcile(ctx context.Context, prev transit.PollResult) transit.PollResult
}

// Poller runs cycles on a timer. At most one cycle is in flight at a time: a
// tick (or manual trigger) that fires while a cycle is still running is
// skipped, not queued, so a slow upstream can never pile up fetches.
type Poller struct {
	scheduler *gocron.Scheduler
	service   Reconciler
	snapshots *store.SnapshotStore
	interval  time.Duration
	timeout   time.Duration
	onUpdate  func(transit.PollResult)

	inFlight *atomic.Bool
	loading  *atomic.Bool
	stopped  *atomic.Bool

	// commitMu serializes the end-of-cycle commit (save + callback)
	// against Stop, which holds it before returning.
	commitMu sync.Mutex
}

// New creates a Poller. onUpdate may be nil; when set it receives every
// completed PollResult after it has been saved.
func New(service Reconciler, snapshots *store.SnapshotStore, interval time.Duration, onUpdate func(transit.PollResult)) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		snapshots: snapshots,
		interval:  interval,
		timeout:   30 * time.Second,
		onUpdate:  onUpdate,
		inFlight:  atomic.NewBool(false),
		loading:   atomic.NewBool(true),
		stopped:   atomic.NewBool(false),
	}
}

// Start schedules the periodic cycle and runs the first one immediately.
func (p *Poller) Start() error {
	if _, err := p.scheduler.Every(p.interval).StartImmediately().Do(p.run); err != nil {
		return err
	}
	p.scheduler.StartAsync()
	return nil
}

// Stop cancels the timer. No onUpdate callback fires after Stop returns:
// the stopped flag turns away cycles that have not yet committed, and the
// commit mutex makes Stop wait out a cycle already mid-commit (gocron does
// not join running jobs, and TriggerNow goroutines are outside it anyway).
func (p *Poller) Stop() {
	p.stopped.Store(true)
	p.commitMu.Lock()
	p.commitMu.Unlock()
	p.scheduler.Stop()
}

// TriggerNow runs an out-of-band cycle, matching the dashboard's refresh
// button. It does not reset the periodic timer's phase, and the single
// in-flight guard applies to it like any tick.
func (p *Poller) TriggerNow() {
	go p.run()
}

// Loading reports whether the first cycle has yet to complete. It flips to
// false exactly once and stays false while stale data is shown, so the UI
// never flickers back into a loading state.
func (p *Poller) Loading() bool {
	return p.loading.Load()
}

func (p *Poller) run() {
	if p.stopped.Load() {
		return
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		// A cycle is still running; this tick is skipped, not an error.
		return
	}
	defer p.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	prev, err := p.snapshots.Latest()
	if err != nil {
		prev = transit.PollResult{}
	}

	res := p.service.Reconcile(ctx, prev)

	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	if p.stopped.Load() {
		return
	}

	p.snapshots.Save(res)
	p.loading.Store(false)

	log.Printf("poller: cycle %s done: %d crowding, %d location records",
		res.CycleID, len(res.CrowdingRecords), len(res.LocationRecords))

	if p.onUpdate != nil {
		p.onUpdate(res)
	}
}
