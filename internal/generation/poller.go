// Package generation tracks asynchronous TTS generation: an optimistic
// pending set of voice-line IDs reconciled against backend-reported
// readiness by a conditional polling loop with adaptive backoff.
package generation

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

const (
	// BaselineInterval is the fast polling interval used while changes are
	// arriving. Completions cluster, so any observed change snaps the loop
	// back to this.
	BaselineInterval = 2 * time.Second

	// BackoffFactor grows the interval after each no-change tick.
	BackoffFactor = 1.5

	// MaxInterval caps the backed-off polling interval.
	MaxInterval = 10 * time.Second

	// readyBuffer sizes the ready-event stream. Slow consumers drop
	// events rather than stall the poller.
	readyBuffer = 32
)

// Backend is the slice of the API client the poller consumes.
type Backend interface {
	FetchSummary(ctx context.Context, id scenario.ScenarioID, cacheToken string) (*scenario.Summary, bool, error)
}

// Poller keeps the pending set of one scenario current. It polls only while
// the set is non-empty; an empty set suspends polling entirely, with no
// timer running. All timers carry an epoch token so a reset or teardown
// discards late fires instead of applying them.
type Poller struct {
	backend  Backend
	scenario scenario.ScenarioID

	mu        sync.Mutex
	pending   map[scenario.LineID]struct{}
	token     string
	interval  time.Duration
	noChange  int
	epoch     int
	cancel    func()
	stopped   bool
	onRefresh func()

	ready chan scenario.LineID

	// schedule defaults to time.AfterFunc; tests substitute a manual
	// scheduler to drive ticks deterministically.
	schedule func(d time.Duration, f func()) (cancel func())
}

// NewPoller creates a poller for one scenario. The refresh callback fires
// once per changed snapshot that contained READY items, so the owning view
// can re-fetch signed URLs.
func NewPoller(backend Backend, id scenario.ScenarioID, onRefresh func()) *Poller {
	return &Poller{
		backend:   backend,
		scenario:  id,
		pending:   make(map[scenario.LineID]struct{}),
		interval:  BaselineInterval,
		onRefresh: onRefresh,
		ready:     make(chan scenario.LineID, readyBuffer),
		schedule: func(d time.Duration, f func()) func() {
			t := time.AfterFunc(d, f)
			return func() { t.Stop() }
		},
	}
}

// Ready is the event stream of lines that just became playable.
func (p *Poller) Ready() <-chan scenario.LineID { return p.ready }

// PendingCount returns the size of the pending set.
func (p *Poller) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Pending reports whether id is currently tracked.
func (p *Poller) Pending(id scenario.LineID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[id]
	return ok
}

// Interval returns the current polling interval, for observability.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Add optimistically inserts a line whose generation was just requested and
// resumes polling if it was suspended. Inserting an already-tracked line is
// a no-op and does not reset the backoff.
func (p *Poller) Add(ctx context.Context, id scenario.LineID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if _, ok := p.pending[id]; ok {
		return
	}
	wasEmpty := len(p.pending) == 0
	p.pending[id] = struct{}{}
	if wasEmpty {
		// Fresh work: poll eagerly again.
		p.interval = BaselineInterval
		p.noChange = 0
		p.armLocked(ctx)
	}
}

// Discover runs the one-shot seed fetch for the owning scenario: whatever
// the backend reports PENDING right now enters the set, independent of the
// recurring poll. Call it whenever the owning scenario changes.
func (p *Poller) Discover(ctx context.Context) {
	summary, notModified, err := p.backend.FetchSummary(ctx, p.scenario, "")
	if err != nil {
		log.Debug("generation discovery failed", "scenario", p.scenario, "error", err)
		return
	}
	if notModified || summary == nil {
		return
	}
	p.apply(ctx, summary)
}

// Stop cancels any armed timer and closes the ready stream. Late timer
// fires are discarded via the epoch token.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	p.epoch++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	close(p.ready)
}

// armLocked schedules the next tick. Caller holds p.mu and has verified the
// pending set is non-empty.
func (p *Poller) armLocked(ctx context.Context) {
	if p.cancel != nil {
		p.cancel()
	}
	epoch := p.epoch
	p.cancel = p.schedule(p.interval, func() {
		p.tick(ctx, epoch)
	})
}

// tick performs one conditional poll. A fire from a superseded epoch is
// discarded before any network traffic.
func (p *Poller) tick(ctx context.Context, epoch int) {
	p.mu.Lock()
	if p.stopped || epoch != p.epoch || len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	token := p.token
	p.mu.Unlock()

	summary, notModified, err := p.backend.FetchSummary(ctx, p.scenario, token)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || epoch != p.epoch {
		// Superseded while the request was in flight; discard.
		return
	}

	switch {
	case err != nil:
		// Transient poll errors are retried next tick, never surfaced.
		log.Debug("generation poll failed", "scenario", p.scenario, "error", err)
	case notModified:
		p.noChange++
		p.interval = backoff(p.interval)
	default:
		p.applyLocked(summary)
	}

	if len(p.pending) > 0 {
		p.armLocked(ctx)
	} else {
		p.cancel = nil
	}
}

// apply merges a summary under the lock.
func (p *Poller) apply(ctx context.Context, summary *scenario.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	hadPending := len(p.pending) > 0
	p.applyLocked(summary)
	if !hadPending && len(p.pending) > 0 {
		p.armLocked(ctx)
	}
}

// applyLocked merges a changed snapshot: READY items leave the set and emit
// events, server-known PENDING items not yet tracked enter it (another tab
// may have started a generation). Any change resets the backoff.
func (p *Poller) applyLocked(summary *scenario.Summary) {
	p.token = summary.CacheToken
	p.interval = BaselineInterval
	p.noChange = 0

	refreshed := false
	for _, item := range summary.Items {
		switch item.Status {
		case scenario.StatusReady:
			if _, ok := p.pending[item.LineID]; ok {
				delete(p.pending, item.LineID)
				refreshed = true
				select {
				case p.ready <- item.LineID:
				default:
					log.Debug("ready event dropped, consumer lagging", "line", item.LineID)
				}
			}
		case scenario.StatusPending:
			if _, ok := p.pending[item.LineID]; !ok {
				p.pending[item.LineID] = struct{}{}
			}
		}
	}

	if refreshed && p.onRefresh != nil {
		// Callback runs under the lock; it must not re-enter the poller.
		p.onRefresh()
	}
}

// backoff advances the interval by BackoffFactor, capped at MaxInterval.
func backoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * BackoffFactor)
	if next > MaxInterval {
		next = MaxInterval
	}
	return next
}
