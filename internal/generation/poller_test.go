package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

// fakeBackend scripts FetchSummary responses.
type fakeBackend struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     int
	tokens    []string
}

type fakeResponse struct {
	summary     *scenario.Summary
	notModified bool
	err         error
}

func (f *fakeBackend) FetchSummary(_ context.Context, _ scenario.ScenarioID, token string) (*scenario.Summary, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tokens = append(f.tokens, token)
	if len(f.responses) == 0 {
		return nil, true, nil
	}
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return r.summary, r.notModified, r.err
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// manualScheduler records armed timers and fires them on demand,
// synchronously, so tests control the tick cadence exactly.
type manualScheduler struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	delay     time.Duration
	fn        func()
	cancelled bool
}

func (s *manualScheduler) schedule(d time.Duration, f func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{delay: d, fn: f}
	s.pending = append(s.pending, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.cancelled = true
	}
}

// fire runs the most recently armed live timer and returns its delay.
func (s *manualScheduler) fire(t *testing.T) time.Duration {
	t.Helper()
	s.mu.Lock()
	var last *manualTimer
	for _, timer := range s.pending {
		if !timer.cancelled {
			last = timer
		}
	}
	s.mu.Unlock()
	if last == nil {
		t.Fatal("no live timer armed")
	}
	last.cancelled = true
	last.fn()
	return last.delay
}

// armedCount counts live timers.
func (s *manualScheduler) armedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, timer := range s.pending {
		if !timer.cancelled {
			n++
		}
	}
	return n
}

func newTestPoller(backend *fakeBackend, onRefresh func()) (*Poller, *manualScheduler) {
	p := NewPoller(backend, 1, onRefresh)
	sched := &manualScheduler{}
	p.schedule = sched.schedule
	return p, sched
}

func readySummary(token string, ids ...scenario.LineID) *scenario.Summary {
	s := &scenario.Summary{CacheToken: token}
	for _, id := range ids {
		s.Items = append(s.Items, scenario.SummaryItem{LineID: id, Status: scenario.StatusReady})
	}
	return s
}

func TestPoller_EmptySetSuspendsPolling(t *testing.T) {
	backend := &fakeBackend{}
	p, sched := newTestPoller(backend, nil)

	if sched.armedCount() != 0 {
		t.Fatal("poller armed a timer with an empty pending set")
	}

	p.Add(context.Background(), 7)
	if sched.armedCount() != 1 {
		t.Fatal("poller did not arm a timer after first Add")
	}

	// Duplicate add neither re-arms nor resets anything.
	p.Add(context.Background(), 7)
	if sched.armedCount() != 1 {
		t.Error("duplicate Add armed a second timer")
	}
}

func TestPoller_BackoffGrowsAndCaps(t *testing.T) {
	backend := &fakeBackend{responses: []fakeResponse{{notModified: true}}}
	p, sched := newTestPoller(backend, nil)
	p.Add(context.Background(), 7)

	prev := sched.fire(t) // first tick was armed at baseline
	if prev != BaselineInterval {
		t.Fatalf("first interval = %v, want %v", prev, BaselineInterval)
	}

	// Every no-change tick must arm a strictly longer interval, up to cap.
	for i := 0; i < 10; i++ {
		next := sched.fire(t)
		if next < prev {
			t.Fatalf("interval shrank without a change: %v -> %v", prev, next)
		}
		if prev < MaxInterval && next <= prev {
			t.Fatalf("interval did not grow after no-change tick: %v -> %v", prev, next)
		}
		if next > MaxInterval {
			t.Fatalf("interval %v exceeds cap %v", next, MaxInterval)
		}
		prev = next
	}
	if prev != MaxInterval {
		t.Errorf("interval settled at %v, want cap %v", prev, MaxInterval)
	}
}

func TestPoller_ChangeResetsBackoff(t *testing.T) {
	backend := &fakeBackend{responses: []fakeResponse{
		{notModified: true},
		{notModified: true},
		{summary: &scenario.Summary{
			CacheToken: "v2",
			Items: []scenario.SummaryItem{
				{LineID: 8, Status: scenario.StatusPending},
			},
		}},
		{notModified: true},
	}}
	p, sched := newTestPoller(backend, nil)
	p.Add(context.Background(), 7)

	sched.fire(t)                  // no-change
	backedOff := sched.fire(t)     // no-change again
	if backedOff <= BaselineInterval {
		t.Fatalf("interval = %v after two no-change ticks, want > baseline", backedOff)
	}

	sched.fire(t) // changed snapshot
	if got := p.Interval(); got != BaselineInterval {
		t.Errorf("interval after change = %v, want baseline %v", got, BaselineInterval)
	}
	if !p.Pending(8) {
		t.Error("server-known pending line 8 was not reconciled into the set")
	}
}

func TestPoller_ReadyFlowEndToEnd(t *testing.T) {
	// Spec scenario: pending {7}; poll returns READY 7 => set empty,
	// polling suspends, refresh fires exactly once.
	refreshes := 0
	backend := &fakeBackend{responses: []fakeResponse{
		{summary: readySummary("v1", 7)},
	}}
	p, sched := newTestPoller(backend, func() { refreshes++ })
	p.Add(context.Background(), 7)

	sched.fire(t)

	if p.PendingCount() != 0 {
		t.Errorf("pending count = %d, want 0", p.PendingCount())
	}
	if refreshes != 1 {
		t.Errorf("refresh callback fired %d times, want exactly 1", refreshes)
	}
	if sched.armedCount() != 0 {
		t.Error("polling did not suspend after the set emptied")
	}

	select {
	case id := <-p.Ready():
		if id != 7 {
			t.Errorf("ready event for line %d, want 7", id)
		}
	default:
		t.Error("no ready event emitted")
	}

	// No further network traffic until something is added again.
	calls := backend.callCount()
	if calls != 1 {
		t.Fatalf("backend called %d times, want 1", calls)
	}
	p.Add(context.Background(), 9)
	if sched.armedCount() != 1 {
		t.Error("polling did not resume after new Add")
	}
}

func TestPoller_ReadyForUntrackedLineIsIgnored(t *testing.T) {
	refreshes := 0
	backend := &fakeBackend{responses: []fakeResponse{
		{summary: readySummary("v1", 99)}, // not in the pending set
	}}
	p, sched := newTestPoller(backend, func() { refreshes++ })
	p.Add(context.Background(), 7)

	sched.fire(t)
	if refreshes != 0 {
		t.Error("refresh fired for a line nobody tracked")
	}
	if !p.Pending(7) {
		t.Error("tracked line 7 dropped by unrelated READY")
	}
}

func TestPoller_TransientErrorsAreSilentlyRetried(t *testing.T) {
	backend := &fakeBackend{responses: []fakeResponse{
		{err: errors.New("connection reset")},
		{notModified: true},
	}}
	p, sched := newTestPoller(backend, nil)
	p.Add(context.Background(), 7)

	sched.fire(t)
	if sched.armedCount() != 1 {
		t.Fatal("poller stopped after a transient error")
	}
	if !p.Pending(7) {
		t.Error("pending set mutated by a transient error")
	}
}

func TestPoller_ConditionalTokenFlows(t *testing.T) {
	backend := &fakeBackend{responses: []fakeResponse{
		{summary: &scenario.Summary{
			CacheToken: "v1",
			Items: []scenario.SummaryItem{
				{LineID: 7, Status: scenario.StatusPending},
			},
		}},
		{notModified: true},
	}}
	p, sched := newTestPoller(backend, nil)
	p.Add(context.Background(), 7)

	sched.fire(t)
	sched.fire(t)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.tokens[0] != "" {
		t.Errorf("first poll carried token %q, want none", backend.tokens[0])
	}
	if backend.tokens[1] != "v1" {
		t.Errorf("second poll carried token %q, want %q", backend.tokens[1], "v1")
	}
}

func TestPoller_DiscoverSeedsSet(t *testing.T) {
	backend := &fakeBackend{responses: []fakeResponse{
		{summary: &scenario.Summary{
			CacheToken: "v1",
			Items: []scenario.SummaryItem{
				{LineID: 3, Status: scenario.StatusPending},
				{LineID: 4, Status: scenario.StatusReady},
			},
		}},
	}}
	p, sched := newTestPoller(backend, nil)

	p.Discover(context.Background())
	if !p.Pending(3) {
		t.Error("discovery did not seed pending line 3")
	}
	if p.Pending(4) {
		t.Error("discovery tracked an already-READY line")
	}
	if sched.armedCount() != 1 {
		t.Error("discovery with pending results did not start polling")
	}
}

func TestPoller_StopDiscardsLateFires(t *testing.T) {
	backend := &fakeBackend{responses: []fakeResponse{{notModified: true}}}
	p, sched := newTestPoller(backend, nil)
	p.Add(context.Background(), 7)

	// Capture the armed timer, then stop the poller before it fires.
	sched.mu.Lock()
	timer := sched.pending[0]
	sched.mu.Unlock()

	p.Stop()
	timer.fn() // late fire

	if backend.callCount() != 0 {
		t.Error("late timer fire reached the backend after Stop")
	}
}
