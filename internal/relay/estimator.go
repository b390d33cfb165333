// Package relay drives playback inside a live call: remote play/stop
// commands against the conference bridge, a simulated progress clock (the
// bridge emits no local media events), and the call's status event feed.
package relay

import (
	"sync"
	"time"
)

// DefaultLineDuration is assumed when a line's audio duration is unknown,
// so the UI still shows motion during conference playback.
const DefaultLineDuration = 3000 * time.Millisecond

// TargetDuration normalizes a reported duration into the estimation target.
// Durations are supposed to arrive in milliseconds, but some backends report
// seconds; a sub-1000 value is read as seconds and rescaled. Zero or
// negative falls back to DefaultLineDuration.
func TargetDuration(reportedMs int64) time.Duration {
	switch {
	case reportedMs <= 0:
		return DefaultLineDuration
	case reportedMs < 1000:
		return time.Duration(reportedMs) * time.Second
	default:
		return time.Duration(reportedMs) * time.Millisecond
	}
}

// Estimator fabricates playback progress for conference-relayed audio. There
// is no ground truth: once started, the estimate is authoritative for UI
// purposes even if the remote side finishes earlier or later.
//
// Every Start begins a new epoch. Samples quote the epoch they were taken
// under, so a frame loop that survived a line switch can detect it is stale
// and drop its result instead of overwriting the new line's progress.
type Estimator struct {
	mu     sync.Mutex
	epoch  int
	start  time.Time
	target time.Duration
	active bool

	// now is the monotonic clock, swappable in tests.
	now func() time.Time
}

// NewEstimator creates an estimator on the real clock.
func NewEstimator() *Estimator {
	return &Estimator{now: time.Now}
}

// Start begins a new estimation run toward target and returns its epoch.
// Any previous run is implicitly cancelled: its epoch is now stale.
func (e *Estimator) Start(target time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.epoch++
	e.start = e.now()
	e.target = target
	e.active = true
	return e.epoch
}

// Cancel invalidates the current run without starting a new one.
func (e *Estimator) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.epoch++
	e.active = false
}

// Sample returns the current progress in [0, 1] for the given epoch and
// whether the run has completed. A stale epoch returns ok=false and the
// caller must discard the sample.
func (e *Estimator) Sample(epoch int) (progress float64, done bool, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active || epoch != e.epoch {
		return 0, false, false
	}
	elapsed := e.now().Sub(e.start)
	p := float64(elapsed) / float64(e.target)
	if p >= 1 {
		return 1, true, true
	}
	if p < 0 {
		p = 0
	}
	return p, false, true
}
