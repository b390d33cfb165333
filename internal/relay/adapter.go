package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

// ErrNoConference is returned when a command is issued without an active
// conference attached.
var ErrNoConference = errors.New("no active conference")

// Commander is the slice of the API client the adapter needs.
type Commander interface {
	RemotePlay(ctx context.Context, conferenceID string, lineID scenario.LineID) error
	RemoteStop(ctx context.Context, conferenceID string) error
}

// Adapter translates playback intents into remote commands against the
// conference bridge and owns the simulated progress clock. The command
// acknowledgment gates the caller's transition into conference-playing
// state; after that the estimator is the only source of progress.
type Adapter struct {
	commander Commander
	estimator *Estimator

	mu         sync.Mutex
	conference string
	activeLine scenario.LineID
	playing    bool
}

// Option configures an Adapter at construction.
type Option func(*Adapter)

// WithClock substitutes the estimator's time source. The simulated progress
// clock becomes fully deterministic under an injected clock.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.estimator.now = now
	}
}

// NewAdapter creates an adapter for commander. A conference is attached
// separately once a call is live.
func NewAdapter(commander Commander, opts ...Option) *Adapter {
	a := &Adapter{
		commander: commander,
		estimator: NewEstimator(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetConference attaches the live conference the adapter commands. An empty
// id detaches.
func (a *Adapter) SetConference(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conference = id
}

// Conference returns the attached conference id, or "".
func (a *Adapter) Conference() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conference
}

// Play commands the bridge to inject lineID's audio into the call and
// starts the progress estimate toward the line's reported duration. The
// previous estimation run, if any, is cancelled BEFORE the new command goes
// out, so stale frames can never touch the new line's progress. Returns the
// new run's epoch; the caller passes it to every Progress sample.
func (a *Adapter) Play(ctx context.Context, lineID scenario.LineID, reportedDurationMs int64) (int, error) {
	a.mu.Lock()
	conference := a.conference
	a.mu.Unlock()
	if conference == "" {
		return 0, ErrNoConference
	}

	// Invalidate the previous run first; the old loop must be dead before
	// anything about the new line becomes observable.
	a.estimator.Cancel()

	if err := a.commander.RemotePlay(ctx, conference, lineID); err != nil {
		return 0, err
	}

	target := TargetDuration(reportedDurationMs)
	epoch := a.estimator.Start(target)

	a.mu.Lock()
	a.activeLine = lineID
	a.playing = true
	a.mu.Unlock()

	log.Debug("conference play", "line", lineID, "target", target, "epoch", epoch)
	return epoch, nil
}

// Stop commands the bridge to stop playback and cancels the estimate.
// Stopping while nothing plays is a no-op.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	conference := a.conference
	wasPlaying := a.playing
	a.playing = false
	a.activeLine = 0
	a.mu.Unlock()

	a.estimator.Cancel()
	if !wasPlaying {
		return nil
	}
	if conference == "" {
		return ErrNoConference
	}
	return a.commander.RemoteStop(ctx, conference)
}

// Progress samples the simulated clock for the given epoch. done reports
// natural end-of-track: the caller treats it exactly like a local track
// ending. ok=false means the sample is stale and must be discarded.
func (a *Adapter) Progress(epoch int) (progress float64, done bool, ok bool) {
	progress, done, ok = a.estimator.Sample(epoch)
	if done {
		a.mu.Lock()
		a.playing = false
		a.activeLine = 0
		a.mu.Unlock()
	}
	return progress, done, ok
}

// ActiveLine returns the line currently conference-playing, or 0.
func (a *Adapter) ActiveLine() scenario.LineID {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.playing {
		return 0
	}
	return a.activeLine
}
