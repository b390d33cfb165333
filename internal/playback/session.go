// Package playback implements the session state machine behind every
// playable surface: which line is active, in which mode, how far along.
// Local preview and conference relay are reconciled behind one uniform
// contract; the owning view drives frames via Tick and renders from the
// session's snapshot.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/OmniDock/od-prank-deck/internal/audio"
	"github.com/OmniDock/od-prank-deck/internal/cache"
	"github.com/OmniDock/od-prank-deck/internal/relay"
	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

// AudioResolver resolves a playable asset for a line. A (nil, false, nil)
// result means no asset exists and generation was never requested.
type AudioResolver interface {
	ResolveAudio(ctx context.Context, lineID scenario.LineID, voiceID scenario.VoiceID) (ref *scenario.AudioRef, pending bool, err error)
}

// AssetFetcher downloads a signed-URL asset.
type AssetFetcher interface {
	FetchAsset(ctx context.Context, signedURL string) ([]byte, error)
}

// BlobStore caches downloaded, decoded PCM per line+voice.
type BlobStore interface {
	Get(key string) ([]byte, bool)
	Put(key string, pcm []byte) error
}

// Conference is the slice of the relay adapter a session needs.
type Conference interface {
	Play(ctx context.Context, lineID scenario.LineID, reportedDurationMs int64) (epoch int, err error)
	Stop(ctx context.Context) error
	Progress(epoch int) (progress float64, done bool, ok bool)
}

// Event is a session change notification. The UI layer converts events into
// bubbletea messages.
type Event struct {
	State    State
	Mode     Mode
	Line     scenario.LineID
	Progress float64
	Err      error
}

// Deps are the collaborators a session is built from. Conference may be nil
// for purely local surfaces; Blobs may be nil to skip caching.
type Deps struct {
	Registry   *audio.Registry
	Resolver   AudioResolver
	Fetcher    AssetFetcher
	Blobs      BlobStore
	Conference Conference
	Voice      scenario.VoiceID
	Notify     func(Event)
}

// Session is one playback state machine. Each UI surface owns an
// independent instance; sessions never share active-line state.
//
// Methods are safe for concurrent use, but all awaited work (resolve,
// fetch) happens outside the lock under an epoch token: a result arriving
// after the attempt was superseded is discarded, never applied.
type Session struct {
	surface Surface
	deps    Deps

	mu         sync.Mutex
	state      State
	active     *scenario.VoiceLine
	mode       Mode
	progress   float64
	lastErr    error
	epoch      int
	source     *audio.Source
	relayEpoch int
}

// NewSession creates a session for one UI surface.
func NewSession(surface Surface, deps Deps) *Session {
	return &Session{surface: surface, deps: deps, state: StateIdle}
}

// Snapshot is the session's render state.
type Snapshot struct {
	State    State
	Mode     Mode
	ActiveID scenario.LineID
	Progress float64
	Err      error
}

// Snapshot returns the current render state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{State: s.state, Mode: s.mode, Progress: s.progress, Err: s.lastErr}
	if s.active != nil {
		snap.ActiveID = s.active.ID
	}
	return snap
}

// IsPlaying reports whether sound is (believed to be) produced right now.
func (s *Session) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StatePlayingLocal || s.state == StatePlayingConference
}

// IsPaused reports whether local playback is paused.
func (s *Session) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StatePaused
}

// Progress returns playback progress in [0, 1].
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// ActiveLine returns the active line's ID, or 0.
func (s *Session) ActiveLine() scenario.LineID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return 0
	}
	return s.active.ID
}

// Play activates a line. Playing the line that is already active toggles
// stop — the tile interaction pattern — and anything else first tears the
// previous line down completely, then resolves and starts the new one.
//
// Play blocks for the resolve/command round trips and is meant to run
// inside a tea.Cmd.
func (s *Session) Play(ctx context.Context, line *scenario.VoiceLine) error {
	s.mu.Lock()
	if s.state == StateLoading {
		s.mu.Unlock()
		return ErrBusyLoading
	}
	if s.active != nil && s.active.ID == line.ID {
		s.mu.Unlock()
		return s.Stop(ctx)
	}

	// Full teardown of the previous line before anything new starts. The
	// machine lands in Idle first; Loading is only reachable from there.
	s.teardownLocked(ctx)
	s.setStateLocked(StateIdle)
	s.epoch++
	attempt := s.epoch
	s.setStateLocked(StateLoading)
	s.active = line
	s.progress = 0
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()

	ref, err := s.resolveRef(ctx, line)
	if err != nil {
		return s.fail(attempt, err)
	}

	if s.surface == SurfaceConference {
		return s.startConference(ctx, attempt, line, ref)
	}
	return s.startLocal(ctx, attempt, line, ref)
}

// Stop tears down the active line, resets progress to exactly 0 and returns
// the session to Idle. Stopping an idle session is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.teardownLocked(ctx)
	s.epoch++
	s.setStateLocked(StateIdle)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Pause pauses local playback. Conference playback has no remote pause;
// pausing it is rejected.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.state != StatePlayingLocal || s.source == nil {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot pause in state %s", ErrPlaybackRuntime, state)
	}
	if feed := s.source.Feed(); feed != nil {
		feed.Pause()
	}
	s.setStateLocked(StatePaused)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Resume continues paused local playback.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.state != StatePaused || s.source == nil {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot resume in state %s", ErrPlaybackRuntime, state)
	}
	if feed := s.source.Feed(); feed != nil {
		feed.Play()
	}
	s.setStateLocked(StatePlayingLocal)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Tick advances progress by one frame. The owning view calls it on its
// animation cadence; progress is monotonically non-decreasing within an
// attempt and natural end-of-track transitions the session back to Idle.
func (s *Session) Tick(ctx context.Context) {
	s.mu.Lock()
	switch s.state {
	case StatePlayingLocal:
		if s.source == nil {
			s.mu.Unlock()
			return
		}
		if p := s.source.Progress(); p > s.progress {
			s.progress = p
		}
		if s.source.Completed() {
			s.finishLocked(ctx)
			s.mu.Unlock()
			s.notify()
			return
		}
	case StatePlayingConference:
		if s.deps.Conference == nil {
			s.mu.Unlock()
			return
		}
		p, done, ok := s.deps.Conference.Progress(s.relayEpoch)
		if !ok {
			// Stale sample from a superseded estimation run; discard.
			s.mu.Unlock()
			return
		}
		if p > s.progress {
			s.progress = p
		}
		if done {
			s.finishLocked(ctx)
			s.mu.Unlock()
			s.notify()
			return
		}
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
}

// resolveRef finds the playable asset for line: an already-attached signed
// URL wins, otherwise the generation collaborator is asked.
func (s *Session) resolveRef(ctx context.Context, line *scenario.VoiceLine) (*scenario.AudioRef, error) {
	if line.HasAudio() {
		return line.PreferredAudio, nil
	}
	if s.deps.Resolver == nil {
		return nil, ErrNoAudioAvailable
	}
	ref, pending, err := s.deps.Resolver.ResolveAudio(ctx, line.ID, s.deps.Voice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaybackRuntime, err)
	}
	if pending {
		return nil, ErrAudioPending
	}
	if ref == nil || ref.SignedURL == "" {
		return nil, ErrNoAudioAvailable
	}
	return ref, nil
}

// startLocal fetches and decodes the asset, wires it into the audio graph
// and starts the feed.
func (s *Session) startLocal(ctx context.Context, attempt int, line *scenario.VoiceLine, ref *scenario.AudioRef) error {
	pcm, err := s.loadPCM(ctx, line, ref)
	if err != nil {
		return s.fail(attempt, err)
	}

	key := audio.SourceKey{Line: line.ID, Voice: s.deps.Voice}
	src, err := s.deps.Registry.Acquire(key, pcm)
	if err != nil {
		return s.fail(attempt, fmt.Errorf("%w: %v", ErrPlaybackRuntime, err))
	}
	feed, err := s.deps.Registry.Connect(key)
	if err != nil {
		if errors.Is(err, audio.ErrAudioUnavailable) {
			return s.fail(attempt, ErrPlaybackBlocked)
		}
		return s.fail(attempt, fmt.Errorf("%w: %v", ErrPlaybackRuntime, err))
	}

	if err := src.Rewind(); err != nil {
		return s.fail(attempt, fmt.Errorf("%w: %v", ErrPlaybackRuntime, err))
	}

	s.mu.Lock()
	if s.epoch != attempt {
		// Superseded while loading; the new attempt owns the graph now.
		s.mu.Unlock()
		return nil
	}
	s.source = src
	s.mode = ModeLocal
	s.setStateLocked(StatePlayingLocal)
	feed.Play()
	s.mu.Unlock()
	s.notify()
	log.Debug("local playback started", "line", line.ID, "duration", src.Duration())
	return nil
}

// startConference issues the remote play command; its ack gates the state
// transition, after which progress is pure estimation.
func (s *Session) startConference(ctx context.Context, attempt int, line *scenario.VoiceLine, ref *scenario.AudioRef) error {
	if s.deps.Conference == nil {
		return s.fail(attempt, fmt.Errorf("%w: no conference attached", ErrPlaybackRuntime))
	}
	relayEpoch, err := s.deps.Conference.Play(ctx, line.ID, ref.DurationMs)
	if err != nil {
		if errors.Is(err, relay.ErrNoConference) {
			return s.fail(attempt, fmt.Errorf("%w: %v", ErrPlaybackRuntime, err))
		}
		return s.fail(attempt, fmt.Errorf("%w: %v", ErrPlaybackRuntime, err))
	}

	s.mu.Lock()
	if s.epoch != attempt {
		s.mu.Unlock()
		// Superseded mid-command: the sound may have reached the call, so
		// revoke it.
		_ = s.deps.Conference.Stop(ctx)
		return nil
	}
	s.relayEpoch = relayEpoch
	s.mode = ModeConference
	s.setStateLocked(StatePlayingConference)
	s.mu.Unlock()
	s.notify()
	log.Debug("conference playback started", "line", line.ID, "epoch", relayEpoch)
	return nil
}

// loadPCM returns decoded engine PCM for the asset, via the blob cache when
// possible.
func (s *Session) loadPCM(ctx context.Context, line *scenario.VoiceLine, ref *scenario.AudioRef) ([]byte, error) {
	cacheKey := cache.Key(line.ID, s.deps.Voice)
	if s.deps.Blobs != nil {
		if pcm, ok := s.deps.Blobs.Get(cacheKey); ok {
			return pcm, nil
		}
	}
	if s.deps.Fetcher == nil {
		return nil, ErrPlaybackBlocked
	}
	payload, err := s.deps.Fetcher.FetchAsset(ctx, ref.SignedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaybackRuntime, err)
	}
	pcm, err := audio.DecodeWAV(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaybackRuntime, err)
	}
	if s.deps.Blobs != nil {
		if err := s.deps.Blobs.Put(cacheKey, pcm); err != nil {
			log.Debug("blob cache store failed", "line", line.ID, "error", err)
		}
	}
	return pcm, nil
}

// teardownLocked stops whatever is active: pause and rewind the local feed,
// revoke the conference command, zero the progress. Caller holds s.mu.
func (s *Session) teardownLocked(ctx context.Context) {
	if s.source != nil {
		if err := s.source.Rewind(); err != nil {
			log.Debug("source rewind failed during teardown", "error", err)
		}
		s.source = nil
	}
	if s.mode == ModeConference && s.deps.Conference != nil {
		if err := s.deps.Conference.Stop(ctx); err != nil {
			log.Debug("conference stop failed during teardown", "error", err)
		}
	}
	s.active = nil
	s.mode = ""
	s.progress = 0
	s.relayEpoch = 0
}

// finishLocked handles natural end-of-track: full teardown back to Idle.
// Caller holds s.mu.
func (s *Session) finishLocked(ctx context.Context) {
	s.teardownLocked(ctx)
	s.epoch++
	s.setStateLocked(StateIdle)
}

// fail records an attempt failure. The Error state is terminal for the
// attempt only: the event stream sees it, then the session lands in Idle,
// retryable. A failure reported for a superseded attempt is discarded.
func (s *Session) fail(attempt int, err error) error {
	s.mu.Lock()
	if s.epoch != attempt {
		s.mu.Unlock()
		return nil
	}
	line := scenario.LineID(0)
	if s.active != nil {
		line = s.active.ID
	}
	s.teardownLocked(context.Background())
	s.lastErr = err
	s.setStateLocked(StateError)
	s.mu.Unlock()

	if s.deps.Notify != nil {
		s.deps.Notify(Event{State: StateError, Line: line, Err: err})
	}

	s.mu.Lock()
	if s.state == StateError {
		s.setStateLocked(StateIdle)
	}
	s.mu.Unlock()
	return err
}

// setStateLocked transitions the state machine, logging illegal edges.
// Caller holds s.mu.
func (s *Session) setStateLocked(to State) {
	if s.state == to {
		return
	}
	if !canTransition(s.state, to) {
		log.Warn("illegal playback transition", "from", s.state, "to", to)
	}
	s.state = to
}

// notify emits the current snapshot to the event sink.
func (s *Session) notify() {
	if s.deps.Notify == nil {
		return
	}
	snap := s.Snapshot()
	s.deps.Notify(Event{
		State:    snap.State,
		Mode:     snap.Mode,
		Line:     snap.ActiveID,
		Progress: snap.Progress,
		Err:      snap.Err,
	})
}
