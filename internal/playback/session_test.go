package playback

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/OmniDock/od-prank-deck/internal/audio"
	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

// buildWAV assembles a minimal RIFF/WAVE container around raw s16le samples
// at the engine's native rate, so decoding is a passthrough.
func buildWAV(t *testing.T, samples int) []byte {
	t.Helper()
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(8000)))
	}

	var buf []byte
	buf = append(buf, []byte("RIFF")...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+len(data)))
	buf = append(buf, []byte("WAVE")...)
	buf = append(buf, []byte("fmt ")...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, 1) // mono
	buf = binary.LittleEndian.AppendUint32(buf, audio.SampleRate)
	buf = binary.LittleEndian.AppendUint32(buf, audio.SampleRate*2)
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, []byte("data")...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	buf = append(buf, data...)
	return buf
}

type fakeResolver struct {
	mu      sync.Mutex
	refs    map[scenario.LineID]*scenario.AudioRef
	pending map[scenario.LineID]bool
	calls   int
}

func (r *fakeResolver) ResolveAudio(_ context.Context, lineID scenario.LineID, _ scenario.VoiceID) (*scenario.AudioRef, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.pending[lineID] {
		return nil, true, nil
	}
	ref, ok := r.refs[lineID]
	if !ok {
		return nil, false, nil
	}
	return ref, false, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	assets  map[string][]byte
	fetches int
}

func (f *fakeFetcher) FetchAsset(_ context.Context, signedURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	payload, ok := f.assets[signedURL]
	if !ok {
		return nil, errors.New("asset gone")
	}
	return payload, nil
}

type fakeBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: make(map[string][]byte)}
}

func (b *fakeBlobs) Get(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pcm, ok := b.blobs[key]
	return pcm, ok
}

func (b *fakeBlobs) Put(key string, pcm []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = pcm
	return nil
}

type fakeConference struct {
	mu       sync.Mutex
	plays    []scenario.LineID
	stops    int
	epoch    int
	playErr  error
	progress float64
	done     bool
}

func (c *fakeConference) Play(_ context.Context, lineID scenario.LineID, _ int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playErr != nil {
		return 0, c.playErr
	}
	c.plays = append(c.plays, lineID)
	c.epoch++
	return c.epoch, nil
}

func (c *fakeConference) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *fakeConference) Progress(epoch int) (float64, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return 0, false, false
	}
	return c.progress, c.done, true
}

func (c *fakeConference) set(progress float64, done bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = progress
	c.done = done
}

func (c *fakeConference) playCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.plays)
}

func (c *fakeConference) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

type harness struct {
	session  *Session
	registry *audio.Registry
	stub     *audio.StubContext
	resolver *fakeResolver
	fetcher  *fakeFetcher
	conf     *fakeConference
	voice    scenario.VoiceID
}

func newHarness(t *testing.T, surface Surface) *harness {
	t.Helper()
	stub := audio.NewStubContext()
	registry := audio.NewRegistry(func() (audio.Context, error) { return stub, nil })
	resolver := &fakeResolver{
		refs:    make(map[scenario.LineID]*scenario.AudioRef),
		pending: make(map[scenario.LineID]bool),
	}
	fetcher := &fakeFetcher{assets: make(map[string][]byte)}
	conf := &fakeConference{}
	h := &harness{
		registry: registry,
		stub:     stub,
		resolver: resolver,
		fetcher:  fetcher,
		conf:     conf,
		voice:    "voice-a",
	}
	h.session = NewSession(surface, Deps{
		Registry:   registry,
		Resolver:   resolver,
		Fetcher:    fetcher,
		Blobs:      newFakeBlobs(),
		Conference: conf,
		Voice:      h.voice,
	})
	return h
}

// addLine registers a line with a decodeable asset behind its signed URL.
func (h *harness) addLine(t *testing.T, id scenario.LineID, samples int) *scenario.VoiceLine {
	t.Helper()
	url := "https://cdn.example/" + string(rune('a'+int(id%26)))
	h.resolver.mu.Lock()
	h.resolver.refs[id] = &scenario.AudioRef{SignedURL: url, DurationMs: 3000}
	h.resolver.mu.Unlock()
	h.fetcher.mu.Lock()
	h.fetcher.assets[url] = buildWAV(t, samples)
	h.fetcher.mu.Unlock()
	return &scenario.VoiceLine{ID: id, Text: "line", Type: scenario.LineTypeQuestion}
}

func (h *harness) feedFor(id scenario.LineID) *audio.StubFeed {
	src := h.registry.Lookup(audio.SourceKey{Line: id, Voice: h.voice})
	if src == nil {
		return nil
	}
	feed, _ := src.Feed().(*audio.StubFeed)
	return feed
}

func TestSession_PlayLocalStartsFeed(t *testing.T) {
	h := newHarness(t, SurfaceLocal)
	line := h.addLine(t, 7, audio.SampleRate) // one second

	if err := h.session.Play(context.Background(), line); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	snap := h.session.Snapshot()
	if snap.State != StatePlayingLocal {
		t.Fatalf("state = %s, want %s", snap.State, StatePlayingLocal)
	}
	if snap.ActiveID != 7 {
		t.Errorf("active line = %d, want 7", snap.ActiveID)
	}
	feed := h.feedFor(7)
	if feed == nil {
		t.Fatal("no feed wired for line 7")
	}
	if !feed.IsPlaying() {
		t.Error("feed not playing after Play")
	}
	if h.conf.playCount() != 0 {
		t.Errorf("remote play calls = %d, want 0 on local surface", h.conf.playCount())
	}
}

func TestSession_PlaySameLineTogglesStop(t *testing.T) {
	h := newHarness(t, SurfaceLocal)
	line := h.addLine(t, 3, audio.SampleRate)

	if err := h.session.Play(context.Background(), line); err != nil {
		t.Fatalf("first Play() error = %v", err)
	}
	if err := h.session.Play(context.Background(), line); err != nil {
		t.Fatalf("toggle Play() error = %v", err)
	}

	snap := h.session.Snapshot()
	if snap.State != StateIdle {
		t.Fatalf("state after toggle = %s, want %s", snap.State, StateIdle)
	}
	if snap.Progress != 0 {
		t.Errorf("progress after toggle = %v, want exactly 0", snap.Progress)
	}
	if feed := h.feedFor(3); feed != nil && feed.IsPlaying() {
		t.Error("feed still playing after toggle stop")
	}
}

func TestSession_SwitchTearsDownBeforeStart(t *testing.T) {
	h := newHarness(t, SurfaceLocal)
	a := h.addLine(t, 1, audio.SampleRate)
	b := h.addLine(t, 2, audio.SampleRate)

	if err := h.session.Play(context.Background(), a); err != nil {
		t.Fatalf("Play(a) error = %v", err)
	}
	h.feedFor(1).Drain(4096)
	h.session.Tick(context.Background())
	if got := h.session.Progress(); got <= 0 {
		t.Fatalf("progress before switch = %v, want > 0", got)
	}

	if err := h.session.Play(context.Background(), b); err != nil {
		t.Fatalf("Play(b) error = %v", err)
	}

	// Never both producing sound: a's feed must be stopped and rewound.
	feedA := h.feedFor(1)
	if feedA.IsPlaying() {
		t.Error("line 1 feed still playing after switching to line 2")
	}
	if !h.feedFor(2).IsPlaying() {
		t.Error("line 2 feed not playing after switch")
	}
	if got := h.session.ActiveLine(); got != 2 {
		t.Errorf("active line = %d, want 2", got)
	}
	if got := h.session.Progress(); got != 0 {
		t.Errorf("progress after switch = %v, want reset to 0", got)
	}

	srcA := h.registry.Lookup(audio.SourceKey{Line: 1, Voice: h.voice})
	if pos := srcA.Position(); pos != 0 {
		t.Errorf("line 1 position after teardown = %v, want 0", pos)
	}
}

func TestSession_ProgressMonotonicAndCompletes(t *testing.T) {
	h := newHarness(t, SurfaceLocal)
	line := h.addLine(t, 5, 2048)

	if err := h.session.Play(context.Background(), line); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	feed := h.feedFor(5)
	last := 0.0
	for i := 0; i < 7; i++ {
		feed.Drain(512)
		h.session.Tick(context.Background())
		got := h.session.Progress()
		if got < last {
			t.Fatalf("progress decreased within attempt: %v after %v", got, last)
		}
		last = got
	}

	// The feed pulls the tail; the next tick observes completion.
	feed.Drain(512)
	h.session.Tick(context.Background())
	snap := h.session.Snapshot()
	if snap.State != StateIdle {
		t.Fatalf("state after natural end = %s, want %s", snap.State, StateIdle)
	}
	if snap.Progress != 0 {
		t.Errorf("progress after natural end = %v, want reset to 0", snap.Progress)
	}
}

func TestSession_PauseResume(t *testing.T) {
	h := newHarness(t, SurfaceLocal)
	line := h.addLine(t, 9, audio.SampleRate)

	if err := h.session.Play(context.Background(), line); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := h.session.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if !h.session.IsPaused() {
		t.Fatal("session not paused")
	}
	if h.feedFor(9).IsPlaying() {
		t.Error("feed still playing while paused")
	}
	if err := h.session.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if !h.session.IsPlaying() {
		t.Error("session not playing after resume")
	}

	_ = h.session.Stop(context.Background())
	if err := h.session.Pause(); err == nil {
		t.Error("Pause() on idle session succeeded, want error")
	}
}

func TestSession_NoAudioFailsWithoutRemoteCalls(t *testing.T) {
	h := newHarness(t, SurfaceConference)
	line := &scenario.VoiceLine{ID: 42, Text: "no asset", Type: scenario.LineTypeQuestion}

	var events []Event
	h.session.deps.Notify = func(e Event) { events = append(events, e) }

	err := h.session.Play(context.Background(), line)
	if !errors.Is(err, ErrNoAudioAvailable) {
		t.Fatalf("Play() error = %v, want ErrNoAudioAvailable", err)
	}
	if h.conf.playCount() != 0 || h.conf.stopCount() != 0 {
		t.Errorf("remote calls = %d plays, %d stops; want none", h.conf.playCount(), h.conf.stopCount())
	}

	sawError := false
	for _, e := range events {
		if e.State == StateError && errors.Is(e.Err, ErrNoAudioAvailable) {
			sawError = true
		}
	}
	if !sawError {
		t.Error("no Error event with ErrNoAudioAvailable observed")
	}
	if got := h.session.Snapshot().State; got != StateIdle {
		t.Errorf("state after failure = %s, want %s (retryable)", got, StateIdle)
	}
}

func TestSession_PendingGenerationFails(t *testing.T) {
	h := newHarness(t, SurfaceLocal)
	line := &scenario.VoiceLine{ID: 11, Text: "rendering", Type: scenario.LineTypeQuestion}
	h.resolver.pending[11] = true

	err := h.session.Play(context.Background(), line)
	if !errors.Is(err, ErrAudioPending) {
		t.Fatalf("Play() error = %v, want ErrAudioPending", err)
	}
	if h.fetcher.fetches != 0 {
		t.Errorf("fetches = %d, want 0 while generation pending", h.fetcher.fetches)
	}
}

func TestSession_ConferencePlayGatedOnAck(t *testing.T) {
	h := newHarness(t, SurfaceConference)
	line := h.addLine(t, 21, audio.SampleRate)
	h.conf.playErr = errors.New("call dropped")

	err := h.session.Play(context.Background(), line)
	if !errors.Is(err, ErrPlaybackRuntime) {
		t.Fatalf("Play() error = %v, want ErrPlaybackRuntime", err)
	}
	if got := h.session.Snapshot().State; got == StatePlayingConference {
		t.Error("session playing despite rejected remote command")
	}

	h.conf.playErr = nil
	if err := h.session.Play(context.Background(), line); err != nil {
		t.Fatalf("retry Play() error = %v", err)
	}
	if got := h.session.Snapshot().State; got != StatePlayingConference {
		t.Fatalf("state = %s, want %s", got, StatePlayingConference)
	}
	if h.conf.playCount() != 1 {
		t.Errorf("acked remote plays = %d, want 1", h.conf.playCount())
	}
}

func TestSession_ConferenceProgressAndFinish(t *testing.T) {
	h := newHarness(t, SurfaceConference)
	line := h.addLine(t, 30, audio.SampleRate)

	if err := h.session.Play(context.Background(), line); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	steps := []float64{0.2, 0.5, 0.5, 0.9}
	last := 0.0
	for _, p := range steps {
		h.conf.set(p, false)
		h.session.Tick(context.Background())
		got := h.session.Progress()
		if got < last {
			t.Fatalf("conference progress decreased: %v after %v", got, last)
		}
		last = got
	}

	h.conf.set(1, true)
	h.session.Tick(context.Background())
	snap := h.session.Snapshot()
	if snap.State != StateIdle {
		t.Fatalf("state after estimated end = %s, want %s", snap.State, StateIdle)
	}
	if snap.Progress != 0 {
		t.Errorf("progress after estimated end = %v, want reset to 0", snap.Progress)
	}
	// Teardown revokes the remote command exactly once.
	if h.conf.stopCount() != 1 {
		t.Errorf("remote stops = %d, want 1 from teardown", h.conf.stopCount())
	}
}

func TestSession_ConferenceStopRevokesRemote(t *testing.T) {
	h := newHarness(t, SurfaceConference)
	line := h.addLine(t, 31, audio.SampleRate)

	if err := h.session.Play(context.Background(), line); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := h.session.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if h.conf.stopCount() != 1 {
		t.Errorf("remote stops = %d, want 1", h.conf.stopCount())
	}
	// Stopping again is a no-op, locally and remotely.
	if err := h.session.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if h.conf.stopCount() != 1 {
		t.Errorf("remote stops after idle Stop = %d, want still 1", h.conf.stopCount())
	}
}

func TestSession_StaleConferenceSampleDiscarded(t *testing.T) {
	h := newHarness(t, SurfaceConference)
	a := h.addLine(t, 40, audio.SampleRate)
	b := h.addLine(t, 41, audio.SampleRate)

	if err := h.session.Play(context.Background(), a); err != nil {
		t.Fatalf("Play(a) error = %v", err)
	}
	h.conf.set(0.8, false)
	h.session.Tick(context.Background())
	if got := h.session.Progress(); got != 0.8 {
		t.Fatalf("progress = %v, want 0.8", got)
	}

	// Another controller supersedes the relay epoch; the session's next
	// sample comes back stale and must be discarded, not applied.
	h.conf.mu.Lock()
	h.conf.epoch++
	h.conf.mu.Unlock()
	h.conf.set(0.2, false)
	h.session.Tick(context.Background())
	if got := h.session.Progress(); got != 0.8 {
		t.Errorf("progress after stale sample = %v, want unchanged 0.8", got)
	}

	if err := h.session.Play(context.Background(), b); err != nil {
		t.Fatalf("Play(b) error = %v", err)
	}
	if got := h.session.Progress(); got != 0 {
		t.Errorf("progress after switch = %v, want 0", got)
	}
	h.conf.set(0.1, false)
	h.session.Tick(context.Background())
	if got := h.session.Progress(); got != 0.1 {
		t.Errorf("progress = %v, want fresh attempt's 0.1", got)
	}
}

func TestSession_BlobCacheSkipsSecondFetch(t *testing.T) {
	h := newHarness(t, SurfaceLocal)
	line := h.addLine(t, 50, audio.SampleRate)

	if err := h.session.Play(context.Background(), line); err != nil {
		t.Fatalf("first Play() error = %v", err)
	}
	_ = h.session.Stop(context.Background())
	if err := h.session.Play(context.Background(), line); err != nil {
		t.Fatalf("second Play() error = %v", err)
	}
	if h.fetcher.fetches != 1 {
		t.Errorf("fetches = %d, want 1 with warm blob cache", h.fetcher.fetches)
	}
	if h.stub.FeedsCreated != 1 {
		t.Errorf("feeds created = %d, want 1 across replays", h.stub.FeedsCreated)
	}
}

func TestSession_DegradedAudioBlocksLocalPlayback(t *testing.T) {
	registry := audio.NewRegistry(func() (audio.Context, error) {
		return nil, errors.New("no output device")
	})
	resolver := &fakeResolver{
		refs:    map[scenario.LineID]*scenario.AudioRef{60: {SignedURL: "https://cdn.example/x"}},
		pending: make(map[scenario.LineID]bool),
	}
	fetcher := &fakeFetcher{assets: map[string][]byte{"https://cdn.example/x": buildWAV(t, 1024)}}
	session := NewSession(SurfaceLocal, Deps{
		Registry: registry,
		Resolver: resolver,
		Fetcher:  fetcher,
	})

	err := session.Play(context.Background(), &scenario.VoiceLine{ID: 60, Type: scenario.LineTypeQuestion})
	if !errors.Is(err, ErrPlaybackBlocked) {
		t.Fatalf("Play() error = %v, want ErrPlaybackBlocked", err)
	}
	if got := session.Snapshot().State; got != StateIdle {
		t.Errorf("state after blocked playback = %s, want %s", got, StateIdle)
	}
}

func TestSession_LineSwitchWalksLegalTransitionsOnly(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	h := newHarness(t, SurfaceLocal)
	a := h.addLine(t, 1, audio.SampleRate)
	b := h.addLine(t, 2, audio.SampleRate)
	c := h.addLine(t, 3, audio.SampleRate)

	// Exercise every switch origin: playing, paused, and a fresh start.
	if err := h.session.Play(context.Background(), a); err != nil {
		t.Fatalf("Play(a) error = %v", err)
	}
	if err := h.session.Play(context.Background(), b); err != nil {
		t.Fatalf("Play(b) error = %v", err)
	}
	if err := h.session.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := h.session.Play(context.Background(), c); err != nil {
		t.Fatalf("Play(c) error = %v", err)
	}
	if err := h.session.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if out := buf.String(); strings.Contains(out, "illegal playback transition") {
		t.Errorf("transition warnings logged during line switching:\n%s", out)
	}
}
