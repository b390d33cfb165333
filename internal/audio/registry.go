package audio

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

// SourceKey identifies an audio asset in the graph: one voice line rendered
// with one voice.
type SourceKey struct {
	Line  scenario.LineID
	Voice scenario.VoiceID
}

// Attachment is what a visualizer gets back from [Registry.Attach]: the
// shared context, the cached source, and a fresh analyser tap owned by the
// caller. Tap is nil in degraded (no audio hardware) mode; treat that as
// "draw nothing".
type Attachment struct {
	Context Context
	Source  *Source
	Tap     *Tap
}

// Registry owns the process-wide audio graph. It lazily creates the shared
// output context on first use and caches exactly one [Source] per key,
// because the platform forbids wrapping the same asset twice.
//
// Entries are never evicted: a cached source's feed cannot be recreated, so
// dropping the entry would make the asset unplayable for the rest of the
// process. Asset memory is bounded upstream by the blob cache.
//
// All checks are synchronous under one mutex; there are no awaited calls
// between check and act.
type Registry struct {
	mu      sync.Mutex
	factory ContextFactory
	ctx     Context
	ctxErr  error
	tried   bool
	sources map[SourceKey]*Source
}

// NewRegistry creates a registry that builds its context with factory on
// first use. A nil factory uses the real device context.
func NewRegistry(factory ContextFactory) *Registry {
	if factory == nil {
		factory = NewDeviceContext
	}
	return &Registry{
		factory: factory,
		sources: make(map[SourceKey]*Source),
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry, creating it on first call.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(nil)
	})
	return defaultRegistry
}

// context lazily initializes the shared output context. The init result is
// sticky: a failed init marks the registry degraded for the process lifetime
// rather than retrying on every call.
func (r *Registry) context() (Context, error) {
	if r.tried {
		return r.ctx, r.ctxErr
	}
	r.tried = true
	ctx, err := r.factory()
	if err != nil {
		log.Warn("audio context unavailable, running silent", "error", err)
		r.ctx, r.ctxErr = nil, ErrAudioUnavailable
		return nil, r.ctxErr
	}
	r.ctx = ctx
	return ctx, nil
}

// Degraded reports whether the registry runs without audio output.
func (r *Registry) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.tried {
		return false
	}
	return r.ctxErr != nil
}

// Acquire returns the cached source for key, creating it from pcm on first
// call. Subsequent calls ignore pcm and return the existing source, so call
// sites may re-invoke freely during view remounts.
func (r *Registry) Acquire(key SourceKey, pcm []byte) (*Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if src, ok := r.sources[key]; ok {
		return src, nil
	}
	src := newSource(key, pcm)
	r.sources[key] = src
	return src, nil
}

// Lookup returns the cached source for key, or nil.
func (r *Registry) Lookup(key SourceKey) *Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sources[key]
}

// Connect wires the source for key to the output context and returns its
// feed. The feed is created at most once per source; repeat calls return the
// existing feed (idempotent, tolerating remount-time re-invocation).
// Returns ErrAudioUnavailable in degraded mode.
func (r *Registry) Connect(key SourceKey) (Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[key]
	if !ok {
		return nil, ErrSourceClosed
	}
	ctx, err := r.context()
	if err != nil {
		return nil, err
	}
	return src.connectFeed(ctx)
}

// Attach returns the shared context, the cached source for key, and a FRESH
// analyser tap wired to it. Every call creates a new tap; taps are owned by
// the caller and must be detached on teardown. The source itself is created
// from pcm if absent and connected to the output exactly once.
//
// In degraded mode the attachment carries a nil Tap and nil Context and no
// error: visualization is optional, missing audio hardware is not fatal.
func (r *Registry) Attach(key SourceKey, pcm []byte, opts TapOptions) (Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[key]
	if !ok {
		src = newSource(key, pcm)
		r.sources[key] = src
	}

	ctx, err := r.context()
	if err != nil {
		return Attachment{Source: src}, nil
	}
	if _, err := src.connectFeed(ctx); err != nil {
		return Attachment{Source: src}, nil
	}

	tap := NewTap(opts)
	src.attachTap(tap)
	return Attachment{Context: ctx, Source: src, Tap: tap}, nil
}
