package audio

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Source is one cached audio asset wired into the playback graph. The PCM
// buffer is kept alive for the source's entire lifetime; releasing it while
// the device still reads from it causes audible static.
//
// A source is wrapped by at most one Feed, created lazily by the registry on
// first playback and reused afterwards. Analyser taps observe every byte the
// feed pulls, fanning out through the source's reader.
type Source struct {
	key  SourceKey
	data []byte

	mu     sync.Mutex
	feed   Feed
	taps   []*Tap
	closed bool

	// consumed counts bytes pulled by the feed, including bytes still
	// sitting in the device buffer.
	consumed atomic.Int64
}

func newSource(key SourceKey, pcm []byte) *Source {
	return &Source{key: key, data: pcm}
}

// Key returns the source's registry key.
func (s *Source) Key() SourceKey { return s.key }

// Duration returns the total length of the asset.
func (s *Source) Duration() time.Duration { return Duration(len(s.data)) }

// Read implements io.Reader for the playback feed. Every byte handed to the
// device is also pushed into the attached taps. Read is only ever called by
// the single feed, so the fan-out needs no ordering guarantees beyond the
// tap's own locking.
func (s *Source) Read(p []byte) (int, error) {
	off := s.consumed.Load()
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	s.consumed.Add(int64(n))

	s.mu.Lock()
	taps := s.taps
	s.mu.Unlock()
	for _, t := range taps {
		t.push(p[:n])
	}
	return n, nil
}

// Seek implements io.Seeker so the feed can rewind the source.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.consumed.Load() + offset
	case io.SeekEnd:
		abs = int64(len(s.data)) + offset
	}
	if abs < 0 {
		abs = 0
	}
	if abs > int64(len(s.data)) {
		abs = int64(len(s.data))
	}
	s.consumed.Store(abs)
	return abs, nil
}

// Position returns the current playback position, corrected for audio the
// device has buffered but not yet played.
func (s *Source) Position() time.Duration {
	pos := Duration(int(s.consumed.Load()))
	s.mu.Lock()
	feed := s.feed
	s.mu.Unlock()
	if feed != nil {
		pos -= feed.BufferedDuration()
	}
	if pos < 0 {
		pos = 0
	}
	if total := s.Duration(); pos > total {
		pos = total
	}
	return pos
}

// Progress returns playback progress in [0, 1].
func (s *Source) Progress() float64 {
	total := s.Duration()
	if total <= 0 {
		return 0
	}
	return float64(s.Position()) / float64(total)
}

// Completed reports whether the feed has pulled the entire asset and the
// device buffer has drained.
func (s *Source) Completed() bool {
	if s.consumed.Load() < int64(len(s.data)) {
		return false
	}
	s.mu.Lock()
	feed := s.feed
	s.mu.Unlock()
	return feed == nil || feed.BufferedDuration() == 0
}

// attachTap registers a tap for fan-out. Called by the registry only.
func (s *Source) attachTap(t *Tap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taps = append(s.taps, t)
}

// DetachTap removes a tap from fan-out. Safe to call more than once; a tap
// not attached is a no-op. The shared feed and context are untouched.
func (s *Source) DetachTap(t *Tap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.taps {
		if existing == t {
			s.taps = append(s.taps[:i], s.taps[i+1:]...)
			return
		}
	}
}

// connectFeed wires the source to the output context. The feed is created at
// most once for the source's lifetime; repeat calls return the existing feed.
// Called with the registry lock held, never concurrently.
func (s *Source) connectFeed(ctx Context) (Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	if s.feed != nil {
		// Wrapping twice is a platform fault; tolerate the re-request.
		return s.feed, nil
	}
	feed, err := ctx.NewFeed(s)
	if err != nil {
		return nil, err
	}
	s.feed = feed
	return feed, nil
}

// Feed returns the source's playback feed, or nil if playback never started.
func (s *Source) Feed() Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed
}

// Rewind stops playback and resets the position to the start.
func (s *Source) Rewind() error {
	s.mu.Lock()
	feed := s.feed
	s.mu.Unlock()
	if feed != nil {
		feed.Pause()
		return feed.Reset()
	}
	_, err := s.Seek(0, io.SeekStart)
	return err
}
