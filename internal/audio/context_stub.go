package audio

import (
	"io"
	"sync"
	"time"
)

// StubContext implements Context without touching audio hardware. It is used
// by tests and by CI-like environments where no output device exists. Stub
// feeds consume their reader on demand via Drain, which lets tests drive the
// sample stream deterministically.
type StubContext struct {
	mu    sync.Mutex
	ready bool

	// FeedsCreated counts NewFeed calls, letting tests assert the
	// wrap-at-most-once invariant.
	FeedsCreated int
}

// NewStubContext creates a ready stub context.
func NewStubContext() *StubContext {
	return &StubContext{ready: true}
}

// NewFeed creates a stub feed over r.
func (c *StubContext) NewFeed(r io.Reader) (Feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return nil, ErrContextNotReady
	}
	c.FeedsCreated++
	return &StubFeed{reader: r}, nil
}

// IsReady reports whether the stub accepts feeds.
func (c *StubContext) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// SetReady toggles readiness, for failure-path tests.
func (c *StubContext) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

func (c *StubContext) SampleRate() int   { return SampleRate }
func (c *StubContext) ChannelCount() int { return Channels }

// StubFeed is a hardware-free Feed. Playback position only advances when a
// test calls Drain.
type StubFeed struct {
	mu      sync.Mutex
	reader  io.Reader
	playing bool
	closed  bool
	volume  float64
}

// Play marks the feed as playing.
func (f *StubFeed) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.playing = true
	}
}

// Pause marks the feed as paused.
func (f *StubFeed) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

// IsPlaying reports the playing flag.
func (f *StubFeed) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

// Reset rewinds the underlying reader when it supports seeking.
func (f *StubFeed) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seeker, ok := f.reader.(io.Seeker); ok {
		_, err := seeker.Seek(0, io.SeekStart)
		return err
	}
	return nil
}

// SetVolume records the volume.
func (f *StubFeed) SetVolume(volume float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = volume
}

// BufferedDuration always reports zero; stub feeds have no device buffer.
func (f *StubFeed) BufferedDuration() time.Duration { return 0 }

// Close marks the feed closed.
func (f *StubFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	f.closed = true
	return nil
}

// Drain consumes up to n bytes from the feed's reader, simulating the device
// pulling samples. It returns the number of bytes consumed.
func (f *StubFeed) Drain(n int) int {
	f.mu.Lock()
	r := f.reader
	f.mu.Unlock()
	buf := make([]byte, n)
	read, _ := io.ReadFull(r, buf)
	return read
}
