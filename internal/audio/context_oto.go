//go:build !nocgo
// +build !nocgo

package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// otoContext implements Context using real audio hardware via oto.
type otoContext struct {
	mu    sync.Mutex
	ctx   *oto.Context
	ready bool
}

// NewDeviceContext initializes the real output context. It blocks until the
// device reports ready or the initialization times out. There must be at
// most one call per process that succeeds; [Registry] guarantees this.
func NewDeviceContext() (Context, error) {
	options := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   50 * time.Millisecond,
	}

	log.Debug("initializing audio output context",
		"sample_rate", options.SampleRate,
		"channels", options.ChannelCount,
		"buffer_size", options.BufferSize)

	ctx, readyChan, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}

	select {
	case <-readyChan:
	case <-time.After(5 * time.Second):
		// oto v3 contexts have no Close; the handle is abandoned.
		return nil, fmt.Errorf("audio context initialization timed out")
	}

	log.Debug("audio output context ready")
	return &otoContext{ctx: ctx, ready: true}, nil
}

func (c *otoContext) NewFeed(r io.Reader) (Feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready || c.ctx == nil {
		return nil, ErrContextNotReady
	}
	return &otoFeed{player: c.ctx.NewPlayer(r), reader: r}, nil
}

func (c *otoContext) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *otoContext) SampleRate() int   { return SampleRate }
func (c *otoContext) ChannelCount() int { return Channels }

// otoFeed wraps an oto.Player as a Feed.
type otoFeed struct {
	player *oto.Player
	reader io.Reader
}

func (f *otoFeed) Play()           { f.player.Play() }
func (f *otoFeed) Pause()          { f.player.Pause() }
func (f *otoFeed) IsPlaying() bool { return f.player.IsPlaying() }

func (f *otoFeed) Reset() error {
	if seeker, ok := f.reader.(io.Seeker); ok {
		_, err := seeker.Seek(0, io.SeekStart)
		return err
	}
	return fmt.Errorf("audio source does not support seeking")
}

func (f *otoFeed) SetVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	f.player.SetVolume(volume)
}

func (f *otoFeed) BufferedDuration() time.Duration {
	return Duration(f.player.UnplayedBufferSize())
}

func (f *otoFeed) Close() error { return f.player.Close() }
