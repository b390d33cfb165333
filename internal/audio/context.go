package audio

import (
	"errors"
	"io"
	"time"
)

// Audio format used throughout the engine. Fetched assets are normalized to
// this format before they enter the graph.
const (
	// SampleRate is the playback sample rate in Hz.
	SampleRate = 44100

	// Channels is the channel count (mono; voice lines are single-speaker).
	Channels = 1

	// BitDepth is bits per sample (signed 16-bit little-endian).
	BitDepth = 16

	// BytesPerSecond is derived from the format above.
	BytesPerSecond = SampleRate * Channels * BitDepth / 8
)

var (
	// ErrAudioUnavailable is returned when the output context could not be
	// initialized (no audio hardware, unsupported environment). Callers
	// degrade to silent operation; visualization draws nothing.
	ErrAudioUnavailable = errors.New("audio output is unavailable")

	// ErrContextNotReady is returned when a feed is requested before the
	// context finished initializing.
	ErrContextNotReady = errors.New("audio context not ready")

	// ErrSourceClosed is returned when operating on a released source.
	ErrSourceClosed = errors.New("audio source is closed")
)

// Context is the process-wide audio output context. Exactly one real
// implementation exists per process; tests substitute [StubContext].
type Context interface {
	// NewFeed wraps r with a playback feed. The platform permits wrapping
	// a given reader at most once; the [Registry] guards this.
	NewFeed(r io.Reader) (Feed, error)

	// IsReady reports whether the context can create feeds.
	IsReady() bool

	// SampleRate returns the context sample rate in Hz.
	SampleRate() int

	// ChannelCount returns the number of output channels.
	ChannelCount() int
}

// Feed is an active playback connection from a source to the output device.
type Feed interface {
	// Play starts or resumes playback.
	Play()

	// Pause pauses playback; Play resumes from the paused position.
	Pause()

	// IsPlaying reports whether samples are currently being consumed.
	IsPlaying() bool

	// Reset rewinds the feed to the beginning of its source.
	Reset() error

	// SetVolume sets playback volume in [0.0, 1.0].
	SetVolume(volume float64)

	// BufferedDuration reports how much audio the device has buffered but
	// not yet played, used to correct position estimates.
	BufferedDuration() time.Duration

	// Close releases the feed. The source it wrapped must not be wrapped
	// again afterwards.
	Close() error
}

// ContextFactory creates the process context. Swappable for tests and for
// degraded (no-audio) environments.
type ContextFactory func() (Context, error)

// Duration converts a byte count of engine-format PCM to wall time.
func Duration(pcmBytes int) time.Duration {
	return time.Duration(pcmBytes) * time.Second / BytesPerSecond
}
