package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

// DefaultTapSize is the default analyser window in samples. At 44.1kHz mono
// this is roughly 46ms of audio, enough for a stable RMS reading per frame.
const DefaultTapSize = 2048

// TapOptions configures a new analyser tap.
type TapOptions struct {
	// Size is the ring capacity in samples. Zero means DefaultTapSize.
	Size int
}

// Tap captures a rolling window of time-domain samples from the playback
// stream for visualization. It sits behind the source's fan-out: every byte
// the device pulls is mirrored here as normalized float samples.
//
// Taps are cheap and disposable. Each visualizer owns exactly one and must
// detach it via [Source.DetachTap] on teardown.
type Tap struct {
	mu   sync.Mutex
	buf  []float64
	pos  int
	size int
}

// NewTap creates a detached tap. The registry attaches it to a source.
func NewTap(opts TapOptions) *Tap {
	size := opts.Size
	if size <= 0 {
		size = DefaultTapSize
	}
	return &Tap{buf: make([]float64, size), size: size}
}

// push decodes s16le PCM into the ring. Called from the source's Read path.
func (t *Tap) push(pcm []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int16(binary.LittleEndian.Uint16(pcm[i:]))
		t.buf[t.pos] = float64(v) / math.MaxInt16
		t.pos = (t.pos + 1) % t.size
	}
}

// Samples copies the most recent n samples into dst order-preserving and
// returns the number written. If n exceeds the window, the full window is
// returned.
func (t *Tap) Samples(dst []float64) int {
	n := len(dst)
	if n > t.size {
		n = t.size
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	start := (t.pos - n + t.size) % t.size
	for i := 0; i < n; i++ {
		dst[i] = t.buf[(start+i)%t.size]
	}
	return n
}

// RMS returns the root-mean-square amplitude of the current window, in
// [0, 1]. Silence reads as 0.
func (t *Tap) RMS() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum float64
	for _, v := range t.buf {
		sum += v * v
	}
	return math.Sqrt(sum / float64(t.size))
}

// Size returns the window capacity in samples.
func (t *Tap) Size() int { return t.size }
