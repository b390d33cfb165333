// Package viz implements the circular amplitude visualizer: a rotating ring
// of 360 amplitude samples fed from a live analyser tap and rendered by the
// UI at display refresh rate.
package viz

import (
	"math"
	"sync"
	"time"
)

const (
	// RingSlots is the ring resolution, one slot per degree.
	RingSlots = 360

	// Gain scales raw RMS into visible amplitude. Chosen empirically;
	// speech RMS rarely exceeds 0.2.
	Gain = 5.0

	// Decay is the per-frame multiplicative falloff applied to every slot
	// except the head, producing the fading trail behind the sweep.
	Decay = 0.98

	// HeadStep is how many degrees the head advances per frame. Sub-degree
	// so the sweep crawls rather than strobes.
	HeadStep = 0.4

	// NoiseFloor is the RMS level below which the ring is considered
	// silent: no pulse, no fresh writes worth seeing.
	NoiseFloor = 0.01

	// PulseAmplitude is the relative breathing depth of the base radius.
	PulseAmplitude = 0.06

	// pulseStep advances the breathing phase per frame while signal energy
	// is present. One full breath every ~2 seconds at 60fps.
	pulseStep = 2 * math.Pi / 120

	// FrameInterval targets display refresh rate.
	FrameInterval = time.Second / 60
)

// Analyser is the slice of the audio tap the engine needs. A nil analyser is
// valid and means "no signal": the engine keeps running and the ring decays
// to flat. *audio.Tap satisfies this.
type Analyser interface {
	RMS() float64
}

// Frame is an immutable snapshot of the ring for rendering. The renderer
// owns the copy; the engine never mutates a handed-out frame.
type Frame struct {
	// Ring holds one amplitude per degree, already gain-scaled.
	Ring [RingSlots]float64

	// Head is the current write position in degrees.
	Head int

	// Radius is the breathing base radius as a factor around 1.0.
	Radius float64

	// Live reports whether signal energy above the noise floor was present
	// this frame.
	Live bool
}

// Engine drives the ring. Its loop runs for the whole time the owning view
// is mounted, regardless of playback state: SetActive gates sample WRITES,
// not the loop, so toggling play/pause decays the ring smoothly instead of
// freezing or popping.
type Engine struct {
	mu       sync.Mutex
	ring     [RingSlots]float64
	head     float64
	phase    float64
	radius   float64
	live     bool
	active   bool
	analyser Analyser

	loopOnce sync.Once
	done     chan struct{}
}

// NewEngine creates an engine reading from analyser. analyser may be nil.
func NewEngine(analyser Analyser) *Engine {
	return &Engine{
		analyser: analyser,
		radius:   1,
		done:     make(chan struct{}),
	}
}

// Start launches the frame loop. It runs until Stop and is safe to call only
// once per engine; engines are per-mount, like the views that own them.
func (e *Engine) Start() {
	e.loopOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(FrameInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					e.Advance()
				case <-e.done:
					return
				}
			}
		}()
	})
}

// Stop cancels the frame loop. The analyser is the caller's to detach; the
// engine never touches shared audio state.
func (e *Engine) Stop() {
	select {
	case <-e.done:
	default:
		close(e.done)
	}
}

// SetActive controls whether fresh samples are written. The loop itself is
// unaffected.
func (e *Engine) SetActive(active bool) {
	e.mu.Lock()
	e.active = active
	e.mu.Unlock()
}

// SetAnalyser swaps the signal input, e.g. when the active line changes and
// a new tap is attached. A nil analyser silences the ring.
func (e *Engine) SetAnalyser(analyser Analyser) {
	e.mu.Lock()
	e.analyser = analyser
	e.mu.Unlock()
}

// Advance computes one frame: decay every slot, then, if active and a signal
// is present, write the current amplitude at the head and advance it.
// Exported so tests (and the UI's own tick, if it prefers) can drive frames
// deterministically.
func (e *Engine) Advance() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.ring {
		e.ring[i] *= Decay
	}

	var rms float64
	if e.active && e.analyser != nil {
		rms = e.analyser.RMS()
	}
	e.live = rms > NoiseFloor

	if e.active {
		amp := rms * Gain
		if amp > 1 {
			amp = 1
		}
		slot := int(e.head) % RingSlots
		if amp > e.ring[slot] {
			e.ring[slot] = amp
		}
		e.head += HeadStep
		if e.head >= RingSlots {
			e.head -= RingSlots
		}
	}

	// Breathe only while real energy is present; silence must not pulse.
	if e.live {
		e.phase += pulseStep
		if e.phase >= 2*math.Pi {
			e.phase -= 2 * math.Pi
		}
	}
	e.radius = 1 + PulseAmplitude*math.Sin(e.phase)
}

// Frame returns a snapshot of the current ring state.
func (e *Engine) Frame() Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Frame{
		Ring:   e.ring,
		Head:   int(e.head) % RingSlots,
		Radius: e.radius,
		Live:   e.live,
	}
}
