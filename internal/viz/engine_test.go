package viz

import (
	"math"
	"testing"
)

// constAnalyser reports a fixed RMS level.
type constAnalyser struct{ rms float64 }

func (c constAnalyser) RMS() float64 { return c.rms }

func TestEngine_WritesOnlyWhileActive(t *testing.T) {
	e := NewEngine(constAnalyser{rms: 0.1})

	// Inactive: frames advance but nothing is written.
	for i := 0; i < 10; i++ {
		e.Advance()
	}
	f := e.Frame()
	for i, v := range f.Ring {
		if v != 0 {
			t.Fatalf("slot %d = %v while inactive, want 0", i, v)
		}
	}
	if f.Head != 0 {
		t.Errorf("head advanced to %d while inactive, want 0", f.Head)
	}

	e.SetActive(true)
	e.Advance()
	f = e.Frame()
	if f.Ring[0] == 0 {
		t.Error("head slot not written while active")
	}
	want := 0.1 * Gain
	if math.Abs(f.Ring[0]-want) > 0.001 {
		t.Errorf("head slot = %v, want %v (rms x gain)", f.Ring[0], want)
	}
}

func TestEngine_DecayProducesFadingTrail(t *testing.T) {
	e := NewEngine(constAnalyser{rms: 0.1})
	e.SetActive(true)
	e.Advance()
	written := e.Frame().Ring[0]

	// Deactivate and let the ring decay.
	e.SetActive(false)
	for i := 0; i < 50; i++ {
		e.Advance()
	}
	decayed := e.Frame().Ring[0]

	want := written * math.Pow(Decay, 50)
	if math.Abs(decayed-want) > 1e-9 {
		t.Errorf("after 50 frames slot = %v, want %v", decayed, want)
	}
	if decayed >= written {
		t.Error("ring did not decay while inactive")
	}
}

func TestEngine_HeadSweepsSubDegree(t *testing.T) {
	e := NewEngine(constAnalyser{rms: 0.5})
	e.SetActive(true)

	framesPerDegree := int(math.Ceil(1 / HeadStep))
	for i := 0; i < framesPerDegree; i++ {
		if got := e.Frame().Head; got != 0 {
			t.Fatalf("head = %d after %d frames, want 0 (sub-degree sweep)", got, i)
		}
		e.Advance()
	}
	if got := e.Frame().Head; got != 1 {
		t.Errorf("head = %d after %d frames, want 1", got, framesPerDegree)
	}

	// Head wraps at 360 degrees.
	for i := 0; i < RingSlots*framesPerDegree; i++ {
		e.Advance()
	}
	if got := e.Frame().Head; got < 0 || got >= RingSlots {
		t.Errorf("head = %d out of ring range after wrap", got)
	}
}

func TestEngine_NoPulseOnSilence(t *testing.T) {
	silent := NewEngine(constAnalyser{rms: 0})
	silent.SetActive(true)
	for i := 0; i < 30; i++ {
		silent.Advance()
	}
	if f := silent.Frame(); f.Live {
		t.Error("silent engine reports live signal")
	} else if f.Radius != 1 {
		t.Errorf("silent radius = %v, want steady 1.0", f.Radius)
	}

	loud := NewEngine(constAnalyser{rms: 0.2})
	loud.SetActive(true)
	for i := 0; i < 30; i++ {
		loud.Advance()
	}
	if f := loud.Frame(); !f.Live {
		t.Error("loud engine reports no live signal")
	} else if f.Radius == 1 {
		t.Error("loud radius never breathed")
	}
}

func TestEngine_NilAnalyserDrawsNothing(t *testing.T) {
	e := NewEngine(nil)
	e.SetActive(true)
	for i := 0; i < 10; i++ {
		e.Advance()
	}
	f := e.Frame()
	for i, v := range f.Ring {
		if v != 0 {
			t.Fatalf("slot %d = %v with nil analyser, want 0", i, v)
		}
	}
	if f.Live {
		t.Error("nil analyser reports live signal")
	}
}

func TestEngine_SetAnalyserSwapsInput(t *testing.T) {
	e := NewEngine(constAnalyser{rms: 0})
	e.SetActive(true)
	e.Advance()
	if e.Frame().Live {
		t.Fatal("unexpected live signal")
	}

	e.SetAnalyser(constAnalyser{rms: 0.3})
	e.Advance()
	if !e.Frame().Live {
		t.Error("swapped analyser signal not picked up")
	}
}
