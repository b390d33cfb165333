package ui

import (
	"strings"
	"testing"

	"github.com/OmniDock/od-prank-deck/internal/viz"
)

func TestRenderFrame_SilenceDrawsNothing(t *testing.T) {
	frame := viz.Frame{Radius: 1}
	out := renderFrame(frame, 40, 12)
	if strings.TrimSpace(stripNewlines(out)) != "" {
		t.Errorf("silent frame rendered visible cells:\n%s", out)
	}
}

func TestRenderFrame_HeadMarkerPresent(t *testing.T) {
	frame := viz.Frame{Radius: 1, Head: 90, Live: true}
	frame.Ring[90] = 0.9
	out := renderFrame(frame, 40, 12)
	if !strings.Contains(out, "◆") {
		t.Error("head marker missing from rendered frame")
	}
}

func TestRenderFrame_TrailUsesIntensityTiers(t *testing.T) {
	frame := viz.Frame{Radius: 1, Head: 0, Live: true}
	frame.Ring[45] = 0.9   // bright
	frame.Ring[135] = 0.3  // mid
	frame.Ring[225] = 0.05 // dim

	out := renderFrame(frame, 48, 16)
	for _, marker := range []string{"●", "•", "·"} {
		if !strings.Contains(out, marker) {
			t.Errorf("marker %q missing from rendered frame", marker)
		}
	}
}

func TestRenderFrame_TinySurfaceIsEmpty(t *testing.T) {
	frame := viz.Frame{Radius: 1}
	frame.Ring[0] = 1
	if out := renderFrame(frame, 4, 2); out != "" {
		t.Errorf("render on tiny surface = %q, want empty", out)
	}
}

func TestAmpTier_Boundaries(t *testing.T) {
	tests := []struct {
		amp  float64
		want int
	}{
		{0, tierOff},
		{0.01, tierOff},
		{0.05, tierDim},
		{0.3, tierMid},
		{0.6, tierBright},
		{1.5, tierBright},
	}
	for _, tt := range tests {
		if got := ampTier(tt.amp); got != tt.want {
			t.Errorf("ampTier(%v) = %d, want %d", tt.amp, got, tt.want)
		}
	}
}

func stripNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", "")
}
