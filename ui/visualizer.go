package ui

import (
	"math"
	"strings"

	"github.com/OmniDock/od-prank-deck/internal/viz"
)

// Intensity tiers for the ring trail. The browser's layered glow collapses
// to brightness bands in a cell grid.
const (
	tierOff = iota
	tierDim
	tierMid
	tierBright
	tierHead
)

// renderFrame draws one visualizer frame into a width x height cell grid.
// Terminal cells are roughly twice as tall as wide, so the horizontal radius
// is doubled to keep the ring round.
func renderFrame(frame viz.Frame, width, height int) string {
	if width < 8 || height < 4 {
		return ""
	}

	grid := make([][]int, height)
	for y := range grid {
		grid[y] = make([]int, width)
	}

	cx := float64(width) / 2
	cy := float64(height) / 2
	ry := (float64(height) - 2) / 2 * frame.Radius
	rx := ry * 2
	if maxRx := float64(width)/2 - 1; rx > maxRx {
		rx = maxRx
	}

	for slot := 0; slot < viz.RingSlots; slot++ {
		amp := frame.Ring[slot]
		tier := ampTier(amp)
		if slot == frame.Head && frame.Live {
			tier = tierHead
		}
		if tier == tierOff {
			continue
		}

		// Slot 0 sits at twelve o'clock; the head sweeps clockwise.
		theta := (float64(slot) - 90) * math.Pi / 180
		reach := 0.72 + 0.28*math.Min(amp, 1)
		x := int(math.Round(cx + math.Cos(theta)*rx*reach))
		y := int(math.Round(cy + math.Sin(theta)*ry*reach))
		if x < 0 || x >= width || y < 0 || y >= height {
			continue
		}
		if tier > grid[y][x] {
			grid[y][x] = tier
		}
	}

	var b strings.Builder
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			switch grid[y][x] {
			case tierHead:
				b.WriteString(vizHeadStyle.Render("◆"))
			case tierBright:
				b.WriteString(vizBrightTier.Render("●"))
			case tierMid:
				b.WriteString(vizMidTier.Render("•"))
			case tierDim:
				b.WriteString(vizDimTier.Render("·"))
			default:
				b.WriteByte(' ')
			}
		}
		if y < height-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func ampTier(amp float64) int {
	switch {
	case amp > 0.5:
		return tierBright
	case amp > 0.15:
		return tierMid
	case amp > 0.02:
		return tierDim
	default:
		return tierOff
	}
}
