package ui

import (
	"testing"

	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

func deckLines() []scenario.VoiceLine {
	return []scenario.VoiceLine{
		{ID: 1, Text: "Hello, is this the pizza place?", Type: scenario.LineTypeOpening},
		{ID: 2, Text: "Do you deliver to lighthouses?", Type: scenario.LineTypeQuestion},
		{ID: 3, Text: "No worries, thanks anyway!", Type: scenario.LineTypeClosing},
	}
}

func TestDeckModel_FilterNarrowsVisibleRows(t *testing.T) {
	d := newDeckModel(nil)
	d.height = 20
	d.setScenario(&scenario.Scenario{Lines: deckLines()})

	if got := len(d.visible); got != 3 {
		t.Fatalf("visible before filter = %d, want 3", got)
	}

	d.filterInput.SetValue("lighthouse")
	d.applyFilter()

	if got := len(d.visible); got != 1 {
		t.Fatalf("visible after filter = %d, want 1", got)
	}
	if line := d.selected(); line == nil || line.ID != 2 {
		t.Errorf("selected after filter = %v, want line 2", line)
	}
}

func TestDeckModel_ClearedFilterRestoresAllRows(t *testing.T) {
	d := newDeckModel(nil)
	d.height = 20
	d.setScenario(&scenario.Scenario{Lines: deckLines()})

	d.filterInput.SetValue("pizza")
	d.applyFilter()
	d.filterInput.SetValue("")
	d.applyFilter()

	if got := len(d.visible); got != 3 {
		t.Errorf("visible after clearing filter = %d, want 3", got)
	}
}

func TestDeckModel_FilterWithNoMatchesParksCursor(t *testing.T) {
	d := newDeckModel(nil)
	d.height = 20
	d.setScenario(&scenario.Scenario{Lines: deckLines()})
	d.cursor = 2

	d.filterInput.SetValue("zzzzzz")
	d.applyFilter()

	if got := len(d.visible); got != 0 {
		t.Fatalf("visible = %d, want 0", got)
	}
	if line := d.selected(); line != nil {
		t.Errorf("selected = %v, want nil", line)
	}
}

func TestDeckModel_CursorClampsToEnds(t *testing.T) {
	d := newDeckModel(nil)
	d.height = 20
	d.setScenario(&scenario.Scenario{Lines: deckLines()})

	d.moveCursor(-5)
	if d.cursor != 0 {
		t.Errorf("cursor after underflow = %d, want 0", d.cursor)
	}

	d.moveCursor(10)
	if d.cursor != 2 {
		t.Errorf("cursor after overflow = %d, want 2", d.cursor)
	}
}

func TestDeckModel_ScrollFollowsCursor(t *testing.T) {
	var lines []scenario.VoiceLine
	for i := 1; i <= 12; i++ {
		lines = append(lines, scenario.VoiceLine{ID: scenario.LineID(i), Text: "line"})
	}

	d := newDeckModel(nil)
	d.height = 6 // rowBudget of 4
	d.setScenario(&scenario.Scenario{Lines: lines})

	for i := 0; i < 8; i++ {
		d.moveCursor(1)
	}
	if d.cursor != 8 {
		t.Fatalf("cursor = %d, want 8", d.cursor)
	}
	if d.offset != 5 {
		t.Errorf("offset = %d, want 5", d.offset)
	}

	d.cursor = 0
	d.clampScroll()
	if d.offset != 0 {
		t.Errorf("offset after jump home = %d, want 0", d.offset)
	}
}

func TestProgressBar_Rendering(t *testing.T) {
	tests := []struct {
		progress float64
		filled   int
	}{
		{0, 0},
		{0.5, 5},
		{1, 10},
		{1.7, 10},
		{-0.2, 0},
	}
	for _, tt := range tests {
		bar := progressBar(tt.progress, 10)
		got := countRune(bar, '█')
		if got != tt.filled {
			t.Errorf("progressBar(%v) filled = %d, want %d", tt.progress, got, tt.filled)
		}
		if empty := countRune(bar, '░'); empty != 10-tt.filled {
			t.Errorf("progressBar(%v) empty = %d, want %d", tt.progress, empty, 10-tt.filled)
		}
	}
}

func countRune(s string, r rune) int {
	n := 0
	for _, c := range s {
		if c == r {
			n++
		}
	}
	return n
}
