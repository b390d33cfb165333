package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/sahilm/fuzzy"

	"github.com/OmniDock/od-prank-deck/internal/playback"
	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

type filterState int

const (
	unfiltered filterState = iota
	filtering
	filterApplied
)

// deckModel is the local preview surface: every line of the scenario as a
// playable row.
type deckModel struct {
	parent *model

	lines   []scenario.VoiceLine
	visible []int // indexes into lines, filter applied
	cursor  int
	offset  int
	width   int
	height  int

	filterSt    filterState
	filterInput textinput.Model
	spinner     spinner.Model
}

func newDeckModel(parent *model) deckModel {
	input := textinput.New()
	input.Prompt = "Filter: "
	input.CharLimit = 64

	sp := spinner.New()
	sp.Spinner = spinner.Line

	return deckModel{
		parent:      parent,
		filterInput: input,
		spinner:     sp,
	}
}

func (d *deckModel) setSize(width, height int) {
	d.width = width
	d.height = height
	d.clampScroll()
}

func (d *deckModel) setScenario(sc *scenario.Scenario) {
	d.lines = sc.Lines
	d.applyFilter()
	if d.cursor >= len(d.visible) {
		d.cursor = 0
		d.offset = 0
	}
}

func (d *deckModel) filtering() bool { return d.filterSt == filtering }

// selected returns the line under the cursor, or nil.
func (d *deckModel) selected() *scenario.VoiceLine {
	if d.cursor < 0 || d.cursor >= len(d.visible) {
		return nil
	}
	return &d.lines[d.visible[d.cursor]]
}

func (d deckModel) update(msg tea.Msg) (deckModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spinner, cmd = d.spinner.Update(msg)
		return d, cmd

	case tea.KeyMsg:
		if d.filterSt == filtering {
			switch msg.String() {
			case "enter":
				d.filterSt = filterApplied
				if d.filterInput.Value() == "" {
					d.filterSt = unfiltered
				}
				d.filterInput.Blur()
				return d, nil
			case "esc":
				d.filterSt = unfiltered
				d.filterInput.SetValue("")
				d.filterInput.Blur()
				d.applyFilter()
				return d, nil
			default:
				var cmd tea.Cmd
				d.filterInput, cmd = d.filterInput.Update(msg)
				d.applyFilter()
				return d, cmd
			}
		}

		switch msg.String() {
		case "up", "k":
			d.moveCursor(-1)
		case "down", "j":
			d.moveCursor(1)
		case "home":
			d.cursor = 0
			d.clampScroll()
		case "end":
			d.cursor = len(d.visible) - 1
			d.clampScroll()
		case "/":
			d.filterSt = filtering
			d.filterInput.Focus()
			return d, textinput.Blink
		case "esc":
			if d.filterSt == filterApplied {
				d.filterSt = unfiltered
				d.filterInput.SetValue("")
				d.applyFilter()
			}
		case "enter":
			if line := d.selected(); line != nil {
				return d, playLineCmd(d.parent.deps.preview, playback.SurfaceLocal, line)
			}
		case " ":
			return d, d.pauseResumeCmd()
		case "g":
			if line := d.selected(); line != nil && !line.HasAudio() {
				return d, triggerGenerationCmd(
					d.parent.deps.client, d.parent.deps.poller, line.ID, d.parent.cfg.Voice)
			}
		case "c":
			if line := d.selected(); line != nil && line.HasAudio() {
				return d, copyToClipboardCmd(line.PreferredAudio.SignedURL)
			}
		}
	}

	return d, tea.Batch(cmds...)
}

func (d *deckModel) pauseResumeCmd() tea.Cmd {
	session := d.parent.deps.preview
	return func() tea.Msg {
		var err error
		if session.IsPaused() {
			err = session.Resume()
		} else if session.IsPlaying() {
			err = session.Pause()
		}
		return playResultMsg{surface: playback.SurfaceLocal, line: session.ActiveLine(), err: err}
	}
}

func (d *deckModel) moveCursor(delta int) {
	d.cursor += delta
	if d.cursor < 0 {
		d.cursor = 0
	}
	if d.cursor >= len(d.visible) {
		d.cursor = len(d.visible) - 1
	}
	d.clampScroll()
}

func (d *deckModel) clampScroll() {
	rows := d.rowBudget()
	if d.cursor < d.offset {
		d.offset = d.cursor
	}
	if d.cursor >= d.offset+rows {
		d.offset = d.cursor - rows + 1
	}
	if d.offset < 0 {
		d.offset = 0
	}
}

// rowBudget is how many line rows fit below the filter row.
func (d *deckModel) rowBudget() int {
	rows := d.height - 2
	if rows < 1 {
		rows = 1
	}
	return rows
}

// fuzzySource adapts the line list to the fuzzy matcher.
type fuzzySource []scenario.VoiceLine

func (s fuzzySource) String(i int) string { return s[i].Text }
func (s fuzzySource) Len() int            { return len(s) }

func (d *deckModel) applyFilter() {
	query := d.filterInput.Value()
	if query == "" {
		d.visible = d.visible[:0]
		for i := range d.lines {
			d.visible = append(d.visible, i)
		}
	} else {
		matches := fuzzy.FindFrom(query, fuzzySource(d.lines))
		d.visible = d.visible[:0]
		for _, match := range matches {
			d.visible = append(d.visible, match.Index)
		}
	}
	if d.cursor >= len(d.visible) {
		d.cursor = len(d.visible) - 1
	}
	if d.cursor < 0 {
		d.cursor = 0
	}
	d.clampScroll()
}

func (d deckModel) view() string {
	var b strings.Builder

	switch d.filterSt {
	case filtering:
		b.WriteString(d.filterInput.View())
	case filterApplied:
		b.WriteString(dimStyle.Render(fmt.Sprintf("filtered: %q (esc to clear)", d.filterInput.Value())))
	default:
		b.WriteString(dimStyle.Render(fmt.Sprintf("%d lines", len(d.lines))))
	}
	b.WriteString("\n")

	if len(d.visible) == 0 {
		b.WriteString(dimStyle.Render("  nothing to show"))
		return padToHeight(b.String(), d.height)
	}

	snap := d.parent.deps.preview.Snapshot()
	rows := d.rowBudget()
	end := d.offset + rows
	if end > len(d.visible) {
		end = len(d.visible)
	}

	for _, idx := range d.visible[d.offset:end] {
		line := &d.lines[idx]
		b.WriteString(d.renderRow(line, snap))
		b.WriteString("\n")
	}

	return padToHeight(strings.TrimRight(b.String(), "\n"), d.height)
}

func (d deckModel) renderRow(line *scenario.VoiceLine, snap playback.Snapshot) string {
	active := snap.ActiveID == line.ID && snap.ActiveID != 0
	selected := d.selected() != nil && d.selected().ID == line.ID

	badge := d.statusBadge(line, active, snap)
	tag := dimStyle.Render(fmt.Sprintf("%-9s", strings.ToLower(string(line.Type))))

	textWidth := d.width - 30
	if textWidth < 10 {
		textWidth = 10
	}
	text := truncate.StringWithTail(line.Text, uint(textWidth), "…")
	text = runewidth.FillRight(text, textWidth)

	age := ""
	if !line.CreatedAt.IsZero() {
		age = dimStyle.Render(humanize.Time(line.CreatedAt))
	}

	row := fmt.Sprintf("%s %s %s %s", badge, tag, text, age)
	if active {
		row += " " + progressBar(snap.Progress, 12)
	}

	cursor := "  "
	if selected {
		cursor = "> "
		return selectedRowStyle.Render(cursor) + row
	}
	return cursor + row
}

func (d deckModel) statusBadge(line *scenario.VoiceLine, active bool, snap playback.Snapshot) string {
	switch {
	case active && snap.State == playback.StateLoading:
		return pendingBadge.Render(d.spinner.View())
	case active && snap.State == playback.StatePaused:
		return readyBadge.Render("‖")
	case active:
		return readyBadge.Render("▶")
	case line.HasAudio():
		return readyBadge.Render("●")
	case d.parent.deps.poller.Pending(line.ID):
		return pendingBadge.Render(d.spinner.View())
	default:
		return missingBadge.Render("─")
	}
}

func progressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return progressFilled.Render(strings.Repeat("█", filled)) +
		progressEmpty.Render(strings.Repeat("░", width-filled))
}

func padToHeight(s string, height int) string {
	lines := strings.Count(s, "\n") + 1
	if lines >= height {
		return s
	}
	return s + strings.Repeat("\n", height-lines)
}
