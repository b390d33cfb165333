package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

// scriptModel renders the scenario script through glamour in a viewport, the
// reading surface for the caller while a call runs on another screen.
type scriptModel struct {
	parent   *model
	viewport viewport.Model
	rendered bool
}

// scriptRenderedMsg carries the glamour output.
type scriptRenderedMsg struct {
	content string
	err     error
}

func newScriptModel(parent *model) scriptModel {
	return scriptModel{
		parent:   parent,
		viewport: viewport.New(0, 0),
	}
}

func (s *scriptModel) setSize(width, height int) {
	s.viewport.Width = width
	s.viewport.Height = height
}

// renderCmd renders the scenario's script markdown off the update loop.
func (s *scriptModel) renderCmd(sc *scenario.Scenario) tea.Cmd {
	cfg := s.parent.cfg
	width := s.viewport.Width
	if cfg.GlamourMaxWidth > 0 && int(cfg.GlamourMaxWidth) < width {
		width = int(cfg.GlamourMaxWidth)
	}
	if width <= 0 {
		width = 80
	}
	markdown := sc.Script()
	return func() tea.Msg {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithColorProfile(lipgloss.ColorProfile()),
			glamour.WithStylePath(cfg.GlamourStyle),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return scriptRenderedMsg{err: err}
		}
		out, err := renderer.Render(markdown)
		if err != nil {
			return scriptRenderedMsg{err: err}
		}
		return scriptRenderedMsg{content: out}
	}
}

func (s scriptModel) update(msg tea.Msg) (scriptModel, tea.Cmd) {
	switch msg := msg.(type) {
	case scriptRenderedMsg:
		if msg.err != nil {
			return s, func() tea.Msg { return errMsg{msg.err} }
		}
		s.viewport.SetContent(msg.content)
		s.rendered = true
		return s, nil

	case tea.KeyMsg:
		if msg.String() == "c" && s.parent.scenario != nil {
			text, err := plainScriptText(s.parent.scenario)
			if err != nil {
				return s, func() tea.Msg { return errMsg{err} }
			}
			return s, copyToClipboardCmd(text)
		}
	}

	var cmd tea.Cmd
	s.viewport, cmd = s.viewport.Update(msg)
	return s, cmd
}

// plainScriptText flattens the scenario script to bare utterances, one per
// line, the form a caller pastes into notes or a teleprompter.
func plainScriptText(sc *scenario.Scenario) (string, error) {
	lines, err := scenario.PlainScript([]byte(sc.Script()))
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func (s scriptModel) view() string {
	if !s.rendered {
		return dimStyle.Render("  rendering script…")
	}
	return s.viewport.View()
}
