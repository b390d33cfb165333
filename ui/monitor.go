package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/OmniDock/od-prank-deck/internal/audio"
	"github.com/OmniDock/od-prank-deck/internal/playback"
	"github.com/OmniDock/od-prank-deck/internal/relay"
	"github.com/OmniDock/od-prank-deck/internal/viz"
)

// monitorModel is the live call surface: conference playback control, call
// status from the event feed, and the amplitude ring.
//
// The ring taps the line playing locally; conference playback happens on the
// far side of the bridge, so there are no local samples for it and its
// progress is pure estimation drawn as a bar instead.
type monitorModel struct {
	parent *model

	engine    *viz.Engine
	frame     viz.Frame
	tap       *audio.Tap
	tapSource *audio.Source

	feed      *relay.Feed
	callState relay.CallState

	width  int
	height int
}

func newMonitorModel(parent *model) monitorModel {
	engine := viz.NewEngine(nil)
	engine.Start()
	return monitorModel{
		parent: parent,
		engine: engine,
	}
}

func (mm *monitorModel) setSize(width, height int) {
	mm.width = width
	mm.height = height
}

// connectCmd dials the call event socket, when a conference is configured.
func (mm *monitorModel) connectCmd() tea.Cmd {
	cfg := mm.parent.cfg
	if cfg.WSURL == "" || cfg.ConferenceID == "" {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		feed, err := relay.DialFeed(ctx, cfg.WSURL, cfg.ConferenceID, cfg.Token)
		if err != nil {
			log.Debug("call event socket unavailable", "error", err)
			return feedClosedMsg{}
		}
		return feedConnectedMsg{feed: feed}
	}
}

type feedConnectedMsg struct {
	feed *relay.Feed
}

func (mm monitorModel) update(msg tea.Msg) (monitorModel, tea.Cmd) {
	switch msg := msg.(type) {
	case feedConnectedMsg:
		mm.feed = msg.feed
		return mm, waitForCallEventCmd(msg.feed)

	case callEventMsg:
		mm.callState = msg.State
		if mm.feed == nil {
			return mm, nil
		}
		return mm, waitForCallEventCmd(mm.feed)

	case feedClosedMsg:
		mm.feed = nil
		mm.callState = ""

	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if line := mm.parent.deck.selected(); line != nil {
				return mm, playLineCmd(mm.parent.deps.call, playback.SurfaceConference, line)
			}
		case "s":
			return mm, stopSessionCmd(mm.parent.deps.call, playback.SurfaceConference)
		case "up", "k":
			mm.parent.deck.moveCursor(-1)
		case "down", "j":
			mm.parent.deck.moveCursor(1)
		}
	}
	return mm, nil
}

// captureFrame snapshots the ring and keeps the write gate aligned with
// whether local audio is flowing.
func (mm *monitorModel) captureFrame() {
	mm.syncAnalyser()
	mm.engine.SetActive(mm.parent.deps.preview.IsPlaying())
	mm.frame = mm.engine.Frame()
}

// syncAnalyser points the engine's tap at the source of the line playing
// locally, detaching the previous tap first. Teardown never touches the
// shared source or context.
func (mm *monitorModel) syncAnalyser() {
	active := mm.parent.deps.preview.ActiveLine()
	var src *audio.Source
	if active != 0 {
		src = mm.parent.deps.registry.Lookup(audio.SourceKey{Line: active, Voice: mm.parent.cfg.Voice})
	}

	if src == mm.tapSource {
		return
	}
	if mm.tap != nil && mm.tapSource != nil {
		mm.tapSource.DetachTap(mm.tap)
		mm.tap = nil
	}
	mm.tapSource = src
	if src == nil {
		mm.engine.SetAnalyser(nil)
		return
	}

	attachment, err := mm.parent.deps.registry.Attach(src.Key(), nil, audio.TapOptions{})
	if err != nil || attachment.Tap == nil {
		// Degraded audio; the ring stays flat.
		mm.engine.SetAnalyser(nil)
		return
	}
	mm.tap = attachment.Tap
	mm.engine.SetAnalyser(attachment.Tap)
}

func (mm *monitorModel) close() {
	mm.engine.Stop()
	if mm.tap != nil && mm.tapSource != nil {
		mm.tapSource.DetachTap(mm.tap)
		mm.tap = nil
	}
	if mm.feed != nil {
		if err := mm.feed.Close(); err != nil {
			log.Debug("call event socket close failed", "error", err)
		}
	}
}

func (mm monitorModel) view() string {
	var b strings.Builder

	b.WriteString(mm.statusLine())
	b.WriteString("\n")

	vizHeight := mm.height - 4
	if vizHeight < 4 {
		vizHeight = 4
	}
	b.WriteString(renderFrame(mm.frame, mm.width, vizHeight))
	b.WriteString("\n")
	b.WriteString(mm.playbackLine())

	return b.String()
}

func (mm monitorModel) statusLine() string {
	call := "call: "
	switch mm.callState {
	case relay.CallInProgress:
		call += readyBadge.Render("in progress")
	case relay.CallRinging:
		call += pendingBadge.Render("ringing")
	case relay.CallCompleted:
		call += dimStyle.Render("completed")
	case relay.CallFailed:
		call += errorTitleStyle.Render("failed")
	default:
		call += dimStyle.Render("not connected")
	}

	conference := mm.parent.cfg.ConferenceID
	if conference == "" {
		conference = "none"
	}
	return fmt.Sprintf("  %s %s", call, dimStyle.Render("conference "+conference))
}

func (mm monitorModel) playbackLine() string {
	snap := mm.parent.deps.call.Snapshot()
	if snap.ActiveID == 0 {
		return dimStyle.Render("  nothing playing into the call")
	}
	label := fmt.Sprintf("  line %d ", snap.ActiveID)
	if snap.State == playback.StateLoading {
		return label + pendingBadge.Render("sending…")
	}
	return normalStyle.Render(label) + progressBar(snap.Progress, 24)
}
