// Package ui provides the terminal interface for prank-deck: the line deck
// for local preview, the live call monitor with the amplitude ring, and the
// scenario script pager.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	te "github.com/muesli/termenv"

	"github.com/OmniDock/od-prank-deck/internal/api"
	"github.com/OmniDock/od-prank-deck/internal/audio"
	"github.com/OmniDock/od-prank-deck/internal/cache"
	"github.com/OmniDock/od-prank-deck/internal/generation"
	"github.com/OmniDock/od-prank-deck/internal/playback"
	"github.com/OmniDock/od-prank-deck/internal/relay"
	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

// NewProgram assembles the dependency graph and returns the Tea program.
func NewProgram(cfg Config) (*tea.Program, error) {
	log.Debug("starting prank-deck", "scenario", cfg.ScenarioID, "voice", cfg.Voice)

	client := api.New(api.Config{
		BaseURL:           cfg.BaseURL,
		Token:             cfg.Token,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})

	blobs, err := cache.NewStore(cache.Config{
		MemoryCapacity:   int64(cfg.CacheMemMB) * 1024 * 1024,
		DiskCapacity:     int64(cfg.CacheDiskMB) * 1024 * 1024,
		DiskPath:         cfg.CacheDir,
		CompressionLevel: 3,
		TTL:              time.Duration(cfg.CacheTTLDays) * 24 * time.Hour,
		JanitorInterval:  time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("audio cache: %w", err)
	}

	registry := audio.Default()
	conference := relay.NewAdapter(client)
	conference.SetConference(cfg.ConferenceID)

	refresh := make(chan struct{}, 1)
	poller := generation.NewPoller(client, cfg.ScenarioID, func() {
		select {
		case refresh <- struct{}{}:
		default:
		}
	})

	resolver := resolverAdapter{client: client}
	preview := playback.NewSession(playback.SurfaceLocal, playback.Deps{
		Registry: registry,
		Resolver: resolver,
		Fetcher:  client,
		Blobs:    blobs,
		Voice:    cfg.Voice,
	})
	call := playback.NewSession(playback.SurfaceConference, playback.Deps{
		Registry:   registry,
		Resolver:   resolver,
		Fetcher:    client,
		Blobs:      blobs,
		Conference: conference,
		Voice:      cfg.Voice,
	})

	m := newModel(cfg, appDeps{
		client:   client,
		blobs:    blobs,
		registry: registry,
		relay:    conference,
		poller:   poller,
		preview:  preview,
		call:     call,
		refresh:  refresh,
	})

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(m, opts...), nil
}

// resolverAdapter maps the REST client's resolve result onto the session's
// resolver contract.
type resolverAdapter struct {
	client *api.Client
}

func (r resolverAdapter) ResolveAudio(ctx context.Context, lineID scenario.LineID, voiceID scenario.VoiceID) (*scenario.AudioRef, bool, error) {
	res, err := r.client.ResolveAudio(ctx, lineID, voiceID)
	if errors.Is(err, api.ErrNotFound) {
		// Generation was never requested for this line+voice.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if res.Status == scenario.StatusPending {
		return nil, true, nil
	}
	if res.SignedURL == "" {
		return nil, false, nil
	}
	return &scenario.AudioRef{SignedURL: res.SignedURL, DurationMs: res.DurationMs}, false, nil
}

// scenarioRefreshMsg asks for a scenario re-fetch after READY transitions.
type scenarioRefreshMsg struct{}

func waitForRefreshCmd(refresh <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-refresh
		return scenarioRefreshMsg{}
	}
}

type appDeps struct {
	client   *api.Client
	blobs    *cache.Store
	registry *audio.Registry
	relay    *relay.Adapter
	poller   *generation.Poller
	preview  *playback.Session
	call     *playback.Session
	refresh  chan struct{}
}

// view is the top-level surface selector.
type view int

const (
	viewDeck view = iota
	viewMonitor
	viewScript
)

func (v view) String() string {
	return map[view]string{
		viewDeck:    "deck",
		viewMonitor: "monitor",
		viewScript:  "script",
	}[v]
}

type model struct {
	cfg  Config
	deps appDeps

	view     view
	width    int
	height   int
	fatalErr error

	scenario *scenario.Scenario

	deck    deckModel
	monitor monitorModel
	script  scriptModel

	status string
}

func newModel(cfg Config, deps appDeps) *model {
	if cfg.GlamourStyle == styles.AutoStyle || cfg.GlamourStyle == "" {
		if te.HasDarkBackground() {
			cfg.GlamourStyle = styles.DarkStyle
		} else {
			cfg.GlamourStyle = styles.LightStyle
		}
	}

	m := &model{
		cfg:  cfg,
		deps: deps,
		view: viewDeck,
	}
	m.deck = newDeckModel(m)
	m.monitor = newMonitorModel(m)
	m.script = newScriptModel(m)
	return m
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(
		loadScenarioCmd(m.deps.client, m.cfg.ScenarioID),
		waitForReadyCmd(m.deps.poller.Ready()),
		waitForRefreshCmd(m.deps.refresh),
		m.deck.spinner.Tick,
		frameTick(),
		m.monitor.connectCmd(),
	)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, m.shutdown()
		}
		return m, nil
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.deck.filtering() && m.view == viewDeck {
			break // the deck's filter input owns the keyboard
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, m.shutdown()
		case "ctrl+z":
			return m, tea.Suspend
		case "tab":
			m.view = (m.view + 1) % 3
			m.syncVisualizer()
			return m, nil
		case "1":
			m.view = viewDeck
			m.syncVisualizer()
			return m, nil
		case "2":
			m.view = viewMonitor
			m.syncVisualizer()
			return m, nil
		case "3":
			m.view = viewScript
			m.syncVisualizer()
			return m, nil
		case "r":
			return m, loadScenarioCmd(m.deps.client, m.cfg.ScenarioID)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.deck.setSize(msg.Width, msg.Height-chromeHeight)
		m.monitor.setSize(msg.Width, msg.Height-chromeHeight)
		m.script.setSize(msg.Width, msg.Height-chromeHeight)
		if m.scenario != nil {
			cmds = append(cmds, m.script.renderCmd(m.scenario))
		}

	case errMsg:
		if m.scenario == nil {
			m.fatalErr = msg.err
			return m, nil
		}
		m.status = "error: " + msg.err.Error()
		cmds = append(cmds, statusTimeoutCmd())

	case scenarioLoadedMsg:
		m.scenario = msg.scenario
		m.deck.setScenario(msg.scenario)
		m.deps.poller.Discover(context.Background())
		cmds = append(cmds,
			m.script.renderCmd(msg.scenario),
			prefetchAssetsCmd(m.deps.client, m.deps.blobs, m.cfg.Voice, msg.scenario.Lines),
		)

	case scenarioRefreshMsg:
		cmds = append(cmds,
			loadScenarioCmd(m.deps.client, m.cfg.ScenarioID),
			waitForRefreshCmd(m.deps.refresh),
		)

	case lineReadyMsg:
		m.status = fmt.Sprintf("line %d is ready", msg.line)
		cmds = append(cmds, waitForReadyCmd(m.deps.poller.Ready()), statusTimeoutCmd())

	case pollerStoppedMsg:
		// Teardown in progress; nothing to re-arm.

	case generationTriggeredMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("generation for line %d failed: %v", msg.line, msg.err)
		} else if msg.ref != nil {
			if m.scenario != nil {
				if line := m.scenario.LineByID(msg.line); line != nil {
					line.PreferredAudio = msg.ref
				}
			}
			m.status = fmt.Sprintf("line %d was already generated", msg.line)
		} else {
			m.status = fmt.Sprintf("generating line %d…", msg.line)
		}
		cmds = append(cmds, statusTimeoutCmd())

	case playResultMsg:
		if msg.err != nil && !errors.Is(msg.err, playback.ErrBusyLoading) {
			m.status = playbackErrorStatus(msg.err, msg.line)
			cmds = append(cmds, statusTimeoutCmd())
		}
		m.syncVisualizer()

	case frameTickMsg:
		m.deps.preview.Tick(context.Background())
		m.deps.call.Tick(context.Background())
		m.monitor.captureFrame()
		cmds = append(cmds, frameTick())

	case statusTimeoutMsg:
		m.status = ""

	case clipboardMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
		} else {
			m.status = "signed URL copied"
		}
		cmds = append(cmds, statusTimeoutCmd())
	}

	// Feed and render results go to their owning surface no matter which
	// view is visible; keys and everything else go to the visible one.
	switch msg.(type) {
	case callEventMsg, feedConnectedMsg, feedClosedMsg:
		monitor, cmd := m.monitor.update(msg)
		m.monitor = monitor
		cmds = append(cmds, cmd)
	case scriptRenderedMsg:
		script, cmd := m.script.update(msg)
		m.script = script
		cmds = append(cmds, cmd)
	case spinner.TickMsg:
		// The deck's spinner animates generation badges; keep it ticking
		// while another view is up so the badges never freeze.
		deck, cmd := m.deck.update(msg)
		m.deck = deck
		cmds = append(cmds, cmd)
	default:
		switch m.view {
		case viewDeck:
			deck, cmd := m.deck.update(msg)
			m.deck = deck
			cmds = append(cmds, cmd)
		case viewMonitor:
			monitor, cmd := m.monitor.update(msg)
			m.monitor = monitor
			cmds = append(cmds, cmd)
		case viewScript:
			script, cmd := m.script.update(msg)
			m.script = script
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// chromeHeight is the header plus the status bar.
const chromeHeight = 3

func (m *model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr)
	}

	var body string
	switch m.view {
	case viewDeck:
		body = m.deck.view()
	case viewMonitor:
		body = m.monitor.view()
	case viewScript:
		body = m.script.view()
	}

	return m.header() + "\n" + body + "\n" + m.statusBar()
}

func (m *model) header() string {
	tabs := make([]string, 0, 3)
	for v := viewDeck; v <= viewScript; v++ {
		label := fmt.Sprintf("%d %s", int(v)+1, v)
		if v == m.view {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	title := logoStyle.Render("Prank Deck")
	if m.scenario != nil {
		title += " " + dimStyle.Render(m.scenario.Title)
	}
	return title + "\n" + strings.Join(tabs, "")
}

func (m *model) statusBar() string {
	left := m.status
	if left == "" {
		left = keyHelp(m.view)
	}
	right := ""
	if n := m.deps.poller.PendingCount(); n > 0 {
		right = fmt.Sprintf("generating %d", n)
	}
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return statusBarStyle.Render(" " + left + strings.Repeat(" ", gap) + right)
}

func keyHelp(v view) string {
	switch v {
	case viewMonitor:
		return "enter: play into call • s: stop • tab: next view • q: quit"
	case viewScript:
		return "↑/↓: scroll • tab: next view • q: quit"
	default:
		return "enter: play/stop • space: pause • g: generate • c: copy url • /: filter"
	}
}

// syncVisualizer points the monitor's analyser at whatever source is active
// on the call surface.
func (m *model) syncVisualizer() {
	m.monitor.syncAnalyser()
}

func (m *model) shutdown() tea.Cmd {
	m.deps.poller.Stop()
	m.monitor.close()
	if err := m.deps.blobs.Close(); err != nil {
		log.Debug("blob store close failed", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = m.deps.preview.Stop(ctx)
	_ = m.deps.call.Stop(ctx)
	return tea.Quit
}

func playbackErrorStatus(err error, line scenario.LineID) string {
	switch {
	case errors.Is(err, playback.ErrNoAudioAvailable):
		return fmt.Sprintf("line %d has no audio yet; press g to generate", line)
	case errors.Is(err, playback.ErrAudioPending):
		return fmt.Sprintf("line %d is still generating", line)
	case errors.Is(err, playback.ErrPlaybackBlocked):
		return "no audio device available"
	default:
		return "playback failed: " + err.Error()
	}
}

func errorView(err error) string {
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		dimStyle.Render("press any key to exit"),
	)
	return "\n" + indent(s, 3)
}

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	var b strings.Builder
	pad := strings.Repeat(" ", n)
	for _, line := range strings.Split(s, "\n") {
		fmt.Fprintf(&b, "%s%s\n", pad, line)
	}
	return b.String()
}
