package ui

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/OmniDock/od-prank-deck/internal/api"
	"github.com/OmniDock/od-prank-deck/internal/audio"
	"github.com/OmniDock/od-prank-deck/internal/cache"
	"github.com/OmniDock/od-prank-deck/internal/generation"
	"github.com/OmniDock/od-prank-deck/internal/playback"
	"github.com/OmniDock/od-prank-deck/internal/relay"
	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

const statusMessageTimeout = 3 * time.Second

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

// scenarioLoadedMsg carries the fetched scenario with lines already sorted.
type scenarioLoadedMsg struct {
	scenario *scenario.Scenario
}

// playResultMsg reports the outcome of a play/stop command for one surface.
type playResultMsg struct {
	surface playback.Surface
	line    scenario.LineID
	err     error
}

// generationTriggeredMsg reports a generation request. When the backend had
// the asset cached, ref carries the signed URL and no polling is needed.
type generationTriggeredMsg struct {
	line scenario.LineID
	ref  *scenario.AudioRef
	err  error
}

// lineReadyMsg is emitted when the poller observes a line turning READY.
type lineReadyMsg struct {
	line scenario.LineID
}

// pollerStoppedMsg signals that the ready stream is closed.
type pollerStoppedMsg struct{}

// frameTickMsg drives per-frame work: session progress sampling and
// visualizer snapshots.
type frameTickMsg time.Time

// callEventMsg carries a conference status event from the relay feed.
type callEventMsg relay.CallEvent

// feedClosedMsg signals the relay feed went away.
type feedClosedMsg struct{}

// statusTimeoutMsg clears a transient footer message.
type statusTimeoutMsg struct{}

// clipboardMsg reports a copy-to-clipboard attempt.
type clipboardMsg struct{ err error }

// COMMANDS

func loadScenarioCmd(client *api.Client, id scenario.ScenarioID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		sc, err := client.GetScenario(ctx, id)
		if err != nil {
			return errMsg{err}
		}
		return scenarioLoadedMsg{scenario: sc}
	}
}

// prefetchAssetsCmd warms the blob cache with every attached asset that is
// not cached yet, so first playback of a line skips the download round trip.
func prefetchAssetsCmd(client *api.Client, blobs *cache.Store, voice scenario.VoiceID, lines []scenario.VoiceLine) tea.Cmd {
	return func() tea.Msg {
		var missing []scenario.VoiceLine
		for _, line := range lines {
			if !line.HasAudio() {
				continue
			}
			if _, ok := blobs.Get(cache.Key(line.ID, voice)); ok {
				continue
			}
			missing = append(missing, line)
		}
		if len(missing) == 0 {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		err := client.PrefetchAssets(ctx, missing, func(id scenario.LineID, payload []byte) {
			pcm, err := audio.DecodeWAV(payload)
			if err != nil {
				log.Debug("prefetched asset undecodable", "line", id, "error", err)
				return
			}
			if err := blobs.Put(cache.Key(id, voice), pcm); err != nil {
				log.Debug("blob cache store failed", "line", id, "error", err)
			}
		})
		if err != nil {
			log.Debug("asset prefetch aborted", "error", err)
		}
		return nil
	}
}

func playLineCmd(session *playback.Session, surface playback.Surface, line *scenario.VoiceLine) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := session.Play(ctx, line)
		return playResultMsg{surface: surface, line: line.ID, err: err}
	}
}

func stopSessionCmd(session *playback.Session, surface playback.Surface) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := session.Stop(ctx)
		return playResultMsg{surface: surface, err: err}
	}
}

func triggerGenerationCmd(client *api.Client, poller *generation.Poller, line scenario.LineID, voice scenario.VoiceID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		res, err := client.TriggerGeneration(ctx, line, voice)
		if err != nil {
			return generationTriggeredMsg{line: line, err: err}
		}
		if res.SignedURL != "" {
			return generationTriggeredMsg{line: line, ref: &scenario.AudioRef{
				SignedURL:  res.SignedURL,
				DurationMs: res.DurationMs,
			}}
		}
		poller.Add(context.Background(), line)
		return generationTriggeredMsg{line: line}
	}
}

// waitForReadyCmd blocks on the poller's ready stream. Re-issued after every
// received message, bubbletea's channel-pump pattern.
func waitForReadyCmd(ready <-chan scenario.LineID) tea.Cmd {
	return func() tea.Msg {
		id, ok := <-ready
		if !ok {
			return pollerStoppedMsg{}
		}
		return lineReadyMsg{line: id}
	}
}

func waitForCallEventCmd(feed *relay.Feed) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-feed.Events()
		if !ok {
			return feedClosedMsg{}
		}
		return callEventMsg(event)
	}
}

func frameTick() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg {
		return frameTickMsg(t)
	})
}

func statusTimeoutCmd() tea.Cmd {
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusTimeoutMsg{}
	})
}

func copyToClipboardCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return clipboardMsg{err: clipboard.WriteAll(text)}
	}
}
