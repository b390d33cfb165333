package ui

import (
	"github.com/OmniDock/od-prank-deck/internal/scenario"
)

// Config carries everything the TUI needs, resolved by main from the config
// file, environment and flags.
type Config struct {
	BaseURL string
	Token   string
	WSURL   string

	ScenarioID   scenario.ScenarioID
	ConferenceID string
	Voice        scenario.VoiceID

	CacheDir     string
	CacheMemMB   int
	CacheDiskMB  int
	CacheTTLDays int

	GlamourStyle    string `env:"GLAMOUR_STYLE"`
	GlamourMaxWidth uint
	EnableMouse     bool

	RequestsPerMinute int

	// For debugging the UI.
	Debug bool `env:"PRANKDECK_DEBUG"`
}
