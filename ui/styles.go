package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	fuchsia = lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}
	green   = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	yellow  = lipgloss.AdaptiveColor{Light: "#F2B155", Dark: "#F2B155"}
	red     = lipgloss.AdaptiveColor{Light: "#ED567A", Dark: "#ED567A"}
	subtle  = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	normal  = lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#dddddd"}

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(fuchsia).
			Bold(true).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(subtle).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(fuchsia).
			Bold(true).
			Padding(0, 2)

	selectedRowStyle = lipgloss.NewStyle().
				Foreground(fuchsia).
				Bold(true)

	dimStyle    = lipgloss.NewStyle().Foreground(subtle)
	normalStyle = lipgloss.NewStyle().Foreground(normal)

	readyBadge   = lipgloss.NewStyle().Foreground(green)
	pendingBadge = lipgloss.NewStyle().Foreground(yellow)
	missingBadge = lipgloss.NewStyle().Foreground(subtle)

	errorTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#230733")).
			Background(red).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#343433", Dark: "#C1C6B2"}).
			Background(lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#353533"})

	progressFilled = lipgloss.NewStyle().Foreground(fuchsia)
	progressEmpty  = lipgloss.NewStyle().Foreground(subtle)

	vizHeadStyle  = lipgloss.NewStyle().Foreground(fuchsia).Bold(true)
	vizBrightTier = lipgloss.NewStyle().Foreground(lipgloss.Color("#EE6FF8"))
	vizMidTier    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AD58B4"))
	vizDimTier    = lipgloss.NewStyle().Foreground(subtle)
)
