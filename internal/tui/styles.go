package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/lemuria/internal/events"
)

// AppName is shown in the watch screen title
const AppName = "LEMURIA WATCH"

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple
	SuccessColor = lipgloss.Color("#43BF6D") // Green
	WarningColor = lipgloss.Color("#FFA500") // Orange
	ErrorColor   = lipgloss.Color("#FF5555") // Red
	TextColor    = lipgloss.Color("#FFFFFF") // White
	SubtleColor  = lipgloss.Color("#626262") // Gray
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Italic(true)

	// StatusBoxStyle frames the status panel
	StatusBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(PrimaryColor).
			Padding(0, 1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Width(14)

	ValueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	ConnectedStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	IdleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	TimeStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)
)

// eventStyle colors an event log line by event type
func eventStyle(t events.Type) lipgloss.Style {
	switch t {
	case events.ConnectionAccepted, events.StreamEnabled:
		return lipgloss.NewStyle().Foreground(SuccessColor)
	case events.ConnectionRejected:
		return lipgloss.NewStyle().Foreground(WarningColor)
	case events.ConnectionClosed, events.StreamDisabled:
		return lipgloss.NewStyle().Foreground(TextColor)
	default:
		return lipgloss.NewStyle().Foreground(SubtleColor)
	}
}
