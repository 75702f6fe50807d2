package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/neilberkman/linkscout/internal/core/session"
)

// Global styles used across views
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	articleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246")) // Lighter gray that works better in dark terminals

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	countdownStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("120"))

	// Help view styles
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	toneStyles = map[session.Tone]lipgloss.Style{
		session.ToneInfo:      lipgloss.NewStyle().Foreground(lipgloss.Color("246")),
		session.ToneConnected: lipgloss.NewStyle().Foreground(lipgloss.Color("120")),
		session.ToneSearching: lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true),
		session.ToneWarning:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		session.ToneError:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}

	connStyles = map[session.ConnStatus]lipgloss.Style{
		session.ConnDisconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		session.ConnConnecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		session.ConnConnected:    lipgloss.NewStyle().Foreground(lipgloss.Color("120")),
		session.ConnError:        lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)
