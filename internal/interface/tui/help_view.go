package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) updateHelp(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "q", "?":
		m.showHelp = false
		return m, nil
	}

	return m, nil
}

func (m Model) viewHelp() string {
	help := `
LinkScout - Help
════════════════

EXPLORATION
───────────
  s            Start the search (once connected)
  e            Expand every branch
  c            Collapse to the article
  y            Copy the tree as plain text
  r            Reconnect after retries ran out
  p            Ping the exploration process and ask for quota

SCROLLING
─────────
  j/k          Scroll line by line
  d/u          Scroll half page
  g/G          Jump to top/bottom
  mouse wheel  Scroll

  ?            Show this help
  q            Quit

Press ?, q or esc to return to the tree
`

	return helpStyle.Render(help)
}
