// Package tui is the interactive front end: a live discovery tree over a
// session controller.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/neilberkman/linkscout/internal/core/render"
	"github.com/neilberkman/linkscout/internal/core/session"
)

// header and footer lines around the tree viewport
const (
	headerLines = 4
	footerLines = 2
)

type Model struct {
	controller *session.Controller
	view       session.View
	hasView    bool

	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	keys     keymap

	showHelp bool
	width    int
	height   int
	notice   string
}

// New creates the model. The caller runs c.Run; the model only reads views
// and submits actions.
func New(c *session.Controller) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		controller: c,
		viewport:   viewport.New(80, 20),
		spinner:    sp,
		help:       help.New(),
		keys:       defaultKeymap(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForView(m.controller), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - headerLines - footerLines
		if m.viewport.Height < 3 {
			m.viewport.Height = 3
		}
		m.refresh()
		return m, nil

	case viewMsg:
		m.view = msg.view
		m.hasView = true
		m.refresh()
		return m, waitForView(m.controller)

	case doneMsg:
		return m, tea.Quit

	case actionMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.notice = "Copy failed: " + msg.err.Error()
		} else {
			m.notice = "Tree copied to clipboard"
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.showHelp {
			return m.updateHelp(msg)
		}
		return m.updateTree(msg)
	}

	return m, nil
}

func (m Model) updateTree(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	km := m.keys
	m.notice = ""

	switch {
	case key.Matches(msg, km.Quit):
		return m, tea.Quit

	case key.Matches(msg, km.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, km.Start):
		return m, submit(m.controller, (*session.Controller).StartSearch)

	case key.Matches(msg, km.Expand):
		return m, submit(m.controller, func(c *session.Controller) error {
			c.ExpandAll()
			return nil
		})

	case key.Matches(msg, km.Collapse):
		return m, submit(m.controller, func(c *session.Controller) error {
			c.CollapseAll()
			return nil
		})

	case key.Matches(msg, km.Reconnect):
		return m, submit(m.controller, func(c *session.Controller) error {
			c.Reconnect()
			return nil
		})

	case key.Matches(msg, km.Ping):
		return m, submit(m.controller, func(c *session.Controller) error {
			if err := c.Ping(); err != nil {
				return err
			}
			return c.RequestRateLimitStatus()
		})

	case key.Matches(msg, km.Copy):
		if !m.hasView {
			return m, nil
		}
		return m, copyToClipboard(ansi.Strip(m.view.Text(0)))

	case key.Matches(msg, km.Down):
		m.viewport.LineDown(1)
	case key.Matches(msg, km.Up):
		m.viewport.LineUp(1)
	case key.Matches(msg, km.HalfDown):
		m.viewport.HalfViewDown()
	case key.Matches(msg, km.HalfUp):
		m.viewport.HalfViewUp()
	case key.Matches(msg, km.Home):
		m.viewport.GotoTop()
	case key.Matches(msg, km.End):
		m.viewport.GotoBottom()
	}

	return m, nil
}

// refresh re-renders the tree into the viewport, keeping the scroll offset
func (m *Model) refresh() {
	if !m.hasView {
		return
	}
	m.viewport.SetContent(m.view.Text(m.viewport.Width))
}

func (m Model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m Model) headerView() string {
	v := m.view

	var b strings.Builder
	b.WriteString(titleStyle.Render("LinkScout"))
	b.WriteString("  ")
	b.WriteString(articleStyle.Render(render.SanitizeLine(v.Article.Title)))
	if m.hasView {
		conn := connStyles[v.Conn]
		b.WriteString("  ")
		b.WriteString(conn.Render("● " + string(v.Conn)))
	}
	b.WriteString("\n")

	// status line
	if v.IsSearching {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
	}
	tone, ok := toneStyles[v.Tone]
	if !ok {
		tone = metaStyle
	}
	status := v.Status
	if !m.hasView {
		status = "Starting..."
	}
	b.WriteString(tone.Render(render.SanitizeLine(status)))
	if v.Countdown != "" {
		b.WriteString("  ")
		b.WriteString(countdownStyle.Render(v.Countdown))
	}
	b.WriteString("\n")

	// progress line
	settled, total := treeProgress(v.Tree)
	if total > 0 {
		b.WriteString(renderProgressBar(settled, total, m.width))
		if v.AIProvider != "" {
			b.WriteString(metaStyle.Render(fmt.Sprintf("  via %s", render.SanitizeLine(v.AIProvider))))
		}
	}
	b.WriteString("\n")
	b.WriteString(metaStyle.Render(strings.Repeat("─", max(m.width, 20))))
	b.WriteString("\n")
	return b.String()
}

func (m Model) footerView() string {
	if m.notice != "" {
		return noticeStyle.Render(m.notice) + "\n" + m.help.View(m.keys)
	}
	return "\n" + m.help.View(m.keys)
}
