package tui

import (
	"errors"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/neilberkman/linkscout/internal/core/session"
)

type viewMsg struct {
	view session.View
}

// doneMsg means the controller's Run loop has stopped
type doneMsg struct{}

type actionMsg struct {
	err error
}

type copiedMsg struct {
	err error
}

// waitForView blocks until the controller publishes a view. It is re-issued
// after every view, so the program always has exactly one reader.
func waitForView(c *session.Controller) tea.Cmd {
	return func() tea.Msg {
		select {
		case v := <-c.Views():
			return viewMsg{view: v}
		case <-c.Done():
			select {
			case v := <-c.Views():
				return viewMsg{view: v}
			default:
			}
			return doneMsg{}
		}
	}
}

// submit runs fn on the controller goroutine and reports its error
func submit(c *session.Controller, fn func(*session.Controller) error) tea.Cmd {
	return func() tea.Msg {
		res := make(chan error, 1)
		if !c.Submit(func(c *session.Controller) { res <- fn(c) }) {
			return doneMsg{}
		}
		err := <-res

		// refused starts already explain themselves in the status line
		var guard *session.GuardViolation
		if errors.As(err, &guard) {
			err = nil
		}
		return actionMsg{err: err}
	}
}

func copyToClipboard(text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{err: clipboard.WriteAll(text)}
	}
}
