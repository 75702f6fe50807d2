package tui

import "github.com/charmbracelet/bubbles/key"

type keymap struct {
	Start,
	Expand,
	Collapse,
	Reconnect,
	Ping,
	Copy,
	Down,
	Up,
	HalfDown,
	HalfUp,
	Home,
	End,
	Help,
	Quit key.Binding
}

// FullHelp implements help.KeyMap.
func (k keymap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Expand, k.Collapse, k.Copy},
		{k.Reconnect, k.Ping},
		{k.Down, k.Up, k.HalfDown, k.HalfUp, k.Home, k.End},
		{k.Help, k.Quit},
	}
}

// ShortHelp implements help.KeyMap.
func (k keymap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Start,
		k.Expand,
		k.Collapse,
		k.Copy,
		k.Help,
		k.Quit,
	}
}

func defaultKeymap() keymap {
	return keymap{
		Start: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "start"),
		),
		Expand: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "expand"),
		),
		Collapse: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "collapse"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reconnect"),
		),
		Ping: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "ping"),
		),
		Copy: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy tree"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k", "up"),
		),
		HalfDown: key.NewBinding(
			key.WithKeys("d", "pgdown"),
			key.WithHelp("d", "half page down"),
		),
		HalfUp: key.NewBinding(
			key.WithKeys("u", "pgup"),
			key.WithHelp("u", "half page up"),
		),
		Home: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "top"),
		),
		End: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "bottom"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
