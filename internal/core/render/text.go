package render

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/neilberkman/linkscout/internal/core/models"
)

var (
	placeholderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))

	analysisHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("170"))

	rootTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	nodeTitleStyle = lipgloss.NewStyle().
			Bold(true)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246"))

	branchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusColors = map[models.Status]lipgloss.Color{
		models.StatusSearching:   lipgloss.Color("39"),
		models.StatusCompleted:   lipgloss.Color("120"),
		models.StatusError:       lipgloss.Color("196"),
		models.StatusRateLimited: lipgloss.Color("214"),
		models.StatusPending:     lipgloss.Color("246"),
	}
)

// TextOptions controls the terminal projection
type TextOptions struct {
	// Expanded shows every node; collapsed shows the root alone
	Expanded bool

	// Width truncates long lines when positive
	Width int

	// Now anchors relative timestamps; zero means time.Now()
	Now time.Time
}

// Text renders the display tree for a terminal. All remote text goes through
// SanitizeLine or SanitizeBlock first.
func Text(t DisplayTree, opts TextOptions) string {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	var b strings.Builder

	if t.IsPlaceholder() {
		b.WriteString(placeholderStyle.Render("🌳 Ready to Explore: " + SanitizeLine(t.Placeholder)))
		b.WriteString("\n")
		b.WriteString(metaStyle.Render("Start a search to watch related websites appear here as they are discovered."))
		b.WriteString("\n")
		return b.String()
	}

	if t.Analysis != "" {
		b.WriteString(analysisHeaderStyle.Render("🧠 Final Analysis"))
		b.WriteString("\n")
		analysis := SanitizeBlock(t.Analysis)
		if opts.Width > 4 {
			analysis = ansi.Wordwrap(analysis, opts.Width-2, "")
		}
		for _, line := range strings.Split(analysis, "\n") {
			b.WriteString("  " + line + "\n")
		}
		b.WriteString("\n")
	}

	writeNode(&b, t.Root, "", "", true, opts)

	if !opts.Expanded && len(t.Root.Children) > 0 {
		hidden := t.Count - 1
		b.WriteString(metaStyle.Render(fmt.Sprintf("  (+%d more, collapsed)", hidden)))
		b.WriteString("\n")
	}

	return b.String()
}

// writeNode writes n and, when expanded, its children. prefix is the branch
// drawn before this node's line; indent is what its detail lines and
// children continue with.
func writeNode(b *strings.Builder, n *DisplayNode, prefix, indent string, root bool, opts TextOptions) {
	title := SanitizeLine(n.Title)
	if title == "" {
		title = "(untitled)"
	}
	style := nodeTitleStyle
	if root {
		style = rootTitleStyle
	}
	if c, ok := statusColors[n.Status]; ok && !root {
		style = style.Foreground(c)
	}

	line := branchStyle.Render(prefix) + n.Icon + " " + style.Render(title)
	var meta []string
	if src := SanitizeLine(n.Source); src != "" {
		meta = append(meta, src)
	}
	if !n.Timestamp.IsZero() {
		meta = append(meta, humanize.RelTime(n.Timestamp, opts.Now, "ago", "from now"))
	}
	if len(meta) > 0 {
		line += " " + metaStyle.Render("· "+strings.Join(meta, " · "))
	}
	writeLine(b, line, opts.Width)

	detail := branchStyle.Render(indent) + "   "
	if q := SanitizeLine(n.SearchQuery); q != "" {
		writeLine(b, detail+metaStyle.Render(fmt.Sprintf("🔍 Found via: %q", q)), opts.Width)
	}
	if s := SanitizeLine(n.Snippet); s != "" {
		writeLine(b, detail+s, opts.Width)
	}
	if u := SanitizeLine(n.URL); u != "" {
		writeLine(b, detail+metaStyle.Render("🔗 "+u), opts.Width)
	}
	if e := SanitizeLine(n.ErrorMessage); e != "" {
		writeLine(b, detail+errorTextStyle.Render("⚠ "+e), opts.Width)
	}

	if !opts.Expanded {
		return
	}
	for i, c := range n.Children {
		last := i == len(n.Children)-1
		branch, cont := "├── ", "│   "
		if last {
			branch, cont = "└── ", "    "
		}
		writeNode(b, c, indent+branch, indent+cont, false, opts)
	}
}

func writeLine(b *strings.Builder, line string, width int) {
	if width > 0 {
		line = ansi.Truncate(line, width, "…")
	}
	b.WriteString(line)
	b.WriteString("\n")
}

// SanitizeLine strips escape sequences and control characters from a single
// line of remote text. Newlines and tabs become spaces.
func SanitizeLine(s string) string {
	s = ansi.Strip(s)
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s))
}

// SanitizeBlock is SanitizeLine for multi-line text; it keeps newlines.
func SanitizeBlock(s string) string {
	s = ansi.Strip(strings.ReplaceAll(s, "\r\n", "\n"))
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s))
}
