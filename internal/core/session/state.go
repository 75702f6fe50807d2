package session

import (
	"fmt"
	"time"

	"github.com/neilberkman/linkscout/internal/core/models"
	"github.com/neilberkman/linkscout/internal/core/render"
	"github.com/neilberkman/linkscout/internal/core/tree"
)

// State is the controller's lifecycle state
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Searching
	Completed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Searching:
		return "searching"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ConnStatus is the connection indicator shown to the user. It can read
// "error" while the link is actually up, after the exploration process
// reports a failure.
type ConnStatus string

const (
	ConnDisconnected ConnStatus = "disconnected"
	ConnConnecting   ConnStatus = "connecting"
	ConnConnected    ConnStatus = "connected"
	ConnError        ConnStatus = "error"
)

// Tone classifies the status line for styling
type Tone string

const (
	ToneInfo      Tone = "info"
	ToneConnected Tone = "connected"
	ToneSearching Tone = "searching"
	ToneWarning   Tone = "warning"
	ToneError     Tone = "error"
)

// View is an immutable snapshot of everything a front end needs to draw
type View struct {
	Seq uint64

	State        State
	Conn         ConnStatus
	Status       string
	Tone         Tone
	IsSearching  bool
	StartEnabled bool
	Expanded     bool

	FinalAnalysis string
	AIProvider    string

	// RateLimitRemaining is the countdown in seconds, nil when not throttled
	RateLimitRemaining *int
	Countdown          string

	Article models.ArticleData
	Tree    render.DisplayTree
	Counts  tree.Counts

	// LastError is the most recent session-level failure, cleared by the
	// next successful start.
	LastError *RemoteError

	LastPong time.Time
}

// Text renders the view's tree for a terminal of the given width
func (v View) Text(width int) string {
	return render.Text(v.Tree, render.TextOptions{Expanded: v.Expanded, Width: width})
}
