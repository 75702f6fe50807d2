// Package ratelimit implements the countdown that gates the start action after
// the exploration process reports throttling.
//
//	Idle ──Start(wait)──► Counting(remaining) ──Tick, remaining<=0──► Idle
//	                           ▲      │
//	                           └─Tick─┘ (remaining--)
//
// Only one countdown exists at a time. Start always supersedes the running
// one; warnings are never queued.
package ratelimit

import (
	"fmt"
	"math"
	"time"
)

// State is the governor state
type State int

const (
	// Idle means the start action is not gated
	Idle State = iota

	// Counting means a countdown is running and start is disabled
	Counting
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Counting:
		return "counting"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Ticker is the part of time.Ticker the governor uses
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a ticker firing every d
type TickerFunc func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Update describes what the countdown shows after a Start or Tick
type Update struct {
	State State

	// Remaining is the number of seconds displayed; zero once idle
	Remaining int

	// Ready is set on the tick that ends a countdown
	Ready bool

	Text string
}

// ReadyText is shown once a countdown has finished
const ReadyText = "Ready to search"

// Governor is a single-slot countdown. Like the tree store it is driven from
// the session controller's goroutine only.
type Governor struct {
	state     State
	remaining int
	shown     int
	interval  time.Duration
	newTicker TickerFunc
	ticker    Ticker
}

// Option configures a Governor
type Option func(*Governor)

// WithTicker replaces the ticker factory, mainly for tests
func WithTicker(f TickerFunc) Option {
	return func(g *Governor) { g.newTicker = f }
}

// WithInterval changes the tick period (default 1s)
func WithInterval(d time.Duration) Option {
	return func(g *Governor) { g.interval = d }
}

// New creates an idle governor
func New(opts ...Option) *Governor {
	g := &Governor{
		interval:  time.Second,
		newTicker: NewTimeTicker,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start cancels any running countdown and begins a new one of ceil(wait)
// seconds. The first display is returned immediately; the rest arrive through
// Tick as C fires.
func (g *Governor) Start(waitSeconds float64) Update {
	g.Cancel()

	if math.IsNaN(waitSeconds) || waitSeconds < 0 {
		waitSeconds = 0
	}
	g.remaining = int(math.Ceil(waitSeconds))
	g.state = Counting
	g.ticker = g.newTicker(g.interval)

	return g.Tick()
}

// Tick advances the countdown by one step. Ticks that arrive while idle are
// ignored.
func (g *Governor) Tick() Update {
	if g.state != Counting {
		return Update{State: Idle}
	}

	if g.remaining <= 0 {
		g.Cancel()
		return Update{State: Idle, Ready: true, Text: ReadyText}
	}

	g.shown = g.remaining
	g.remaining--
	return Update{
		State:     Counting,
		Remaining: g.shown,
		Text:      fmt.Sprintf("Wait %ds (Rate Limited)", g.shown),
	}
}

// Cancel stops the countdown without emitting Ready
func (g *Governor) Cancel() {
	if g.ticker != nil {
		g.ticker.Stop()
		g.ticker = nil
	}
	g.state = Idle
	g.remaining = 0
	g.shown = 0
}

// C fires once per interval while counting. It is nil when idle, so a select
// on it blocks forever instead of spinning.
func (g *Governor) C() <-chan time.Time {
	if g.ticker == nil {
		return nil
	}
	return g.ticker.C()
}

// State returns the current state
func (g *Governor) State() State {
	return g.state
}

// Active reports whether a countdown is running
func (g *Governor) Active() bool {
	return g.state == Counting
}

// Remaining returns the seconds currently displayed, or nil when idle
func (g *Governor) Remaining() *int {
	if g.state != Counting {
		return nil
	}
	r := g.shown
	return &r
}
