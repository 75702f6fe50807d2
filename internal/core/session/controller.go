// Package session drives one exploration view: it owns the tree store and
// the rate-limit governor, reacts to transport signals and inbound events,
// and publishes immutable View snapshots for front ends.
//
// All mutation happens on the goroutine running Run. Front ends talk to the
// controller only through Submit and Views.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neilberkman/linkscout/internal/core/events"
	"github.com/neilberkman/linkscout/internal/core/models"
	"github.com/neilberkman/linkscout/internal/core/ratelimit"
	"github.com/neilberkman/linkscout/internal/core/render"
	"github.com/neilberkman/linkscout/internal/core/transport"
	"github.com/neilberkman/linkscout/internal/core/tree"
)

// Conn is the event channel the controller drives. *transport.Client
// implements it.
type Conn interface {
	Connect(ctx context.Context) error
	Send(event string, payload interface{}) error
	Messages() <-chan transport.Message
	State() transport.State
}

// Recorder is told when explorations start and finish. Finished may be called
// a second time for the same id when the final analysis arrives late.
type Recorder interface {
	Started(article models.ArticleData) (string, error)
	Finished(id string, total int, counts tree.Counts, hasAnalysis bool) error
}

// Deps are the controller's collaborators. Conn is required; the rest
// default when nil.
type Deps struct {
	Conn     Conn
	Store    *tree.Store
	Governor *ratelimit.Governor
	Recorder Recorder
	Logger   *slog.Logger
}

// Controller is the session state machine
type Controller struct {
	conn     Conn
	store    *tree.Store
	gov      *ratelimit.Governor
	recorder Recorder
	logger   *slog.Logger
	router   *events.Router

	article models.ArticleData
	ctx     context.Context

	state       State
	connStatus  ConnStatus
	status      string
	tone        Tone
	isSearching bool
	expanded    bool
	analysis    string
	aiProvider  string
	countdown   string
	reconnected bool
	recordID    string
	lastError   *RemoteError
	lastPong    time.Time

	seq     uint64
	views   chan View
	actions chan func(*Controller)
	done    chan struct{}
}

// New creates a controller for one article. The article is fixed for the
// controller's lifetime.
func New(deps Deps, article models.ArticleData) *Controller {
	if deps.Store == nil {
		deps.Store = tree.New()
	}
	if deps.Governor == nil {
		deps.Governor = ratelimit.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	article.Title = strings.TrimSpace(article.Title)

	c := &Controller{
		conn:       deps.Conn,
		store:      deps.Store,
		gov:        deps.Governor,
		recorder:   deps.Recorder,
		logger:     deps.Logger.With("component", "session", "article", article.Title),
		article:    article,
		ctx:        context.Background(),
		state:      Idle,
		connStatus: ConnDisconnected,
		status:     "Not connected",
		tone:       ToneInfo,
		expanded:   true,
		views:      make(chan View, 1),
		actions:    make(chan func(*Controller)),
		done:       make(chan struct{}),
	}
	c.router = events.NewRouter(handler{c}, c.logger)
	return c
}

// Run connects and then processes transport messages, countdown ticks, and
// submitted actions until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.gov.Cancel()

	c.ctx = ctx
	c.Connect()
	c.publish()

	msgs := c.conn.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				msgs = nil
				c.state = Idle
				c.connStatus = ConnDisconnected
				c.setStatus(ToneError, "Connection closed")
				break
			}
			c.HandleMessage(m)
		case <-c.gov.C():
			c.HandleTick()
		case fn := <-c.actions:
			fn(c)
		}
		c.publish()
	}
}

// Submit runs fn on the controller goroutine. It blocks until Run accepts it
// and returns false if Run has already stopped.
func (c *Controller) Submit(fn func(*Controller)) bool {
	select {
	case c.actions <- fn:
		return true
	case <-c.done:
		return false
	}
}

// Views delivers the latest View after each step. Stale views are
// discarded, so a slow reader only ever sees the newest state.
func (c *Controller) Views() <-chan View {
	return c.views
}

// Done is closed when Run returns
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) publish() {
	v := c.View()
	select {
	case <-c.views:
	default:
	}
	c.views <- v
}

// View snapshots the current state
func (c *Controller) View() View {
	c.seq++
	return View{
		Seq:                c.seq,
		State:              c.state,
		Conn:               c.connStatus,
		Status:             c.status,
		Tone:               c.tone,
		IsSearching:        c.isSearching,
		StartEnabled:       c.canStart() == "",
		Expanded:           c.expanded,
		FinalAnalysis:      c.analysis,
		AIProvider:         c.aiProvider,
		RateLimitRemaining: c.gov.Remaining(),
		Countdown:          c.countdown,
		Article:            c.article,
		Tree:               render.Render(c.store, c.analysis, render.Options{ArticleTitle: c.article.Title}),
		Counts:             c.store.Counts(),
		LastError:          c.lastError,
		LastPong:           c.lastPong,
	}
}

// State returns the lifecycle state
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) setStatus(tone Tone, msg string) {
	c.tone = tone
	c.status = msg
	c.logger.Debug("status", "tone", tone, "message", msg)
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.logger.Info("state change", "from", c.state, "to", s)
	c.state = s
}

const (
	reasonNotConnected = "not connected to server"
	reasonSearching    = "search already in progress"
	reasonRateLimited  = "rate limited"
	reasonNoTitle      = "no article title specified"
)

// canStart returns why a search can't start right now, or "" if it can
func (c *Controller) canStart() string {
	switch {
	case c.conn.State() != transport.Connected:
		return reasonNotConnected
	case c.isSearching:
		return reasonSearching
	case c.gov.Active():
		return reasonRateLimited
	case c.article.Title == "":
		return reasonNoTitle
	}
	return ""
}

// Connect asks the transport to connect unless it already is
func (c *Controller) Connect() {
	if c.conn.State() != transport.Disconnected {
		return
	}
	if err := c.conn.Connect(c.ctx); err != nil {
		c.connStatus = ConnError
		c.setStatus(ToneError, "Connection failed: "+err.Error())
		return
	}
	if c.state == Idle {
		c.setState(Connecting)
	}
	c.connStatus = ConnConnecting
	c.setStatus(ToneInfo, "Connecting to server...")
}

// StartSearch clears the previous exploration and asks the exploration
// process for a new one.
func (c *Controller) StartSearch() error {
	if reason := c.canStart(); reason != "" {
		switch reason {
		case reasonNotConnected:
			c.Connect()
			c.setStatus(ToneError, "Not connected to server")
		case reasonNoTitle:
			c.setStatus(ToneError, "No article title specified")
		}
		c.logger.Info("start refused", "reason", reason)
		return &GuardViolation{Reason: reason}
	}

	c.isSearching = true
	c.lastError = nil
	c.recordID = ""
	c.store.Clear()
	c.analysis = ""
	c.setState(Searching)
	c.setStatus(ToneSearching, fmt.Sprintf("Starting %s search...", c.providerName()))

	if err := c.conn.Send(events.NameStartSearch, events.StartSearch{ArticleData: c.article}); err != nil {
		c.isSearching = false
		c.setState(Connected)
		c.setStatus(ToneError, "Failed to send search request")
		return fmt.Errorf("failed to send search request: %w", err)
	}

	if c.recorder != nil {
		id, err := c.recorder.Started(c.article)
		if err != nil {
			c.logger.Warn("failed to record exploration start", "error", err)
		}
		c.recordID = id
	}
	return nil
}

// ExpandAll shows every node
func (c *Controller) ExpandAll() {
	c.expanded = true
}

// CollapseAll hides everything below the root
func (c *Controller) CollapseAll() {
	c.expanded = false
}

// Reconnect restarts the transport after retries ran out
func (c *Controller) Reconnect() {
	if c.conn.State() != transport.Disconnected {
		c.setStatus(ToneInfo, "Already "+c.conn.State().String())
		return
	}
	c.Connect()
}

// Ping sends a liveness probe; the answer arrives as a pong event
func (c *Controller) Ping() error {
	return c.send(events.NamePing, nil)
}

// RequestRateLimitStatus asks how close the exploration process is to
// throttling us.
func (c *Controller) RequestRateLimitStatus() error {
	return c.send(events.NameGetRateLimitStatus, nil)
}

func (c *Controller) send(event string, payload interface{}) error {
	if err := c.conn.Send(event, payload); err != nil {
		c.setStatus(ToneError, "Not connected to server")
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// HandleMessage applies one transport message
func (c *Controller) HandleMessage(m transport.Message) {
	switch m.Kind {
	case transport.KindOpen:
		c.connStatus = ConnConnected
		if c.state == Idle || c.state == Connecting {
			c.setState(Connected)
		}
		if c.reconnected {
			c.reconnected = false
			c.setStatus(ToneConnected, "Reconnected to server")
		} else {
			c.setStatus(ToneConnected, "Connected to server")
		}

	case transport.KindClosed:
		c.connStatus = ConnError
		c.dropSearch()
		c.setState(Connecting)
		c.setStatus(ToneError, "Disconnected: "+m.Reason)

	case transport.KindError:
		c.connStatus = ConnError
		c.dropSearch()
		if c.state != Idle {
			c.setState(Connecting)
		}
		detail := "unknown error"
		if m.Err != nil {
			detail = m.Err.Error()
		}
		c.setStatus(ToneError, "Connection failed: "+detail)

	case transport.KindReconnected:
		c.logger.Info("reconnected", "attempt", m.Attempt)
		c.reconnected = true

	case transport.KindExhausted:
		c.connStatus = ConnError
		c.dropSearch()
		c.setState(Idle)
		c.setStatus(ToneError, "Reconnection failed")

	case transport.KindFrame:
		_ = c.router.Dispatch(m.Event, m.Data)

	default:
		c.logger.Warn("ignoring transport message", "kind", m.Kind)
	}
}

// dropSearch abandons an in-flight search. Reconnecting never resumes it.
func (c *Controller) dropSearch() {
	if c.isSearching {
		c.logger.Info("search abandoned")
	}
	c.isSearching = false
}

// HandleTick advances the rate-limit countdown
func (c *Controller) HandleTick() {
	c.applyCountdown(c.gov.Tick())
}

func (c *Controller) applyCountdown(u ratelimit.Update) {
	if !u.Ready {
		if u.Text != "" {
			c.countdown = u.Text
		}
		return
	}

	c.countdown = ""
	c.setStatus(ToneConnected, ratelimit.ReadyText)

	// A search that was throttled before producing anything will never
	// complete on its own.
	if c.isSearching && c.store.Len() == 0 {
		c.isSearching = false
		if c.state == Searching {
			c.setState(Connected)
		}
	}
}

func (c *Controller) complete() {
	c.isSearching = false
	c.setState(Completed)
	if c.analysis != "" {
		c.setStatus(ToneConnected, c.providerName()+" search and analysis complete!")
	} else {
		c.setStatus(ToneConnected, c.providerName()+" search complete!")
	}
	c.recordFinished()
}

func (c *Controller) recordFinished() {
	if c.recorder == nil || c.recordID == "" {
		return
	}
	counts := c.store.Counts()
	if err := c.recorder.Finished(c.recordID, counts.Total(), counts, c.analysis != ""); err != nil {
		c.logger.Warn("failed to record exploration result", "error", err)
	}
}

func (c *Controller) providerName() string {
	if c.aiProvider != "" {
		return c.aiProvider
	}
	return "Gemini"
}
