// Package transport maintains the persistent, reconnecting event channel to
// the exploration process.
//
// Frames are WebSocket text messages of the form {"event": name, "data": payload}.
// Connection signals and inbound frames share one ordered channel, so a
// consumer never sees a frame from a connection before that connection's Open.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Send while the link is down. Nothing is queued.
var ErrNotConnected = errors.New("not connected to server")

// ErrClosed is returned by Connect after Close
var ErrClosed = errors.New("transport closed")

// TransportError wraps a dial, read, or write failure
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// State of the link
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Kind says what a Message carries
type Kind int

const (
	KindOpen Kind = iota
	KindClosed
	KindError
	KindReconnected
	KindExhausted
	KindFrame
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindClosed:
		return "closed"
	case KindError:
		return "error"
	case KindReconnected:
		return "reconnected"
	case KindExhausted:
		return "exhausted"
	case KindFrame:
		return "frame"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Message is a connection signal or an inbound frame
type Message struct {
	Kind Kind

	// Event and Data are set for KindFrame
	Event string
	Data  json.RawMessage

	// Reason is set for KindClosed
	Reason string

	// Attempt is set for KindReconnected
	Attempt int

	// Err is set for KindError
	Err error
}

// Config controls dialing and reconnection
type Config struct {
	URL string

	// MaxRetries is the number of reconnection attempts before giving up
	MaxRetries int

	// BaseDelay is the wait before the first retry; it doubles up to MaxDelay
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// DialTimeout bounds each handshake and each write
	DialTimeout time.Duration

	Header http.Header
}

// DefaultConfig returns the reconnection policy the exploration process
// expects from its clients.
func DefaultConfig(url string) Config {
	return Config{
		URL:         url,
		MaxRetries:  5,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
		DialTimeout: 10 * time.Second,
	}
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Client is a reconnecting WebSocket event channel
type Client struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer
	msgs   chan Message

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	writeMu sync.Mutex
}

// New creates a disconnected client. Call Connect to start it.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig(cfg.URL)
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}

	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "transport"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		},
		msgs: make(chan Message, 64),
	}
}

// Messages returns the ordered stream of signals and frames. It is closed by
// Close.
func (c *Client) Messages() <-chan Message {
	return c.msgs
}

// State returns the current link state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection loop. It does nothing while a loop is already
// running. The loop stops when ctx is cancelled, on Close, or when retries
// run out.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != Disconnected {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.state = Connecting
	c.cancel = cancel
	c.done = make(chan struct{})
	c.logger.Info("connecting", "url", c.cfg.URL)

	go c.run(loopCtx, cancel, c.done)
	return nil
}

// Send writes one event. It fails with ErrNotConnected unless the link is up.
func (c *Client) Send(event string, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.DialTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Close stops reconnecting, drops the link, and closes Messages
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	close(c.msgs)
	return nil
}

// backoff returns the wait before reconnection attempt n (1-based)
func (c *Client) backoff(n int) time.Duration {
	d := c.cfg.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= c.cfg.MaxDelay {
			return c.cfg.MaxDelay
		}
	}
	return d
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) emit(ctx context.Context, m Message) bool {
	select {
	case c.msgs <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

// run owns the loop context and releases it however the loop ends
func (c *Client) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer func() {
		c.mu.Lock()
		c.state = Disconnected
		c.conn = nil
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()

	attempt := 0
	for {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Warn("reconnecting", "attempt", attempt, "max_retries", c.cfg.MaxRetries, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("dial failed", "attempt", attempt, "error", err)
			if !c.emit(ctx, Message{Kind: KindError, Err: err}) {
				return
			}
			if attempt >= c.cfg.MaxRetries {
				c.logger.Warn("reconnection attempts exhausted", "attempts", attempt)
				c.emit(ctx, Message{Kind: KindExhausted})
				return
			}
			attempt++
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.state = Connected
		c.mu.Unlock()
		c.logger.Info("connected", "url", c.cfg.URL, "attempt", attempt)

		if attempt > 0 && !c.emit(ctx, Message{Kind: KindReconnected, Attempt: attempt}) {
			conn.Close()
			return
		}
		if !c.emit(ctx, Message{Kind: KindOpen}) {
			conn.Close()
			return
		}

		reason := c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.state = Connecting
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.logger.Info("disconnected", "reason", reason)
		if !c.emit(ctx, Message{Kind: KindClosed, Reason: reason}) {
			return
		}
		attempt = 1
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dctx, c.cfg.URL, c.cfg.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	return conn, nil
}

// readLoop forwards frames until the connection fails and returns the reason
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) string {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "client closed"
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				if ce.Text != "" {
					return "server closed connection: " + ce.Text
				}
				return "server closed connection"
			}
			return "transport error: " + err.Error()
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.logger.Warn("dropping undecodable frame", "bytes", len(data), "error", err)
			continue
		}

		if !c.emit(ctx, Message{Kind: KindFrame, Event: env.Event, Data: env.Data}) {
			return "client closed"
		}
	}
}
