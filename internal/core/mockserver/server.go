// Package mockserver is a self-contained exploration process. It speaks the
// same event protocol as the real backend but grows a synthetic tree, so the
// client can be run and tested without any search or AI provider.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/neilberkman/linkscout/internal/core/events"
	"github.com/neilberkman/linkscout/internal/core/models"
)

// Provider is the AI provider name the demo advertises
const Provider = "Mock Gemini"

// Config shapes the synthetic exploration
type Config struct {
	MaxDepth       int
	MaxPerLevel    int
	CallsPerMinute int // 0 disables throttling
	StepDelay      time.Duration
}

// DefaultConfig mirrors the real backend's defaults
func DefaultConfig() Config {
	return Config{
		MaxDepth:       2,
		MaxPerLevel:    3,
		CallsPerMinute: 15,
		StepDelay:      time.Second,
	}
}

// Server accepts websocket clients at any path it is mounted on
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	limiter  *rate.Limiter
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a server. The limiter is shared by every client, like the
// backend's single provider quota.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	limit, burst := rate.Inf, 0
	if cfg.CallsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.CallsPerMinute))
		burst = cfg.CallsPerMinute
	}
	return &Server{
		cfg:    cfg,
		logger: logger.With("component", "mockserver"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  rate.NewLimiter(limit, burst),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Sessions returns the number of connected clients
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ServeHTTP upgrades the request and serves the client until it leaves
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := &session{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
	}
	sess.logger = s.logger.With("session", sess.id)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
	}()

	sess.serve(r.Context())
}

// ListenAndServe serves websocket clients on addr at /ws until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe over an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	s.logger.Info("demo exploration process listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// rateStatus reports the shared quota the way the backend's rate limiter does
func (s *Server) rateStatus() events.RateLimitStatus {
	st := events.RateLimitStatus{
		CanMakeCall:       true,
		MaxCallsPerMinute: s.cfg.CallsPerMinute,
	}
	if s.cfg.CallsPerMinute <= 0 {
		return st
	}

	now := s.now()
	tokens := s.limiter.TokensAt(now)
	st.RecentCalls = s.cfg.CallsPerMinute - int(math.Floor(tokens))
	if st.RecentCalls < 0 {
		st.RecentCalls = 0
	}
	st.CanMakeCall = tokens >= 1
	st.WaitTime = s.waitTime(now)
	return st
}

// waitTime is how long until one call is allowed, without spending it
func (s *Server) waitTime(now time.Time) float64 {
	r := s.limiter.ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d.Seconds()
}

// allowCall spends one provider call if the quota permits
func (s *Server) allowCall() bool {
	return s.limiter.AllowN(s.now(), 1)
}

type session struct {
	id     string
	server *Server
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{} // closed when the running explorer has returned
	wg     sync.WaitGroup
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func (c *session) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.stopSearch()
		c.wg.Wait()
		_ = c.conn.Close()
		c.logger.Info("client disconnected")
	}()

	c.logger.Info("client connected")
	c.emit(events.NameConnected, events.Connected{
		Message:    "Connected to server successfully",
		SessionID:  c.id,
		AIProvider: Provider,
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.emit(events.NameError, events.RemoteError{Message: "Server error: malformed message"})
			continue
		}
		c.handle(ctx, env)
	}
}

func (c *session) handle(ctx context.Context, env envelope) {
	switch env.Event {
	case events.NamePing:
		c.emit(events.NamePong, map[string]string{
			"timestamp":  c.server.now().UTC().Format(time.RFC3339),
			"session_id": c.id,
		})
	case events.NameGetRateLimitStatus:
		c.emit(events.NameRateLimitStatus, c.server.rateStatus())
	case events.NameStartSearch:
		c.startSearch(ctx, env.Data)
	default:
		c.logger.Debug("ignoring event", "event", env.Event)
	}
}

type startRequest struct {
	ArticleData  *models.ArticleData `json:"article_data"`
	ArticleTitle *string             `json:"article_title"`
}

// parseStart accepts both the article_data form and the older
// article_title form. The returned message is sent back as an error event.
func parseStart(raw json.RawMessage) (models.ArticleData, string) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" {
		return models.ArticleData{}, "No data provided"
	}

	var req startRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return models.ArticleData{}, "No data provided"
	}

	var article models.ArticleData
	switch {
	case req.ArticleData != nil:
		article = *req.ArticleData
	case req.ArticleTitle != nil:
		article = models.ArticleData{Title: *req.ArticleTitle}
	}
	if article.Title == "" {
		return article, "Article data is required"
	}

	article.Title = strings.TrimSpace(article.Title)
	if article.Title == "" {
		return article, "Article title cannot be empty"
	}
	if err := article.Validate(); err != nil {
		return article, fmt.Sprintf("Invalid article data: %v", err)
	}
	return article, ""
}

func (c *session) startSearch(ctx context.Context, raw json.RawMessage) {
	article, problem := parseStart(raw)
	if problem != "" {
		c.logger.Warn("rejected start_search", "reason", problem)
		c.emit(events.NameError, events.RemoteError{Message: problem})
		return
	}

	st := c.server.rateStatus()
	if !st.CanMakeCall {
		wait := st.WaitTime
		c.logger.Warn("rate limited", "wait_time", wait)
		c.emit(events.NameRateLimitWarn, events.RateLimitWarning{
			Message:  fmt.Sprintf("Rate limited. Please wait %.0f seconds before starting a new search.", wait),
			WaitTime: &wait,
		})
		return
	}

	c.stopSearch()

	searchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.logger.Info("starting search", "title", article.Title)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		defer cancel()
		newExplorer(c, article).run(searchCtx)
	}()
}

func (c *session) stopSearch() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		// nothing from the old tree may follow the next search_started
		<-done
	}
}

func (c *session) emit(event string, payload interface{}) {
	data, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		c.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("write failed", "event", event, "error", err)
	}
}
