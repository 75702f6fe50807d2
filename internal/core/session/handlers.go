package session

import (
	"fmt"
	"time"

	"github.com/neilberkman/linkscout/internal/core/events"
)

// handler adapts the controller to events.Handler without putting the
// callbacks on the controller's public surface.
type handler struct {
	c *Controller
}

func (h handler) OnSearchStarted(e events.SearchStarted) {
	c := h.c
	if e.AIProvider != "" {
		c.aiProvider = e.AIProvider
	}
	c.store.Clear()
	c.analysis = ""
	c.isSearching = true
	c.setState(Searching)
	c.setStatus(ToneSearching, fmt.Sprintf("%s is finding related websites...", c.providerName()))
}

func (h handler) OnTreeUpdate(e events.TreeUpdate) {
	c := h.c
	c.store.Replace(e.Snapshot)
	if roots := c.store.Roots(); len(roots) > 1 {
		c.logger.Warn("tree has several roots, using the first", "roots", len(roots), "root", roots[0].ID)
	}

	if c.state == Searching && c.store.IsComplete() {
		c.complete()
	}
}

func (h handler) OnSearchComplete(e events.SearchComplete) {
	c := h.c
	total := c.store.Len()
	if e.TotalNodes != nil {
		total = *e.TotalNodes
	}

	wasSearching := c.state == Searching
	c.isSearching = false
	if wasSearching {
		c.setState(Completed)
		c.recordFinished()
	}
	c.setStatus(ToneConnected, fmt.Sprintf("Search complete! Found %d websites.", total))
}

func (h handler) OnFinalAnalysis(e events.FinalAnalysis) {
	c := h.c
	c.analysis = e.Message
	c.setStatus(ToneConnected, "Analysis complete! Check the insights above.")
	if c.state == Completed {
		c.recordFinished()
	}
}

func (h handler) OnRateLimitWarning(e events.RateLimitWarning) {
	c := h.c
	c.logger.Warn("rate limited", "message", e.Message, "wait", e.Wait())
	c.setStatus(ToneWarning, e.Message)
	c.applyCountdown(c.gov.Start(e.Wait()))
}

func (h handler) OnRemoteError(e events.RemoteError) {
	c := h.c
	c.lastError = &RemoteError{Message: e.Message}
	c.connStatus = ConnError
	c.isSearching = false
	if c.state == Searching {
		c.setState(Connected)
	}
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	c.setStatus(ToneError, "Error: "+msg)
}

func (h handler) OnConnected(e events.Connected) {
	c := h.c
	c.logger.Info("server confirmed connection", "session_id", e.SessionID, "ai_provider", e.AIProvider)
	if e.AIProvider != "" {
		c.aiProvider = e.AIProvider
	}
}

func (h handler) OnPong(events.Pong) {
	h.c.logger.Debug("pong")
	h.c.lastPong = time.Now()
}

func (h handler) OnRateLimitStatus(e events.RateLimitStatus) {
	c := h.c
	c.logger.Info("rate limit status",
		"can_make_call", e.CanMakeCall,
		"recent_calls", e.RecentCalls,
		"max_calls_per_minute", e.MaxCallsPerMinute,
		"wait", e.WaitTime)

	if e.CanMakeCall {
		c.setStatus(ToneInfo, fmt.Sprintf("Rate limit OK: %d of %d calls used this minute", e.RecentCalls, e.MaxCallsPerMinute))
		return
	}
	c.setStatus(ToneWarning, fmt.Sprintf("Rate limited: %d of %d calls used, wait %.0fs", e.RecentCalls, e.MaxCallsPerMinute, e.WaitTime))
}
