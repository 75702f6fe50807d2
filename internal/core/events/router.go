package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Handler receives decoded events, one method per variant
type Handler interface {
	OnSearchStarted(SearchStarted)
	OnTreeUpdate(TreeUpdate)
	OnSearchComplete(SearchComplete)
	OnFinalAnalysis(FinalAnalysis)
	OnRateLimitWarning(RateLimitWarning)
	OnRemoteError(RemoteError)
	OnConnected(Connected)
	OnPong(Pong)
	OnRateLimitStatus(RateLimitStatus)
}

// Router decodes raw frames and hands them to a Handler. Bad frames are
// logged and dropped so one malformed event can't stop the stream.
type Router struct {
	handler Handler
	logger  *slog.Logger
}

// NewRouter creates a router. A nil logger uses slog.Default().
func NewRouter(h Handler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{handler: h, logger: logger}
}

// Dispatch decodes one frame and delivers it. The returned error is for
// callers that want to count drops; it has already been logged.
func (r *Router) Dispatch(name string, raw json.RawMessage) (err error) {
	ev, err := Decode(name, raw)
	if err != nil {
		var perr *ProtocolError
		switch {
		case errors.Is(err, ErrUnknownEvent):
			r.logger.Warn("dropping unknown event", "event", name)
		case errors.As(err, &perr):
			r.logger.Warn("dropping malformed event", "event", perr.Event, "reason", perr.Reason)
		default:
			r.logger.Warn("dropping event", "event", name, "error", err)
		}
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler for %s panicked: %v", name, p)
			r.logger.Error("event handler panicked", "event", name, "panic", p)
		}
	}()

	r.deliver(ev)
	return nil
}

func (r *Router) deliver(ev Event) {
	switch e := ev.(type) {
	case SearchStarted:
		r.handler.OnSearchStarted(e)
	case TreeUpdate:
		if len(e.Snapshot.Rekeyed) > 0 {
			r.logger.Warn("tree update ids disagree with their keys", "keys", e.Snapshot.Rekeyed)
		}
		r.handler.OnTreeUpdate(e)
	case SearchComplete:
		r.handler.OnSearchComplete(e)
	case FinalAnalysis:
		r.handler.OnFinalAnalysis(e)
	case RateLimitWarning:
		r.handler.OnRateLimitWarning(e)
	case RemoteError:
		r.handler.OnRemoteError(e)
	case Connected:
		r.handler.OnConnected(e)
	case Pong:
		r.handler.OnPong(e)
	case RateLimitStatus:
		r.handler.OnRateLimitStatus(e)
	default:
		panic(fmt.Sprintf("events: no handler for %T", ev))
	}
}
