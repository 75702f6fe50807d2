// Package events decodes the exploration process's inbound events into a
// closed set of typed variants and routes them to a Handler.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/neilberkman/linkscout/internal/core/models"
)

// Inbound event names
const (
	NameSearchStarted   = "search_started"
	NameTreeUpdate      = "tree_update"
	NameSearchComplete  = "search_complete"
	NameFinalAnalysis   = "final_analysis"
	NameRateLimitWarn   = "rate_limit_warning"
	NameError           = "error"
	NameConnected       = "connected"
	NamePong            = "pong"
	NameRateLimitStatus = "rate_limit_status"

	// NameHistoryAnalysis is an older name for final_analysis that some
	// deployments still emit.
	NameHistoryAnalysis = "History Analysis Completed"
)

// Outbound event names
const (
	NameStartSearch        = "start_search"
	NamePing               = "ping"
	NameGetRateLimitStatus = "get_rate_limit_status"
)

// ErrUnknownEvent is returned by Decode for names outside the protocol
var ErrUnknownEvent = errors.New("unknown event")

// ProtocolError means an event arrived with a payload we can't use
type ProtocolError struct {
	Event  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed %s event: %s", e.Event, e.Reason)
}

// Event is one decoded inbound event. The set of implementations is closed.
type Event interface {
	Name() string
	isEvent()
}

// SearchStarted acknowledges a start_search request
type SearchStarted struct {
	AIProvider string `json:"ai_provider,omitempty"`
}

// TreeUpdate carries the full tree; it replaces whatever the client holds
type TreeUpdate struct {
	Snapshot models.Snapshot
}

// SearchComplete is sent when the exploration process stops expanding nodes
type SearchComplete struct {
	TotalNodes *int `json:"total_nodes,omitempty"`
}

// FinalAnalysis is the summary written once exploration finishes
type FinalAnalysis struct {
	Message string `json:"message" validate:"required"`
}

// RateLimitWarning asks the client to wait before starting another search
type RateLimitWarning struct {
	Message  string   `json:"message" validate:"required"`
	WaitTime *float64 `json:"wait_time" validate:"required,gte=0"`
}

// Wait returns the wait time in seconds
func (w RateLimitWarning) Wait() float64 {
	if w.WaitTime == nil {
		return 0
	}
	return *w.WaitTime
}

// RemoteError is a session-level failure reported by the exploration process
type RemoteError struct {
	Message string `json:"message,omitempty"`
}

// Connected is the greeting sent right after the socket opens
type Connected struct {
	Message    string `json:"message,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	AIProvider string `json:"ai_provider,omitempty"`
}

// Pong answers a ping
type Pong struct{}

// RateLimitStatus answers get_rate_limit_status
type RateLimitStatus struct {
	CanMakeCall       bool    `json:"can_make_call"`
	WaitTime          float64 `json:"wait_time"`
	RecentCalls       int     `json:"recent_calls"`
	MaxCallsPerMinute int     `json:"max_calls_per_minute"`
}

func (SearchStarted) Name() string    { return NameSearchStarted }
func (TreeUpdate) Name() string       { return NameTreeUpdate }
func (SearchComplete) Name() string   { return NameSearchComplete }
func (FinalAnalysis) Name() string    { return NameFinalAnalysis }
func (RateLimitWarning) Name() string { return NameRateLimitWarn }
func (RemoteError) Name() string      { return NameError }
func (Connected) Name() string        { return NameConnected }
func (Pong) Name() string             { return NamePong }
func (RateLimitStatus) Name() string  { return NameRateLimitStatus }

func (SearchStarted) isEvent()    {}
func (TreeUpdate) isEvent()       {}
func (SearchComplete) isEvent()   {}
func (FinalAnalysis) isEvent()    {}
func (RateLimitWarning) isEvent() {}
func (RemoteError) isEvent()      {}
func (Connected) isEvent()        {}
func (Pong) isEvent()             {}
func (RateLimitStatus) isEvent()  {}

// StartSearch is the outbound request that begins an exploration
type StartSearch struct {
	ArticleData models.ArticleData `json:"article_data"`
}

// Decode turns a named raw payload into its typed event
func Decode(name string, raw json.RawMessage) (Event, error) {
	switch name {
	case NameSearchStarted:
		return decodeAs[SearchStarted](name, raw)
	case NameTreeUpdate:
		if isEmpty(raw) {
			return nil, &ProtocolError{Event: name, Reason: "missing tree payload"}
		}
		var e TreeUpdate
		if err := json.Unmarshal(raw, &e.Snapshot); err != nil {
			return nil, &ProtocolError{Event: name, Reason: err.Error()}
		}
		return e, nil
	case NameSearchComplete:
		return decodeAs[SearchComplete](name, raw)
	case NameFinalAnalysis, NameHistoryAnalysis:
		return decodeAs[FinalAnalysis](NameFinalAnalysis, raw)
	case NameRateLimitWarn:
		return decodeAs[RateLimitWarning](name, raw)
	case NameError:
		return decodeAs[RemoteError](name, raw)
	case NameConnected:
		return decodeAs[Connected](name, raw)
	case NamePong:
		return Pong{}, nil
	case NameRateLimitStatus:
		return decodeAs[RateLimitStatus](name, raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

func decodeAs[T Event](name string, raw json.RawMessage) (Event, error) {
	var e T
	if err := decodePayload(name, raw, &e); err != nil {
		return nil, err
	}
	return e, nil
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodePayload unmarshals raw into v and checks its validate tags. A missing
// payload decodes as an empty object so that events with only optional
// fields still arrive.
func decodePayload(name string, raw json.RawMessage, v interface{}) error {
	if !isEmpty(raw) {
		if err := json.Unmarshal(raw, v); err != nil {
			return &ProtocolError{Event: name, Reason: err.Error()}
		}
	}

	if err := models.ValidateStruct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ProtocolError{
				Event:  name,
				Reason: fmt.Sprintf("field %s failed %q", fe.Field(), fe.Tag()),
			}
		}
		return &ProtocolError{Event: name, Reason: err.Error()}
	}
	return nil
}
