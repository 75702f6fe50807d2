package session

import "fmt"

// GuardViolation is returned when an action's precondition doesn't hold
type GuardViolation struct {
	Reason string
}

func (e *GuardViolation) Error() string {
	return fmt.Sprintf("cannot start search: %s", e.Reason)
}

// RemoteError is a session-level failure reported by the exploration process.
// Failures of individual nodes arrive as node status instead.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "exploration process reported an error"
	}
	return "exploration process error: " + e.Message
}
