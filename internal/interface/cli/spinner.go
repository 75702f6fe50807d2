package cli

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner shows a spinning status line on a terminal while a headless
// exploration runs.
type Spinner struct {
	writer io.Writer

	mu      sync.Mutex
	message string
	started bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSpinner creates a new spinner with a message
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		writer:  w,
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// SetMessage replaces the text next to the spinner
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Start begins the spinner animation in a goroutine
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i = (i + 1) % len(frames) {
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			fmt.Fprintf(s.writer, "\r\033[K%s %s", frames[i], msg)

			select {
			case <-s.stop:
				// Clear the line
				fmt.Fprint(s.writer, "\r\033[K")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop stops the spinner and clears the line. It is safe to call twice, or
// without Start.
func (s *Spinner) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.started = true // a later Start is a no-op
		s.mu.Unlock()

		close(s.stop)
		if started {
			<-s.done
		}
	})
}
