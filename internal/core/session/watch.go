package session

import (
	"context"
	"errors"
	"time"
)

// ErrConnectionLost is returned by Watch when the transport gives up
var ErrConnectionLost = errors.New("connection to exploration process lost")

// WatchOptions tunes a headless run
type WatchOptions struct {
	// Linger keeps waiting up to this long for the final analysis after the
	// tree completes. Zero returns as soon as the tree is complete.
	Linger time.Duration

	// OnView sees every view, e.g. to stream progress
	OnView func(View)
}

type startResult struct {
	err error
	seq uint64
}

// Watch runs c without a front end: it starts the search as soon as the
// controller allows it and returns the view in which the exploration
// finished. A search released by a rate-limit countdown is started again.
// Watch owns c's Run loop; do not call Run separately.
func Watch(ctx context.Context, c *Controller, opts WatchOptions) (View, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		<-c.Done()
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	var (
		last     View
		startSeq uint64
		started  bool
		linger   <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()

		case err := <-runErr:
			return last, err

		case <-linger:
			return last, nil

		case v := <-c.Views():
			last = v
			if opts.OnView != nil {
				opts.OnView(v)
			}
			// views published before the start took effect are stale
			if started && v.Seq <= startSeq {
				continue
			}

			switch {
			case v.State == Completed:
				if opts.Linger <= 0 || v.FinalAnalysis != "" {
					return v, nil
				}
				if linger == nil {
					t := time.NewTimer(opts.Linger)
					defer t.Stop()
					linger = t.C
				}

			case started && v.LastError != nil:
				return v, v.LastError

			case v.State == Idle && v.Conn == ConnError:
				return v, ErrConnectionLost

			case v.StartEnabled:
				res := make(chan startResult, 1)
				if !c.Submit(func(c *Controller) {
					res <- startResult{err: c.StartSearch(), seq: c.seq}
				}) {
					return last, <-runErr
				}
				r := <-res
				var guard *GuardViolation
				if r.err != nil && !errors.As(r.err, &guard) {
					return last, r.err
				}
				started = true
				startSeq = r.seq
			}
		}
	}
}
