// Package delay implements the cancellable wait primitive the endpoints are
// built on: a timed wait that aborts at its suspension point the moment the
// request context is cancelled, plus a deliberately degraded polling variant
// kept for comparison.
package delay

import (
	"context"
	"time"

	"github.com/smartpcr/pass-cancel/internal/errors"
)

// PollStep is the sleep granularity of WaitPolling.
const PollStep = time.Second

// Wait blocks for d, or returns early when ctx is cancelled. Cancellation is
// observed at the suspension point itself, not polled: the wait unwinds
// within a scheduler tick of ctx firing. The returned error is classified
// through the outcome taxonomy (cancelled or timeout), never a raw context
// error.
func Wait(ctx context.Context, d time.Duration) error {
	if d < 0 {
		return errors.NewValidationError("delay duration must be non-negative")
	}
	if err := ctx.Err(); err != nil {
		return errors.FromContext(err)
	}
	if d == 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return errors.FromContext(ctx.Err())
	}
}

// WaitPolling blocks for d by sleeping in PollStep increments, consulting
// cancelled only between steps. The sleeps themselves are not cancellation
// aware, so a cancellation can go unnoticed for up to a full step. This is
// the inferior pattern the no-cancellation endpoint variant demonstrates;
// Wait is the one to use everywhere else.
func WaitPolling(d time.Duration, cancelled func() bool) error {
	if d < 0 {
		return errors.NewValidationError("delay duration must be non-negative")
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	for remaining := d; remaining > 0; remaining -= PollStep {
		if cancelled() {
			return errors.NewCancelledError("wait aborted between steps", nil)
		}
		step := PollStep
		if remaining < step {
			step = remaining
		}
		time.Sleep(step)
	}

	if cancelled() {
		return errors.NewCancelledError("wait aborted between steps", nil)
	}
	return nil
}
