package timer

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
)

// Sleep blocks for d on the given clock. Returns ctx.Err() if the context is cancelled first.
func Sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	t := clk.Timer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ backoff.Timer = (*BackoffTimer)(nil)

// BackoffTimer drives backoff retries from a clock.Clock, so tests can advance retry pauses with a mock clock.
type BackoffTimer struct {
	clk   clock.Clock
	timer *clock.Timer
}

func NewBackoffTimer(clk clock.Clock) *BackoffTimer {
	return &BackoffTimer{clk: clk}
}

// Start arms a fresh timer for every pause, so each pause is visible to the clock.
func (t *BackoffTimer) Start(d time.Duration) {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.clk.Timer(d)
}

func (t *BackoffTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *BackoffTimer) C() <-chan time.Time {
	return t.timer.C
}
