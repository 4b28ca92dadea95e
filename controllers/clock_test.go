package controllers

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// waitFor polls cond until it holds; store pushes and timer callbacks
// arrive on their own goroutines.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// armed waits until n callbacks are scheduled on the fake clock.
func armed(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("expected %d armed timers: %v", n, err)
	}
}

// step moves the clock one second at a time and waits for n timers to be
// armed again after each second. clockwork runs AfterFunc callbacks on
// their own goroutines, and a round timer arms its next tick only after
// its hooks return.
func step(t *testing.T, clock *clockwork.FakeClock, seconds, n int) {
	t.Helper()
	for i := 0; i < seconds; i++ {
		clock.Advance(time.Second)
		armed(t, clock, n)
	}
}
