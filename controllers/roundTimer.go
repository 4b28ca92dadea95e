package controllers

import (
	"context"
	"sync"
	"time"

	"stop-trivia/models"

	"github.com/jonboulle/clockwork"
)

// RoundHooks receive the timer's output. They are called without any
// timer lock held, possibly after Stop raced with a pending tick, so
// receivers must check the timer is still theirs. The next tick is armed
// only after the hooks return.
type RoundHooks struct {
	// Countdown shows the pre-round countdown: 3, 2, 1.
	Countdown func(t *RoundTimer, n int)
	// Started fires when the countdown is over and the letter is shown.
	Started func(t *RoundTimer, letter string)
	// Tick reports the seconds left in the round.
	Tick func(t *RoundTimer, remaining int)
	// Expired fires once, when the remaining time reaches zero.
	Expired func(t *RoundTimer)
}

// RoundTimer is one client's local view of a round in progress. Time left
// is recomputed on every tick from the host's start stamp, so late pushes
// and drifting intervals do not accumulate error.
type RoundTimer struct {
	clock    clockwork.Clock
	now      func() time.Time
	hooks    RoundHooks
	round    int
	letter   string
	startMs  int64
	duration int

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	timer     clockwork.Timer
	remaining int
	expired   bool
}

// NewRoundTimer prepares timers for the round s is in. now may carry a
// clock offset and is never called with the timer's lock held.
func NewRoundTimer(ctx context.Context, clock clockwork.Clock, now func() time.Time, s *models.Session, hooks RoundHooks) *RoundTimer {
	ctx, cancel := context.WithCancel(ctx)
	if now == nil {
		now = clock.Now
	}
	return &RoundTimer{
		clock:     clock,
		now:       now,
		hooks:     hooks,
		round:     s.Round,
		letter:    s.CurrentLetter,
		startMs:   s.StartTime,
		duration:  s.CurrentTime,
		ctx:       ctx,
		cancel:    cancel,
		remaining: s.CurrentTime,
	}
}

// Round is the round number the timer was armed for.
func (t *RoundTimer) Round() int {
	return t.round
}

// Remaining is the last computed time left, in seconds.
func (t *RoundTimer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Start runs the countdown and then the round timer.
func (t *RoundTimer) Start() {
	t.countdown(models.CountdownTicks)
}

// Stop cancels any pending tick. It is safe to call more than once.
func (t *RoundTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// schedule arms f unless the timer was stopped in the meantime.
func (t *RoundTimer) schedule(d time.Duration, f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx.Err() != nil {
		return
	}
	t.timer = t.clock.AfterFunc(d, f)
}

func (t *RoundTimer) countdown(n int) {
	if t.ctx.Err() != nil {
		return
	}
	if n > 0 {
		if t.hooks.Countdown != nil {
			t.hooks.Countdown(t, n)
		}
		t.schedule(time.Second, func() { t.countdown(n - 1) })
		return
	}
	if t.hooks.Started != nil {
		t.hooks.Started(t, t.letter)
	}
	t.tick()
}

func (t *RoundTimer) tick() {
	nowMs := t.now().UnixMilli()
	t.mu.Lock()
	if t.ctx.Err() != nil || t.expired {
		t.mu.Unlock()
		return
	}
	remaining := Remaining(t.startMs, nowMs, t.duration)
	if remaining > t.remaining {
		// The local clock stepped back; time left never grows.
		remaining = t.remaining
	}
	t.remaining = remaining
	expired := remaining == 0
	if expired {
		t.expired = true
		t.timer = nil
	}
	t.mu.Unlock()

	if t.hooks.Tick != nil {
		t.hooks.Tick(t, remaining)
	}
	if expired {
		if t.hooks.Expired != nil {
			t.hooks.Expired(t)
		}
		return
	}
	t.schedule(nextTickDelay(t.startMs, nowMs), t.tick)
}

// Remaining computes the seconds left in a round of duration seconds
// that started at startMs, clamped to [0, duration].
func Remaining(startMs, nowMs int64, duration int) int {
	elapsed := floorDiv(nowMs-startMs, 1000)
	remaining := int64(duration) - elapsed
	if remaining < 0 {
		return 0
	}
	if remaining > int64(duration) {
		return duration
	}
	return int(remaining)
}

// nextTickDelay lines ticks up with whole seconds since the start stamp,
// which is when Remaining changes value.
func nextTickDelay(startMs, nowMs int64) time.Duration {
	into := (nowMs - startMs) % 1000
	if into < 0 {
		into += 1000
	}
	return time.Duration(1000-into) * time.Millisecond
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
