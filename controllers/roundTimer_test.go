package controllers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stop-trivia/models"

	"github.com/jonboulle/clockwork"
)

func TestRemaining(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  int64
		duration int
		want     int
	}{
		{"at start", 0, 120, 120},
		{"part of a second", 999, 120, 120},
		{"one second", 1000, 120, 119},
		{"over", 121000, 120, 0},
		{"clock behind the host", -5000, 120, 120},
		{"just behind", -1, 120, 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Remaining(10_000, 10_000+tt.elapsed, tt.duration); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestNextTickDelay(t *testing.T) {
	if got := nextTickDelay(0, 250); got != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", got)
	}
	if got := nextTickDelay(0, 2000); got != time.Second {
		t.Fatalf("expected 1s on a boundary, got %s", got)
	}
	if got := nextTickDelay(1000, 400); got != 600*time.Millisecond {
		t.Fatalf("expected 600ms before the start, got %s", got)
	}
}

type timerEvents struct {
	countdown []int
	letter    string
	ticks     []int
	expired   int
}

type timerLog struct {
	mu sync.Mutex
	ev timerEvents
}

func (l *timerLog) hooks() RoundHooks {
	return RoundHooks{
		Countdown: func(_ *RoundTimer, n int) {
			l.mu.Lock()
			l.ev.countdown = append(l.ev.countdown, n)
			l.mu.Unlock()
		},
		Started: func(_ *RoundTimer, letter string) {
			l.mu.Lock()
			l.ev.letter = letter
			l.mu.Unlock()
		},
		Tick: func(_ *RoundTimer, remaining int) {
			l.mu.Lock()
			l.ev.ticks = append(l.ev.ticks, remaining)
			l.mu.Unlock()
		},
		Expired: func(*RoundTimer) {
			l.mu.Lock()
			l.ev.expired++
			l.mu.Unlock()
		},
	}
}

func (l *timerLog) snapshot() timerEvents {
	l.mu.Lock()
	defer l.mu.Unlock()
	return timerEvents{
		countdown: append([]int(nil), l.ev.countdown...),
		letter:    l.ev.letter,
		ticks:     append([]int(nil), l.ev.ticks...),
		expired:   l.ev.expired,
	}
}

func runningSession(startMs int64, duration int) *models.Session {
	s := lobby("host", "bob")
	s.PlayersReady = 2
	s.CurrentTime = duration
	StartRound(s, "M", startMs)
	return s
}

func TestRoundTimerCountsDownAndExpiresOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_000_000))
	var log timerLog
	timer := NewRoundTimer(context.Background(), clock, nil, runningSession(1_000_000, 10), log.hooks())
	timer.Start()
	armed(t, clock, 1)

	step(t, clock, 3, 1)
	got := log.snapshot()
	if len(got.countdown) != 3 || got.countdown[0] != 3 || got.countdown[2] != 1 {
		t.Fatalf("expected countdown [3 2 1], got %v", got.countdown)
	}
	if got.letter != "M" {
		t.Fatalf("expected letter M, got %q", got.letter)
	}
	if len(got.ticks) != 1 || got.ticks[0] != 7 {
		t.Fatalf("expected first tick at 7, got %v", got.ticks)
	}

	step(t, clock, 6, 1)
	clock.Advance(time.Second)
	waitFor(t, "expiry", func() bool { return log.snapshot().expired > 0 })

	// Nothing is armed after expiry, so more time changes nothing.
	clock.Advance(time.Minute)
	got = log.snapshot()
	for i := 1; i < len(got.ticks); i++ {
		if got.ticks[i] > got.ticks[i-1] {
			t.Fatalf("expected non-increasing ticks, got %v", got.ticks)
		}
	}
	if last := got.ticks[len(got.ticks)-1]; last != 0 || len(got.ticks) != 8 {
		t.Fatalf("expected 8 ticks ending at 0, got %v", got.ticks)
	}
	if got.expired != 1 {
		t.Fatalf("expected one expiry, got %d", got.expired)
	}
}

func TestRoundTimerLateJoinerSeesElapsedTime(t *testing.T) {
	// The round started 50s before this client saw it.
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_050_000))
	var log timerLog
	timer := NewRoundTimer(context.Background(), clock, nil, runningSession(1_000_000, 120), log.hooks())
	timer.Start()
	armed(t, clock, 1)

	step(t, clock, 3, 1)
	if got := log.snapshot().ticks; len(got) != 1 || got[0] != 67 {
		t.Fatalf("expected 67s left, got %v", got)
	}
	if timer.Remaining() != 67 {
		t.Fatalf("expected Remaining 67, got %d", timer.Remaining())
	}
}

func TestRoundTimerNeverGoesUp(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_000_000))
	var offset atomic.Int64
	now := func() time.Time { return clock.Now().Add(time.Duration(offset.Load())) }

	var log timerLog
	timer := NewRoundTimer(context.Background(), clock, now, runningSession(1_000_000, 60), log.hooks())
	timer.Start()
	armed(t, clock, 1)
	step(t, clock, 10, 1)

	before := timer.Remaining()
	offset.Store(int64(-30 * time.Second))
	step(t, clock, 1, 1)
	if got := timer.Remaining(); got > before {
		t.Fatalf("expected remaining to stay at most %d after the clock stepped back, got %d", before, got)
	}
}

func TestRoundTimerStop(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_000_000))
	var log timerLog
	timer := NewRoundTimer(context.Background(), clock, nil, runningSession(1_000_000, 10), log.hooks())
	timer.Start()
	armed(t, clock, 1)
	step(t, clock, 4, 1)

	timer.Stop()
	timer.Stop()
	armed(t, clock, 0)
	ticks := len(log.snapshot().ticks)
	clock.Advance(time.Minute)

	if got := log.snapshot(); len(got.ticks) != ticks || got.expired != 0 {
		t.Fatalf("expected no callbacks after Stop, got %d more ticks and %d expiries", len(got.ticks)-ticks, got.expired)
	}
}

func TestRoundTimerStopsWithContext(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_000_000))
	ctx, cancel := context.WithCancel(context.Background())
	var log timerLog
	timer := NewRoundTimer(ctx, clock, nil, runningSession(1_000_000, 10), log.hooks())
	timer.Start()
	armed(t, clock, 1)

	cancel()
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
	}
	time.Sleep(20 * time.Millisecond)
	if got := log.snapshot(); got.letter != "" || got.expired != 0 || len(got.countdown) != 1 {
		t.Fatalf("expected nothing after cancel, got %+v", got)
	}
}
