package controllers

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"stop-trivia/db"
	"stop-trivia/models"

	"github.com/jonboulle/clockwork"
)

// createAttempts bounds retries when a fresh code is already taken.
const createAttempts = 3

// writeTimeout bounds store writes issued by timers rather than callers.
const writeTimeout = 10 * time.Second

// SessionConfig describes the participant a Controller acts for.
type SessionConfig struct {
	Store  db.Store
	Player models.Player
	// Clock defaults to the wall clock.
	Clock clockwork.Clock
	// Intn draws letters; defaults to math/rand/v2.
	Intn func(n int) int
	// SyncClock estimates the offset to the store's clock on open.
	SyncClock bool
}

// Controller is one participant's handle on one session: it owns the
// subscription, the local round timer and the derived view. All writes
// go through the store's read-modify-write so concurrent participants
// never overwrite each other's roster changes.
type Controller struct {
	store     db.Store
	player    models.Player
	clock     clockwork.Clock
	intn      func(n int) int
	syncClock bool
	id        string

	ctx    context.Context
	cancel context.CancelFunc
	hub    *models.Hub
	done   chan struct{}
	first  chan struct{}

	// cmd serialises this participant's own commands.
	cmd sync.Mutex

	mu          sync.Mutex
	offset      time.Duration
	latest      *models.Session
	readyFor    int
	timer       *RoundTimer
	armedRound  int
	countdown   string
	letter      string
	timeLeft    int
	starting    bool
	points      int
	pointsSeen  bool
	view        models.ViewState
	closed      bool
	ended       bool
	unsubscribe func()
	observers   map[int]func(*models.Session)
	nextObs     int
	finishOnce  sync.Once
	firstOnce   sync.Once
}

func newController(ctx context.Context, cfg SessionConfig) (*Controller, error) {
	if cfg.Store == nil || cfg.Player.ID == "" {
		return nil, newError(CodeInvalidArgument, "store and player id are required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	intn := cfg.Intn
	if intn == nil {
		intn = rand.IntN
	}
	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Controller{
		store:     cfg.Store,
		player:    cfg.Player,
		clock:     clock,
		intn:      intn,
		syncClock: cfg.SyncClock,
		ctx:       lifetime,
		cancel:    cancel,
		hub:       models.NewHub(),
		done:      make(chan struct{}),
		first:     make(chan struct{}),
		countdown: strconv.Itoa(models.CountdownTicks),
		letter:    models.NoLetter,
		observers: make(map[int]func(*models.Session)),
	}, nil
}

// CreateSession writes a new session with the caller as host and sole
// player, then subscribes to it. An unconfirmed write means the session
// does not exist.
func CreateSession(ctx context.Context, cfg SessionConfig, durationSeconds int) (*Controller, error) {
	if durationSeconds <= 0 {
		return nil, newError(CodeInvalidArgument, "round duration must be positive")
	}
	c, err := newController(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.calibrate(ctx)

	for attempt := 0; attempt < createAttempts; attempt++ {
		id := GenerateSessionCode()
		s := models.NewSession(id, c.player, durationSeconds, c.now().UnixMilli())
		err = c.store.Create(ctx, id, s)
		if errors.Is(err, db.ErrExists) {
			continue
		}
		if err == nil {
			c.id = id
		}
		break
	}
	if err != nil {
		c.finish()
		return nil, storeError("create session", err)
	}

	if err := c.open(ctx); err != nil {
		if delErr := c.store.Delete(ctx, c.id); delErr != nil {
			c.logf("failed to delete unobserved session: %v", delErr)
		}
		return nil, err
	}
	c.logf("created session (%ds rounds)", durationSeconds)
	return c, nil
}

// JoinSession adds the caller to an existing session and subscribes to
// it. Joining a session the caller is already on is a no-op write.
func JoinSession(ctx context.Context, cfg SessionConfig, code string) (*Controller, error) {
	id, err := NormalizeSessionCode(code)
	if err != nil {
		return nil, err
	}
	c, err := newController(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.id = id

	s, err := c.store.Read(ctx, id)
	if err != nil {
		c.finish()
		return nil, storeError("read session", err)
	}
	if s == nil {
		c.finish()
		return nil, ErrSessionNotFound
	}
	if !s.HasPlayer(c.player.ID) {
		if len(s.Players) >= models.MaxPlayers {
			c.finish()
			return nil, ErrSessionFull
		}
		if s.GameStatus == models.StatusInProgress {
			c.finish()
			return nil, ErrSessionAlreadyStarted
		}
	}
	c.calibrate(ctx)

	// added is set by the attempt that committed; fn may be retried.
	var added bool
	err = c.store.ReadModifyWrite(ctx, id, func(cur *models.Session) (db.Change, error) {
		ch, err := joinChange(cur, c.player)
		added = err == nil && !ch.Empty()
		return ch, err
	})
	if err != nil {
		c.finish()
		return nil, storeError("join session", err)
	}

	if err := c.open(ctx); err != nil {
		if added {
			c.undoJoin(ctx)
		}
		return nil, err
	}
	c.logf("joined session")
	return c, nil
}

// undoJoin takes back the roster entry of a join that never got a
// subscription, so the ready gate is not left waiting on it.
func (c *Controller) undoJoin(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	err := c.store.ReadModifyWrite(ctx, c.id, func(cur *models.Session) (db.Change, error) {
		return leaveChange(cur, c.player.ID, false)
	})
	if err != nil {
		c.logf("failed to undo join: %v", err)
	}
}

func (c *Controller) open(ctx context.Context) error {
	go c.hub.Run(c.ctx)

	unsubscribe, err := c.store.Subscribe(c.ctx, c.id, c.onPush)
	if err != nil {
		c.finish()
		return storeError("subscribe to session", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
	} else {
		c.unsubscribe = unsubscribe
		c.mu.Unlock()
	}

	// The store pushes the current document right away; wait for it so
	// the view is populated when the caller gets the handle.
	select {
	case <-c.first:
	case <-ctx.Done():
		c.Detach()
		return storeError("subscribe to session", ctx.Err())
	}

	c.mu.Lock()
	ended := c.ended
	c.mu.Unlock()
	if ended {
		return ErrSessionNotFound
	}
	return nil
}

// calibrate estimates the offset between the local clock and the
// store's, halving the round trip as the network latency.
func (c *Controller) calibrate(ctx context.Context) {
	if !c.syncClock {
		return
	}
	sc, ok := c.store.(db.ServerClock)
	if !ok {
		return
	}
	t0 := c.clock.Now()
	server, err := sc.ServerTime(ctx)
	if err != nil {
		c.logf("clock sync skipped: %v", err)
		return
	}
	t1 := c.clock.Now()
	latency := t1.Sub(t0) / 2
	offset := server.Sub(t1.Add(-latency))

	c.mu.Lock()
	c.offset = offset
	c.mu.Unlock()
	c.logf("clock offset %s", offset)
}

func (c *Controller) now() time.Time {
	c.mu.Lock()
	offset := c.offset
	c.mu.Unlock()
	return c.clock.Now().Add(offset)
}

// ID is the session code.
func (c *Controller) ID() string {
	return c.id
}

// Player is the participant this controller acts for.
func (c *Controller) Player() models.Player {
	return c.player
}

// Hub carries this participant's view updates to its sockets.
func (c *Controller) Hub() *models.Hub {
	return c.hub
}

// Done is closed once the handle is released, whichever way.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Offset is the estimated store clock offset.
func (c *Controller) Offset() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Snapshot returns the last pushed document, nil before the first push
// or after deletion.
func (c *Controller) Snapshot() *models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return nil
	}
	return c.latest.Clone()
}

// View returns the current derived view state.
func (c *Controller) View() models.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.view
	v.Players = append([]models.Player(nil), c.view.Players...)
	return v
}

// Observe registers fn for every pushed document version, including the
// final nil when the session is deleted. The returned func unregisters.
func (c *Controller) Observe(fn func(*models.Session)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.nextObs
	c.nextObs++
	c.observers[key] = fn
	return func() {
		c.mu.Lock()
		delete(c.observers, key)
		c.mu.Unlock()
	}
}

func (c *Controller) observersLocked() []func(*models.Session) {
	fns := make([]func(*models.Session), 0, len(c.observers))
	for i := 0; i < c.nextObs; i++ {
		if fn, ok := c.observers[i]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

// onPush runs for every document version the subscription delivers.
func (c *Controller) onPush(doc *models.Session) {
	defer c.firstOnce.Do(func() { close(c.first) })

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if doc == nil {
		c.ended = true
		c.shutdownLocked()
		observers := c.observersLocked()
		c.publishLocked(models.EventSessionClosed)
		c.mu.Unlock()

		c.logf("session closed")
		for _, fn := range observers {
			fn(nil)
		}
		c.finish()
		return
	}

	if c.latest != nil && doc.Version < c.latest.Version {
		c.mu.Unlock()
		return
	}
	first := c.latest == nil
	c.latest = doc
	if first {
		c.timeLeft = doc.CurrentTime
	}
	if !c.pointsSeen {
		if idx := doc.PlayerIndex(c.player.ID); idx >= 0 {
			c.points = doc.Players[idx].Points
			c.pointsSeen = true
		}
	}

	var arm *RoundTimer
	switch doc.GameStatus {
	case models.StatusInProgress:
		// Later pushes within the same round must not restart it.
		if c.armedRound != doc.Round {
			arm = c.armLocked(doc)
		}
	case models.StatusStopped, models.StatusCreated:
		c.stopTimerLocked()
		c.countdown = strconv.Itoa(models.CountdownTicks)
		c.starting = false
	}
	c.refreshViewLocked()
	c.publishLocked(models.EventView)
	observers := c.observersLocked()
	c.mu.Unlock()

	if arm != nil {
		arm.Start()
	}
	for _, fn := range observers {
		fn(doc.Clone())
	}
}

func (c *Controller) armLocked(doc *models.Session) *RoundTimer {
	c.stopTimerLocked()
	c.timeLeft = doc.CurrentTime
	c.starting = true
	t := NewRoundTimer(c.ctx, c.clock, c.now, doc, RoundHooks{
		Countdown: c.onCountdown,
		Started:   c.onRoundStarted,
		Tick:      c.onTick,
		Expired:   c.onExpired,
	})
	c.timer = t
	c.armedRound = doc.Round
	return t
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// ownsLocked reports whether t is still this controller's live timer.
func (c *Controller) ownsLocked(t *RoundTimer) bool {
	return !c.closed && c.timer == t
}

func (c *Controller) onCountdown(t *RoundTimer, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ownsLocked(t) {
		return
	}
	c.countdown = strconv.Itoa(n)
	c.refreshViewLocked()
	c.publishLocked(models.EventView)
}

func (c *Controller) onRoundStarted(t *RoundTimer, letter string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ownsLocked(t) {
		return
	}
	c.countdown = letter
	c.letter = letter
	c.starting = false
	c.refreshViewLocked()
	c.publishLocked(models.EventView)
}

func (c *Controller) onTick(t *RoundTimer, remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ownsLocked(t) {
		return
	}
	c.timeLeft = remaining
	c.refreshViewLocked()
	c.publishLocked(models.EventView)
}

// onExpired stops the round this client timed. Every client races to do
// it; the conditional write makes all but the first a no-op.
func (c *Controller) onExpired(t *RoundTimer) {
	c.mu.Lock()
	owns := c.ownsLocked(t)
	c.mu.Unlock()
	if !owns {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	err := c.store.ReadModifyWrite(ctx, c.id, func(cur *models.Session) (db.Change, error) {
		return stopChange(cur, t.Round())
	})
	switch {
	case err == nil:
		c.logf("round %d timed out", t.Round())
	case errors.Is(err, ErrStaleWrite), errors.Is(err, ErrSessionNotFound):
	default:
		c.logf("failed to stop round %d: %v", t.Round(), err)
	}
}

func (c *Controller) readyLocked() bool {
	s := c.latest
	if s == nil || s.GameStatus == models.StatusInProgress {
		return false
	}
	if s.Host == c.player.ID {
		return true
	}
	return c.readyFor == s.Round+1
}

func (c *Controller) refreshViewLocked() {
	v := models.ViewState{
		GameID:    c.id,
		Title:     models.TitleWaiting,
		Countdown: c.countdown,
		TimeLeft:  c.timeLeft,
		Letter:    c.letter,
		Round:     1,
		Points:    c.points,
		Closed:    c.closed,
	}
	if s := c.latest; s != nil && !c.ended {
		v.Title = models.TitleFor(s.GameStatus)
		v.Round = models.DisplayRound(s.Round)
		v.Players = append([]models.Player(nil), s.Players...)
		v.GameStatus = s.GameStatus
		v.Host = s.Host
		v.IsHost = s.Host == c.player.ID
		v.Ready = c.readyLocked()
		v.Editable = s.GameStatus == models.StatusInProgress && !c.starting
		v.Scoring = s.GameStatus == models.StatusStopped
	}
	c.view = v
}

func (c *Controller) publishLocked(event string) {
	c.hub.Publish(models.WSMessage{Event: event, Data: c.view})
}

// shutdownLocked stops every local side effect: the subscription and the
// timers. It does not write to the store.
func (c *Controller) shutdownLocked() {
	c.closed = true
	c.stopTimerLocked()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.refreshViewLocked()
}

func (c *Controller) finish() {
	c.finishOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
}

// MarkReady counts this participant as ready for the next round, once.
// The host is always counted and readying is a no-op for it.
func (c *Controller) MarkReady(ctx context.Context) error {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	s := c.latest
	if s == nil {
		c.mu.Unlock()
		return ErrStaleWrite
	}
	if s.GameStatus == models.StatusInProgress {
		c.mu.Unlock()
		return ErrStaleWrite
	}
	if c.readyLocked() {
		c.mu.Unlock()
		return nil
	}
	round := s.Round
	c.mu.Unlock()

	err := c.store.ReadModifyWrite(ctx, c.id, func(cur *models.Session) (db.Change, error) {
		if cur != nil && cur.Round != round {
			return db.Change{}, ErrStaleWrite
		}
		return readyChange(cur, c.player.ID)
	})
	if err != nil {
		return storeError("mark ready", err)
	}

	c.mu.Lock()
	c.readyFor = round + 1
	c.refreshViewLocked()
	c.publishLocked(models.EventView)
	c.mu.Unlock()
	return nil
}

// StartRound draws a letter and starts the next round. Only the host can;
// for anyone else it is a no-op and reports false. The ready-gate is
// checked locally first and again against the stored document.
func (c *Controller) StartRound(ctx context.Context) (bool, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrSessionClosed
	}
	s := c.latest
	if s == nil || s.Host != c.player.ID {
		c.mu.Unlock()
		c.logf("start ignored: not the host")
		return false, nil
	}
	if err := CanStart(s); err != nil {
		c.mu.Unlock()
		return false, err
	}
	c.mu.Unlock()

	letter := DrawLetter(c.intn)
	nowMs := c.now().UnixMilli()
	err := c.store.ReadModifyWrite(ctx, c.id, func(cur *models.Session) (db.Change, error) {
		return startChange(cur, letter, nowMs)
	})
	if err != nil {
		return false, storeError("start round", err)
	}
	c.logf("started round with letter %s", letter)
	return true, nil
}

// StopRound ends the round in progress for everyone. Stopping a round
// that already ended is a no-op.
func (c *Controller) StopRound(ctx context.Context) error {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	s := c.latest
	if s == nil || s.GameStatus != models.StatusInProgress {
		c.mu.Unlock()
		return nil
	}
	round := s.Round
	c.stopTimerLocked()
	c.mu.Unlock()

	err := c.store.ReadModifyWrite(ctx, c.id, func(cur *models.Session) (db.Change, error) {
		return stopChange(cur, round)
	})
	if errors.Is(err, ErrStaleWrite) {
		return nil
	}
	return storeError("stop round", err)
}

// SubmitPoints adds delta to this participant's shared score. The local
// total moves even if the store write fails; that failure is logged and
// not reported.
func (c *Controller) SubmitPoints(ctx context.Context, delta int) error {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	c.points += delta
	if c.points < 0 {
		c.points = 0
	}
	c.refreshViewLocked()
	c.publishLocked(models.EventView)
	c.mu.Unlock()

	err := c.store.ReadModifyWrite(ctx, c.id, func(cur *models.Session) (db.Change, error) {
		return pointsChange(cur, c.player.ID, delta)
	})
	if err = storeError("submit points", err); err != nil {
		if CodeOf(err) == CodeStoreUnavailable {
			c.logf("points kept locally: %v", err)
			return nil
		}
		return err
	}
	return nil
}

// SubmitInputs stores this participant's word sheet for the round in
// progress.
func (c *Controller) SubmitInputs(ctx context.Context, inputs models.StopInputs) error {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	err := c.store.ReadModifyWrite(ctx, c.id, func(cur *models.Session) (db.Change, error) {
		return inputsChange(cur, c.player.ID, inputs)
	})
	return storeError("submit inputs", err)
}

// Leave is the explicit exit. It is refused while a round is running so
// the exit cannot race the round timer. Leaving twice is a no-op.
func (c *Controller) Leave(ctx context.Context) error {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if s := c.latest; s != nil && s.GameStatus == models.StatusInProgress {
		c.mu.Unlock()
		return ErrRoundInProgress
	}
	c.mu.Unlock()
	return c.exit(ctx)
}

// Close is the exit taken when the screen goes away: it always tears the
// handle down, in progress or not, then writes the same exit as Leave.
func (c *Controller) Close(ctx context.Context) error {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil
	}
	return c.exit(ctx)
}

// Detach releases local resources without touching the shared document,
// as a crash would. The participant can rejoin later.
func (c *Controller) Detach() {
	c.mu.Lock()
	if !c.closed {
		c.shutdownLocked()
		c.publishLocked(models.EventSessionClosed)
	}
	c.mu.Unlock()
	c.finish()
}

// exit tears down local state before issuing the exit write, so nothing
// local can fire afterwards. The host, or whoever is last, deletes the
// session; anyone else removes themselves.
func (c *Controller) exit(ctx context.Context) error {
	c.mu.Lock()
	wasReady := c.readyLocked()
	s := c.latest
	ended := c.ended
	c.shutdownLocked()
	c.publishLocked(models.EventSessionClosed)
	c.mu.Unlock()
	c.finish()

	if ended {
		return nil
	}

	var err error
	if s != nil && s.Host == c.player.ID {
		err = c.store.Delete(ctx, c.id)
	} else {
		err = c.store.ReadModifyWrite(ctx, c.id, func(cur *models.Session) (db.Change, error) {
			return leaveChange(cur, c.player.ID, wasReady)
		})
	}
	if err != nil {
		return storeError("leave session", err)
	}
	c.logf("left session")
	return nil
}

func (c *Controller) logf(format string, args ...interface{}) {
	log.Printf("session %s player %s: "+format, append([]interface{}{c.id, c.player.ID}, args...)...)
}
