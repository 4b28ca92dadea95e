package controllers

import (
	"context"
	"log"
	"sync"

	"stop-trivia/db"
	"stop-trivia/models"

	"github.com/jonboulle/clockwork"
)

// Gateway holds the live controllers of every participant served by this
// process, one per session and player.
type Gateway struct {
	Store     db.Store
	Clock     clockwork.Clock
	SyncClock bool
	// Intn draws round letters; nil means math/rand/v2.
	Intn func(n int) int

	mu       sync.Mutex
	sessions map[string]*Controller
}

// NewGateway returns a Gateway writing to store.
func NewGateway(store db.Store, syncClock bool) *Gateway {
	return &Gateway{
		Store:     store,
		Clock:     clockwork.NewRealClock(),
		SyncClock: syncClock,
		sessions:  make(map[string]*Controller),
	}
}

func gatewayKey(sessionID, playerID string) string {
	return sessionID + "/" + playerID
}

func (g *Gateway) config(player models.Player) SessionConfig {
	return SessionConfig{
		Store:     g.Store,
		Player:    player,
		Clock:     g.Clock,
		Intn:      g.Intn,
		SyncClock: g.SyncClock,
	}
}

// Create opens a new session hosted by player.
func (g *Gateway) Create(ctx context.Context, player models.Player, durationSeconds int) (*Controller, error) {
	c, err := CreateSession(ctx, g.config(player), durationSeconds)
	if err != nil {
		return nil, err
	}
	return g.track(c), nil
}

// Join adds player to the session. A player that already holds a live
// controller for it gets that controller back.
func (g *Gateway) Join(ctx context.Context, player models.Player, code string) (*Controller, error) {
	id, err := NormalizeSessionCode(code)
	if err != nil {
		return nil, err
	}
	if c, ok := g.Get(id, player.ID); ok {
		return c, nil
	}
	c, err := JoinSession(ctx, g.config(player), id)
	if err != nil {
		return nil, err
	}
	return g.track(c), nil
}

// Get returns the live controller for a player in a session.
func (g *Gateway) Get(sessionID, playerID string) (*Controller, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.sessions[gatewayKey(sessionID, playerID)]
	return c, ok
}

// Read fetches a session document directly from the store.
func (g *Gateway) Read(ctx context.Context, code string) (*models.Session, error) {
	id, err := NormalizeSessionCode(code)
	if err != nil {
		return nil, err
	}
	s, err := g.Store.Read(ctx, id)
	if err != nil {
		return nil, storeError("read session", err)
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Len is the number of live controllers.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// track registers c, or returns the controller a concurrent join
// registered first.
func (g *Gateway) track(c *Controller) *Controller {
	key := gatewayKey(c.ID(), c.Player().ID)

	g.mu.Lock()
	if old, ok := g.sessions[key]; ok && old != c {
		g.mu.Unlock()
		c.Detach()
		return old
	}
	g.sessions[key] = c
	g.mu.Unlock()

	go func() {
		<-c.Done()
		g.mu.Lock()
		if g.sessions[key] == c {
			delete(g.sessions, key)
		}
		g.mu.Unlock()
	}()
	return c
}

// Shutdown releases every controller without writing to the store, so
// players can rejoin once the process is back.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	live := make([]*Controller, 0, len(g.sessions))
	for _, c := range g.sessions {
		live = append(live, c)
	}
	g.mu.Unlock()

	for _, c := range live {
		c.Detach()
	}
	log.Printf("released %d session handles", len(live))
}
