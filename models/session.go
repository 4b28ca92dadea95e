package models

import (
	"fmt"
	"strings"
)

const (
	// MaxPlayers is the roster cap of a session.
	MaxPlayers = 4

	// MinPlayers is the smallest roster a round can start with.
	MinPlayers = 2

	// NoLetter marks a session whose first letter has not been drawn.
	NoLetter = "-"

	// Letters is the alphabet rounds draw from.
	Letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// DefaultRoundSeconds is the round duration offered by the lobby.
	DefaultRoundSeconds = 300

	// SessionCollection is the collection name used by every store.
	SessionCollection = "stop"
)

// GameStatus is the round lifecycle state stored on the session document.
type GameStatus int

const (
	StatusCreated GameStatus = iota
	StatusInProgress
	StatusStopped
)

func (s GameStatus) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("GameStatus(%d)", int(s))
	}
}

// MarshalText keeps the JSON form readable; bson still stores the integer.
func (s GameStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *GameStatus) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "CREATED":
		*s = StatusCreated
	case "IN_PROGRESS":
		*s = StatusInProgress
	case "STOPPED":
		*s = StatusStopped
	default:
		return fmt.Errorf("unknown game status %q", text)
	}
	return nil
}

// StopInputs is one player's word sheet for the current round.
type StopInputs struct {
	Name       string `json:"name" bson:"name"`
	Country    string `json:"country" bson:"country"`
	Animal     string `json:"animal" bson:"animal"`
	Food       string `json:"food" bson:"food"`
	Object     string `json:"object" bson:"object"`
	LastName   string `json:"lastName" bson:"lastName"`
	Color      string `json:"color" bson:"color"`
	Artist     string `json:"artist" bson:"artist"`
	Fruit      string `json:"fruit" bson:"fruit"`
	Profession string `json:"profession" bson:"profession"`
}

// Player is a roster entry embedded in the session document.
type Player struct {
	ID       string      `json:"id" bson:"id"`
	Name     string      `json:"name" bson:"name"`
	Points   int         `json:"points" bson:"points"`
	PhotoURL string      `json:"photoURL,omitempty" bson:"photoURL,omitempty"`
	Inputs   *StopInputs `json:"inputs,omitempty" bson:"inputs,omitempty"`
}

// Session is the shared document every participant reads and writes.
type Session struct {
	GameID        string     `json:"gameId" bson:"_id"`
	Round         int        `json:"round" bson:"round"`
	CurrentLetter string     `json:"currentLetter" bson:"currentLetter"`
	CurrentTime   int        `json:"currentTime" bson:"currentTime"` // round duration in seconds
	GameStatus    GameStatus `json:"gameStatus" bson:"gameStatus"`
	PlayersReady  int        `json:"playersReady" bson:"playersReady"`
	Players       []Player   `json:"players" bson:"players"`
	Host          string     `json:"host" bson:"host"`
	StartTime     int64      `json:"startTime" bson:"startTime"` // epoch ms
	Timestamp     int64      `json:"timestamp" bson:"timestamp"` // epoch ms, creation
	Version       int64      `json:"version" bson:"version"`
}

// NewSession builds the document a creator writes: one player who is
// also the host, nothing drawn yet.
func NewSession(gameID string, host Player, durationSeconds int, nowMs int64) *Session {
	host.Points = 0
	return &Session{
		GameID:        gameID,
		Round:         0,
		CurrentLetter: NoLetter,
		CurrentTime:   durationSeconds,
		GameStatus:    StatusCreated,
		PlayersReady:  1,
		Players:       []Player{host},
		Host:          host.ID,
		StartTime:     0,
		Timestamp:     nowMs,
	}
}

// PlayerIndex returns the roster position of id, or -1.
func (s *Session) PlayerIndex(id string) int {
	for i, p := range s.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// HasPlayer reports whether id is on the roster.
func (s *Session) HasPlayer(id string) bool {
	return s.PlayerIndex(id) >= 0
}

// Clone returns a deep copy so pushed documents never share roster memory.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		if p.Inputs != nil {
			in := *p.Inputs
			p.Inputs = &in
		}
		out.Players[i] = p
	}
	return &out
}
