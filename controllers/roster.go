package controllers

import (
	"stop-trivia/db"
	"stop-trivia/models"
)

// AddPlayer appends p unless a player with the same id is already on the
// roster. It returns the roster length.
func AddPlayer(s *models.Session, p models.Player) int {
	if !s.HasPlayer(p.ID) {
		p.Points = 0
		s.Players = append(s.Players, p)
	}
	return len(s.Players)
}

// RemovePlayer drops id from the roster and keeps the ready-gate within
// the new roster size. wasReady says whether the leaver had readied up
// for the coming round. It reports whether anything was removed.
func RemovePlayer(s *models.Session, id string, wasReady bool) bool {
	idx := s.PlayerIndex(id)
	if idx < 0 {
		return false
	}
	players := make([]models.Player, 0, len(s.Players)-1)
	players = append(players, s.Players[:idx]...)
	players = append(players, s.Players[idx+1:]...)
	s.Players = players

	ready := s.PlayersReady
	if wasReady {
		ready--
	}
	s.PlayersReady = clampReady(ready, len(players))
	return true
}

// MarkReady counts one more participant as ready. The count never passes
// the roster size.
func MarkReady(s *models.Session) bool {
	if s.PlayersReady >= len(s.Players) {
		return false
	}
	s.PlayersReady++
	return true
}

// clampReady keeps the counter in [1, players]; the host is always
// counted.
func clampReady(ready, players int) int {
	if ready > players {
		ready = players
	}
	if ready < 1 {
		ready = 1
	}
	return ready
}

func joinChange(s *models.Session, p models.Player) (db.Change, error) {
	if s == nil {
		return db.Change{}, ErrSessionNotFound
	}
	if s.HasPlayer(p.ID) {
		return db.Change{}, nil
	}
	if len(s.Players) >= models.MaxPlayers {
		return db.Change{}, ErrSessionFull
	}
	if s.GameStatus == models.StatusInProgress {
		return db.Change{}, ErrSessionAlreadyStarted
	}
	AddPlayer(s, p)
	return db.Change{Set: db.Fields{"players": s.Players}}, nil
}

// leaveChange removes id, deleting the session when nobody would be left.
func leaveChange(s *models.Session, id string, wasReady bool) (db.Change, error) {
	if s == nil || !s.HasPlayer(id) {
		return db.Change{}, nil
	}
	if len(s.Players) <= 1 {
		return db.Change{Delete: true}, nil
	}
	RemovePlayer(s, id, wasReady)
	return db.Change{Set: db.Fields{
		"players":      s.Players,
		"playersReady": s.PlayersReady,
	}}, nil
}

func readyChange(s *models.Session, id string) (db.Change, error) {
	if s == nil {
		return db.Change{}, ErrSessionNotFound
	}
	if !s.HasPlayer(id) || s.GameStatus == models.StatusInProgress {
		return db.Change{}, ErrStaleWrite
	}
	if !MarkReady(s) {
		return db.Change{}, nil
	}
	return db.Change{Set: db.Fields{"playersReady": s.PlayersReady}}, nil
}
