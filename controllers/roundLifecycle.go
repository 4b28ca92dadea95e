package controllers

import (
	"stop-trivia/db"
	"stop-trivia/models"
)

var errRoundRunning = newError(CodeStaleWrite, "round already in progress")

// CanStart applies the ready-gate: a round starts from CREATED or
// STOPPED with at least two players, all of them ready.
func CanStart(s *models.Session) error {
	if s.GameStatus == models.StatusInProgress {
		return errRoundRunning
	}
	if len(s.Players) < models.MinPlayers {
		return ErrTooFewPlayers
	}
	if s.PlayersReady != len(s.Players) {
		return ErrNotAllReady
	}
	return nil
}

// DrawLetter picks one of the 26 letters; intn must return a uniform
// value in [0, n).
func DrawLetter(intn func(n int) int) string {
	i := intn(len(models.Letters))
	return models.Letters[i : i+1]
}

// StartRound moves s into IN_PROGRESS with a freshly drawn letter and
// the host's start stamp.
func StartRound(s *models.Session, letter string, nowMs int64) {
	s.GameStatus = models.StatusInProgress
	s.CurrentLetter = letter
	s.StartTime = nowMs
	s.Round++
}

// StopRound ends round if it is still the one in progress. The ready
// counter goes back to 1, the host.
func StopRound(s *models.Session, round int) bool {
	if s.GameStatus != models.StatusInProgress || s.Round != round {
		return false
	}
	s.GameStatus = models.StatusStopped
	s.PlayersReady = 1
	return true
}

func startChange(s *models.Session, letter string, nowMs int64) (db.Change, error) {
	if s == nil {
		return db.Change{}, ErrSessionNotFound
	}
	if err := CanStart(s); err != nil {
		return db.Change{}, err
	}
	StartRound(s, letter, nowMs)
	return db.Change{Set: db.Fields{
		"gameStatus":    s.GameStatus,
		"currentLetter": s.CurrentLetter,
		"startTime":     s.StartTime,
		"round":         s.Round,
	}}, nil
}

func stopChange(s *models.Session, round int) (db.Change, error) {
	if s == nil {
		return db.Change{}, ErrSessionNotFound
	}
	if !StopRound(s, round) {
		return db.Change{}, ErrStaleWrite
	}
	return db.Change{Set: db.Fields{
		"gameStatus":   s.GameStatus,
		"playersReady": s.PlayersReady,
	}}, nil
}
