package controllers

import (
	"stop-trivia/db"
	"stop-trivia/models"
)

// PointOptions are the values the scoring pad offers after a stop.
var PointOptions = []int{25, 50, 75, 100}

// AddPoints adds delta to the player's total, never going below zero.
func AddPoints(s *models.Session, id string, delta int) bool {
	idx := s.PlayerIndex(id)
	if idx < 0 {
		return false
	}
	points := s.Players[idx].Points + delta
	if points < 0 {
		points = 0
	}
	s.Players[idx].Points = points
	return true
}

func pointsChange(s *models.Session, id string, delta int) (db.Change, error) {
	if s == nil {
		return db.Change{}, ErrSessionNotFound
	}
	if !AddPoints(s, id, delta) {
		return db.Change{}, ErrStaleWrite
	}
	return db.Change{Set: db.Fields{"players": s.Players}}, nil
}

func inputsChange(s *models.Session, id string, inputs models.StopInputs) (db.Change, error) {
	if s == nil {
		return db.Change{}, ErrSessionNotFound
	}
	idx := s.PlayerIndex(id)
	if idx < 0 || s.GameStatus != models.StatusInProgress {
		return db.Change{}, ErrStaleWrite
	}
	s.Players[idx].Inputs = &inputs
	return db.Change{Set: db.Fields{"players": s.Players}}, nil
}
