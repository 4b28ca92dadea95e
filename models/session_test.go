package models

import (
	"encoding/json"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestNewSession(t *testing.T) {
	s := NewSession("123456", Player{ID: "host", Name: "Ana", Points: 40}, 120, 1000)
	if s.Round != 0 || s.CurrentLetter != NoLetter || s.GameStatus != StatusCreated {
		t.Fatalf("unexpected lifecycle fields: %+v", s)
	}
	if s.PlayersReady != 1 || s.Host != "host" || s.Players[0].Points != 0 {
		t.Fatalf("unexpected roster fields: %+v", s)
	}
	if s.StartTime != 0 || s.Timestamp != 1000 || s.CurrentTime != 120 {
		t.Fatalf("unexpected time fields: %+v", s)
	}
}

func TestGameStatusJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		Status GameStatus `json:"status"`
	}{StatusInProgress})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"status":"IN_PROGRESS"}` {
		t.Fatalf("expected IN_PROGRESS, got %s", raw)
	}

	var out struct {
		Status GameStatus `json:"status"`
	}
	if err := json.Unmarshal([]byte(`{"status":"STOPPED"}`), &out); err != nil || out.Status != StatusStopped {
		t.Fatalf("expected STOPPED, got %v, %v", out.Status, err)
	}
	if err := json.Unmarshal([]byte(`{"status":"PAUSED"}`), &out); err == nil {
		t.Fatalf("expected an error for an unknown status")
	}
}

func TestSessionBSONFieldNames(t *testing.T) {
	s := NewSession("123456", Player{ID: "host", Name: "Ana"}, 60, 1000)
	raw, err := bson.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"_id", "round", "currentLetter", "currentTime", "gameStatus", "playersReady", "players", "host", "startTime", "timestamp", "version"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("expected bson field %q, got %v", key, m)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := NewSession("123456", Player{ID: "host"}, 60, 1000)
	s.Players[0].Inputs = &StopInputs{Name: "Ana"}

	c := s.Clone()
	c.Players[0].Inputs.Name = "changed"
	c.Players = append(c.Players, Player{ID: "bob"})

	if s.Players[0].Inputs.Name != "Ana" || len(s.Players) != 1 {
		t.Fatalf("expected original untouched, got %+v", s)
	}
	var nilSession *Session
	if nilSession.Clone() != nil {
		t.Fatalf("expected nil clone of nil")
	}
}

func TestTitleAndRound(t *testing.T) {
	if TitleFor(StatusCreated) != "Waiting for players" || TitleFor(StatusInProgress) != "Fill in the blanks" || TitleFor(StatusStopped) != "STOP!" {
		t.Fatalf("unexpected titles")
	}
	if DisplayRound(0) != 1 || DisplayRound(3) != 3 {
		t.Fatalf("unexpected displayed rounds")
	}
}
