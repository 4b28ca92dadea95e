package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"stop-trivia/models"
)

// newTestMongoStore connects to STOP_TEST_MONGODB_URI, which must be a
// replica set, and hands out a throwaway database.
func newTestMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("STOP_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("STOP_TEST_MONGODB_URI not set")
	}

	ctx := context.Background()
	database := "stop_test_" + time.Now().Format("20060102150405")
	client, err := Connect(ctx, Options{URI: uri, Database: database, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Database(database).Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	store := NewMongoStore(client, database)
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("indexes: %v", err)
	}
	return store
}

func TestMongoStoreRoundTrip(t *testing.T) {
	m := newTestMongoStore(t)
	ctx := context.Background()

	if err := m.Create(ctx, "123456", newSession("123456", "host")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Create(ctx, "123456", newSession("123456", "host")); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	err := m.ReadModifyWrite(ctx, "123456", func(s *models.Session) (Change, error) {
		s.Players = append(s.Players, models.Player{ID: "bob", Name: "Bob"})
		return Change{Set: Fields{"players": s.Players, "gameStatus": models.StatusInProgress}}, nil
	})
	if err != nil {
		t.Fatalf("rmw: %v", err)
	}

	s, err := m.Read(ctx, "123456")
	if err != nil || s == nil {
		t.Fatalf("read: %v, %v", s, err)
	}
	if len(s.Players) != 2 || s.GameStatus != models.StatusInProgress || s.Version != 2 {
		t.Fatalf("unexpected document: %+v", s)
	}

	if err := m.Update(ctx, "000000", Fields{"round": 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	n, err := m.DeleteExpired(ctx, s.Timestamp+1)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 expired, got %d, %v", n, err)
	}
}

func TestMongoStoreSubscribe(t *testing.T) {
	m := newTestMongoStore(t)
	ctx := context.Background()
	_ = m.Create(ctx, "654321", newSession("654321", "host"))

	var rec recorder
	unsubscribe, err := m.Subscribe(ctx, "654321", rec.listen)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	_ = m.Update(ctx, "654321", Fields{"round": 1})
	_ = m.Delete(ctx, "654321")

	docs := rec.waitLen(t, 3)
	if docs[0].Version != 1 || docs[1].Version != 2 || docs[2] != nil {
		t.Fatalf("unexpected pushes: %+v", docs)
	}
}

func TestMongoStoreServerTime(t *testing.T) {
	m := newTestMongoStore(t)
	got, err := m.ServerTime(context.Background())
	if err != nil {
		t.Fatalf("server time: %v", err)
	}
	if d := time.Since(got); d > time.Minute || d < -time.Minute {
		t.Fatalf("expected server time near now, got %s", got)
	}
}

func TestStreamEnds(t *testing.T) {
	tests := []struct {
		op   string
		want bool
	}{
		{"insert", false},
		{"update", false},
		{"replace", false},
		{"delete", false},
		{"drop", true},
		{"rename", true},
		{"dropDatabase", true},
		{"invalidate", true},
	}
	for _, tt := range tests {
		if got := streamEnds(tt.op); got != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.op, tt.want, got)
		}
	}
}

func TestMongoStoreSubscribeEndsWhenCollectionDropped(t *testing.T) {
	m := newTestMongoStore(t)
	ctx := context.Background()
	_ = m.Create(ctx, "777777", newSession("777777", "host"))

	var rec recorder
	unsubscribe, err := m.Subscribe(ctx, "777777", rec.listen)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()
	rec.waitLen(t, 1)

	if err := m.coll.Drop(ctx); err != nil {
		t.Fatalf("drop: %v", err)
	}
	docs := rec.waitLen(t, 2)
	if docs[len(docs)-1] != nil {
		t.Fatalf("expected a final nil push, got %+v", docs[len(docs)-1])
	}

	time.Sleep(50 * time.Millisecond)
	if n := len(rec.snapshot()); n != len(docs) {
		t.Fatalf("expected nothing after the final push, got %d more", n-len(docs))
	}
}
