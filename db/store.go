package db

import (
	"context"
	"errors"
	"time"

	"stop-trivia/models"
)

var (
	// ErrNotFound is returned by Update when the document does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrExists is returned by Create when the key is already taken.
	ErrExists = errors.New("session already exists")
)

// Fields is a partial document keyed by bson field name. Only the listed
// fields are replaced by an update.
type Fields map[string]interface{}

// Change is the write a ReadModifyWrite callback asks for. The zero
// value writes nothing.
type Change struct {
	Set    Fields
	Delete bool
}

// Empty reports whether the change would not touch the store.
func (c Change) Empty() bool {
	return !c.Delete && len(c.Set) == 0
}

// Listener receives every pushed version of a document. A nil delivery
// means the document is gone or the subscription can no longer follow
// it; either way the subscriber has lost the session.
type Listener func(*models.Session)

// Store is the shared session store all participants write to. Every
// write bumps the document version.
type Store interface {
	Create(ctx context.Context, id string, session *models.Session) error
	// Read returns nil, nil when the session does not exist.
	Read(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, id string, fields Fields) error
	// Delete is a no-op for a missing session.
	Delete(ctx context.Context, id string) error
	// Subscribe pushes the current document right away and then every
	// change, in version order. The returned func stops delivery without
	// waiting for it, so it may be called from inside the listener. A
	// delivery already under way when it is called can still reach the
	// listener; listeners must ignore calls after they unsubscribe.
	Subscribe(ctx context.Context, id string, fn Listener) (func(), error)
	// ReadModifyWrite runs fn against the current document (nil if
	// absent) and applies its Change atomically. fn may run more than
	// once and must not have side effects.
	ReadModifyWrite(ctx context.Context, id string, fn func(*models.Session) (Change, error)) error
	// DeleteExpired removes sessions created before cutoffMs.
	DeleteExpired(ctx context.Context, cutoffMs int64) (int64, error)
}

// ServerClock is implemented by stores that can report their own time,
// used to estimate how far the local clock is off.
type ServerClock interface {
	ServerTime(ctx context.Context) (time.Time, error)
}
