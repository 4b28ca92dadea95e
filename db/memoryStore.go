package db

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"stop-trivia/models"
)

// MemoryStore keeps sessions in process. It follows the MongoDB store's
// semantics exactly, partial updates included, so it backs tests and
// single-node deployments.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]*models.Session
	subs map[string]map[*subscription]struct{}

	// Now is reported by ServerTime; defaults to time.Now.
	Now func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*models.Session),
		subs: make(map[string]map[*subscription]struct{}),
	}
}

func (m *MemoryStore) Create(ctx context.Context, id string, session *models.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[id]; ok {
		return ErrExists
	}
	doc := session.Clone()
	doc.GameID = id
	doc.Version = 1
	m.docs[id] = doc
	m.notifyLocked(id, doc)
	return nil
}

func (m *MemoryStore) Read(ctx context.Context, id string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id].Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	return m.setLocked(id, doc, fields)
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(id)
	return nil
}

func (m *MemoryStore) ReadModifyWrite(ctx context.Context, id string, fn func(*models.Session) (Change, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := m.docs[id]
	change, err := fn(doc.Clone())
	if err != nil {
		return err
	}
	if change.Empty() {
		return nil
	}
	if change.Delete {
		m.deleteLocked(id)
		return nil
	}
	if doc == nil {
		return ErrNotFound
	}
	return m.setLocked(id, doc, change.Set)
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, cutoffMs int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, doc := range m.docs {
		if doc.Timestamp < cutoffMs {
			m.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ServerTime(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if m.Now != nil {
		return m.Now(), nil
	}
	return time.Now(), nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, id string, fn Listener) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &subscription{
		fn:   fn,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}

	m.mu.Lock()
	if m.subs[id] == nil {
		m.subs[id] = make(map[*subscription]struct{})
	}
	m.subs[id][sub] = struct{}{}
	sub.push(m.docs[id].Clone())
	m.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			sub.stopped.Store(true)
			m.mu.Lock()
			delete(m.subs[id], sub)
			if len(m.subs[id]) == 0 {
				delete(m.subs, id)
			}
			m.mu.Unlock()
			close(sub.stop)
		})
	}

	go sub.run()
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.stop:
		}
	}()
	return unsubscribe, nil
}

func (m *MemoryStore) setLocked(id string, doc *models.Session, fields Fields) error {
	merged, err := mergeFields(doc, fields)
	if err != nil {
		return err
	}
	merged.GameID = id
	merged.Version = doc.Version + 1
	m.docs[id] = merged
	m.notifyLocked(id, merged)
	return nil
}

func (m *MemoryStore) deleteLocked(id string) {
	if _, ok := m.docs[id]; !ok {
		return
	}
	delete(m.docs, id)
	m.notifyLocked(id, nil)
}

func (m *MemoryStore) notifyLocked(id string, doc *models.Session) {
	for sub := range m.subs[id] {
		sub.push(doc.Clone())
	}
}

// mergeFields applies a partial update the way MongoDB's $set does, by
// going through the document's bson form.
func mergeFields(doc *models.Session, fields Fields) (*models.Session, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	for k, v := range fields {
		if k == "_id" || k == "version" {
			return nil, fmt.Errorf("field %q cannot be set", k)
		}
		m[k] = v
	}
	raw, err = bson.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	var out models.Session
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode merged session: %w", err)
	}
	return &out, nil
}

// subscription delivers pushes in order on its own goroutine so a slow
// listener never blocks writers.
type subscription struct {
	fn      Listener
	mu      sync.Mutex
	queue   []*models.Session
	wake    chan struct{}
	stop    chan struct{}
	stopped atomic.Bool
}

func (s *subscription) push(doc *models.Session) {
	s.mu.Lock()
	s.queue = append(s.queue, doc)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			doc := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			if s.stopped.Load() {
				return
			}
			s.fn(doc)
		}
	}
}
