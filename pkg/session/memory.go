package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in a mutex-guarded map. Expired sessions are
// dropped lazily on lookup.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*Session
}

// NewMemoryStore returns a store whose sessions expire after ttl. A ttl of
// zero disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Create(ctx context.Context, userID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	if s.ttl != 0 {
		sess.ExpiresAt = sess.CreatedAt.Add(s.ttl)
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
		delete(s.sessions, id)
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// MemoryVisitorMarkers keeps per-code visitor markers in a map.
type MemoryVisitorMarkers struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryVisitorMarkers() *MemoryVisitorMarkers {
	return &MemoryVisitorMarkers{seen: make(map[string]struct{})}
}

func (m *MemoryVisitorMarkers) FirstVisit(ctx context.Context, code, token string) (bool, error) {
	key := code + ":" + token
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = struct{}{}
	return true, nil
}
