package storage

import (
	"context"
	"sync"
)

// MemoryUserStorage keeps user records in a process-wide map. A single mutex
// guards the collection; concurrent mutating calls serialize on it.
type MemoryUserStorage struct {
	mu    sync.Mutex
	users map[string]*User
}

func NewMemoryUserStorage() *MemoryUserStorage {
	return &MemoryUserStorage{users: make(map[string]*User)}
}

func (s *MemoryUserStorage) Create(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryUserStorage) GetByID(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

// GetByEmail is a linear scan, exact case-sensitive match, first hit wins.
func (s *MemoryUserStorage) GetByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, nil
}

// MemoryLinkStorage keeps link records in a map plus an insertion-order
// index so ListByOwner preserves creation order.
type MemoryLinkStorage struct {
	mu    sync.Mutex
	links map[string]*LinkRecord
	order []string
}

func NewMemoryLinkStorage() *MemoryLinkStorage {
	return &MemoryLinkStorage{links: make(map[string]*LinkRecord)}
}

func (s *MemoryLinkStorage) Create(ctx context.Context, link *LinkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.ShortCode] = link.Clone()
	s.order = append(s.order, link.ShortCode)
	return nil
}

func (s *MemoryLinkStorage) GetByCode(ctx context.Context, code string) (*LinkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links[code].Clone(), nil
}

func (s *MemoryLinkStorage) Update(ctx context.Context, link *LinkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[link.ShortCode]; !ok {
		return nil
	}
	s.links[link.ShortCode] = link.Clone()
	return nil
}

func (s *MemoryLinkStorage) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, code)
	for i, c := range s.order {
		if c == code {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryLinkStorage) ListByOwner(ctx context.Context, ownerID string) ([]*LinkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := []*LinkRecord{}
	for _, code := range s.order {
		if link, ok := s.links[code]; ok && link.OwnerID == ownerID {
			result = append(result, link.Clone())
		}
	}
	return result, nil
}

func (s *MemoryLinkStorage) AppendVisit(ctx context.Context, code string, visit Visit, unique bool) (*LinkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[code]
	if !ok {
		return nil, nil
	}
	link.VisitCount++
	if unique {
		link.UniqueVisitorCount++
	}
	link.Visits = append(link.Visits, visit)
	return link.Clone(), nil
}
