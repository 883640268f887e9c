package user

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps users in process
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (s *MemoryStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !u.IsGuest {
		for _, other := range s.users {
			if !other.IsGuest && other.Username == u.Username {
				return ErrUsernameTaken
			}
		}
	}

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.UpdatedAt = u.CreatedAt
	u.LastActive = u.CreatedAt

	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) find(match func(*User) bool) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *User
	for _, u := range s.users {
		if match(u) && (found == nil || u.LastActive.After(found.LastActive)) {
			found = u
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.find(func(u *User) bool { return u.ID == id })
}

func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.find(func(u *User) bool { return !u.IsGuest && u.Username == username })
}

func (s *MemoryStore) FindGuestByFingerprint(ctx context.Context, fingerprint string) (*User, error) {
	return s.find(func(u *User) bool { return u.IsGuest && u.Fingerprint == fingerprint })
}

func (s *MemoryStore) Touch(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastActive = at
	u.UpdatedAt = at
	return nil
}

func (s *MemoryStore) AddStats(ctx context.Context, id string, d StatsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.RoomsCreated += d.RoomsCreated
	u.RoomsJoined += d.RoomsJoined
	u.TotalXP += d.XP
	u.UpdatedAt = time.Now()
	return nil
}
