package room

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps rooms in process. Used by tests and the "memory"
// database driver.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	// Fail, when set, is returned by every call
	Fail error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*Room)}
}

func (s *MemoryStore) Create(ctx context.Context, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return s.Fail
	}
	if _, ok := s.rooms[room.AccessKey]; ok {
		return ErrKeyExists
	}
	if room.Participants == nil {
		room.Participants = []Participant{}
	}
	s.rooms[room.AccessKey] = room.Clone()
	return nil
}

func (s *MemoryStore) FindByKey(ctx context.Context, key string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Fail != nil {
		return nil, s.Fail
	}
	r, ok := s.rooms[key]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return s.Fail
	}
	if _, ok := s.rooms[room.AccessKey]; !ok {
		return ErrNotFound
	}
	s.rooms[room.AccessKey] = room.Clone()
	return nil
}

func (s *MemoryStore) DeleteByKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return s.Fail
	}
	if _, ok := s.rooms[key]; !ok {
		return ErrNotFound
	}
	delete(s.rooms, key)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Fail != nil {
		return false, s.Fail
	}
	_, ok := s.rooms[key]
	return ok, nil
}

func (s *MemoryStore) FindByCreator(ctx context.Context, userID string) ([]*Room, error) {
	return s.filter(func(r *Room) bool {
		return r.IsActive && r.Creator == userID
	}, func(a, b *Room) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func (s *MemoryStore) FindByParticipant(ctx context.Context, userID string, excludingCreator bool) ([]*Room, error) {
	return s.filter(func(r *Room) bool {
		if !r.IsActive || !r.IsParticipant(userID) {
			return false
		}
		return !excludingCreator || r.Creator != userID
	}, func(a, b *Room) bool {
		return a.UpdatedAt.After(b.UpdatedAt)
	})
}

func (s *MemoryStore) FindExpired(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Fail != nil {
		return nil, s.Fail
	}

	keys := []string{}
	for key, r := range s.rooms {
		if r.IsActive && r.Expired(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len is the number of stored rooms, active or not
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

func (s *MemoryStore) filter(keep func(*Room) bool, less func(a, b *Room) bool) ([]*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Fail != nil {
		return nil, s.Fail
	}

	out := []*Room{}
	for _, r := range s.rooms {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}
