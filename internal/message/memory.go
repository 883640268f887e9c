package message

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]*Message // room key -> append order
	ttl      time.Duration
	now      func() time.Time

	// Fail, when set, is returned by every call
	Fail error
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		messages: make(map[string][]*Message),
		ttl:      ttl,
		now:      time.Now,
	}
}

// SetClock replaces the time source used for timestamps and TTL checks
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) live(m *Message) bool {
	return m.CreatedAt.After(s.now().Add(-s.ttl))
}

func (s *MemoryStore) Append(ctx context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return s.Fail
	}

	m.ID = uuid.New()
	m.CreatedAt = s.now().UTC()
	if m.Type == "" {
		m.Type = TypeText
	}
	if m.Reactions == nil {
		m.Reactions = []Reaction{}
	}

	c := *m
	s.messages[m.RoomKey] = append(s.messages[m.RoomKey], &c)
	return nil
}

func (s *MemoryStore) FindByRoom(ctx context.Context, roomKey string, limit int, order Order) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Fail != nil {
		return nil, s.Fail
	}

	all := s.messages[roomKey]
	out := []*Message{}
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if s.live(all[i]) {
			c := *all[i]
			out = append(out, &c)
		}
	}

	if order == OldestFirst {
		slices.Reverse(out)
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context, roomKey string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Fail != nil {
		return 0, s.Fail
	}

	n := 0
	for _, m := range s.messages[roomKey] {
		if s.live(m) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) LastByRoom(ctx context.Context, roomKey string) (*Message, error) {
	msgs, err := s.FindByRoom(ctx, roomKey, 1, NewestFirst)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return msgs[0], nil
}

func (s *MemoryStore) DeleteByRoom(ctx context.Context, roomKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return 0, s.Fail
	}

	n := int64(len(s.messages[roomKey]))
	delete(s.messages, roomKey)
	return n, nil
}

func (s *MemoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return 0, s.Fail
	}

	var n int64
	for key, msgs := range s.messages {
		kept := msgs[:0]
		for _, m := range msgs {
			if m.CreatedAt.After(cutoff) {
				kept = append(kept, m)
			} else {
				n++
			}
		}
		if len(kept) == 0 {
			delete(s.messages, key)
		} else {
			s.messages[key] = kept
		}
	}
	return n, nil
}
