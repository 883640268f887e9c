// Package limiter throttles chat sends per (room, user).
package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Strategy decides whether one more hit on key fits in the window
type Strategy interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Manager binds a strategy to a fixed limit and key prefix
type Manager struct {
	strategy Strategy
	limit    int
	window   time.Duration
	prefix   string
}

func NewManager(strategy Strategy, limit int, window time.Duration) *Manager {
	return &Manager{
		strategy: strategy,
		limit:    limit,
		window:   window,
		prefix:   "echonet:ratelimit:send:",
	}
}

// AllowSend records a send by userID in roomKey
func (m *Manager) AllowSend(ctx context.Context, roomKey, userID string) (bool, error) {
	return m.strategy.Allow(ctx, m.prefix+roomKey+":"+userID, m.limit, m.window)
}

// INCR + PEXPIRE on first hit, atomically
var fixedWindowScript = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if current == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	if current > tonumber(ARGV[1]) then
		return 0
	end
	return 1
`)

// RedisFixedWindow counts hits in Redis so every process shares the budget
type RedisFixedWindow struct {
	rdb redis.Scripter
}

func NewRedisFixedWindow(rdb redis.Scripter) *RedisFixedWindow {
	return &RedisFixedWindow{rdb: rdb}
}

func (s *RedisFixedWindow) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	result, err := fixedWindowScript.Run(ctx, s.rdb, []string{key}, limit, window.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// LocalSlidingWindow keeps a log of recent hits per key in process
type LocalSlidingWindow struct {
	mu      sync.Mutex
	history map[string][]time.Time
	now     func() time.Time
}

func NewLocalSlidingWindow() *LocalSlidingWindow {
	return &LocalSlidingWindow{
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

func (s *LocalSlidingWindow) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	windowStart := now.Add(-window)

	attempts := s.history[key]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= limit {
		s.history[key] = fresh
		return false, nil
	}

	s.history[key] = append(fresh, now)
	return true, nil
}

// Prune drops keys with no hits inside window
func (s *LocalSlidingWindow) Prune(window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-window)
	n := 0
	for key, hits := range s.history {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(s.history, key)
			n++
		}
	}
	return n
}
