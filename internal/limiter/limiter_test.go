package limiter

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSlidingWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewLocalSlidingWindow()
	s.now = func() time.Time { return now }

	m := NewManager(s, 5, time.Second)

	for i := 0; i < 5; i++ {
		ok, err := m.AllowSend(ctx, "ROOM", "u1")
		require.NoError(t, err)
		assert.True(t, ok, "send %d", i)
	}

	ok, err := m.AllowSend(ctx, "ROOM", "u1")
	require.NoError(t, err)
	assert.False(t, ok, "sixth send inside the window")

	ok, _ = m.AllowSend(ctx, "ROOM", "u2")
	assert.True(t, ok, "budgets are per user")
	ok, _ = m.AllowSend(ctx, "OTHER", "u1")
	assert.True(t, ok, "budgets are per room")

	now = now.Add(1001 * time.Millisecond)
	ok, _ = m.AllowSend(ctx, "ROOM", "u1")
	assert.True(t, ok, "window slid past old hits")
}

func TestLocalPrune(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewLocalSlidingWindow()
	s.now = func() time.Time { return now }

	_, _ = s.Allow(context.Background(), "a", 1, time.Second)
	now = now.Add(2 * time.Second)
	_, _ = s.Allow(context.Background(), "b", 1, time.Second)

	assert.Equal(t, 1, s.Prune(time.Second))
}

// Runs against a real server when REDIS_ADDR is set
func TestRedisFixedWindow(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	s := NewRedisFixedWindow(rdb)
	key := "test:" + uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, err := s.Allow(ctx, key, 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := s.Allow(ctx, key, 3, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := rdb.PTTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
