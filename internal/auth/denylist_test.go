package auth

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

func TestMemoryDenylist(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	d := NewMemoryDenylist()
	d.now = func() time.Time { return now }

	revoked, err := d.Revoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, d.Revoke(ctx, "a", now.Add(time.Hour)))
	require.NoError(t, d.Revoke(ctx, "dead", now.Add(-time.Second)))
	assert.Equal(t, 1, d.Len(), "already expired tokens are not stored")

	revoked, err = d.Revoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Hour)
	revoked, err = d.Revoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked, "entry lapses with the token")
	assert.Equal(t, 0, d.Len())
}

// Runs against a real server when REDIS_ADDR is set
func TestRedisDenylist(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	d := NewRedisDenylist(rdb)
	id := uuid.NewString()

	revoked, err := d.Revoked(ctx, id)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, d.Revoke(ctx, id, time.Now().Add(time.Minute)))
	revoked, err = d.Revoked(ctx, id)
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl, err := rdb.PTTL(ctx, revokedPrefix+id).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}
