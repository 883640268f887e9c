package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rx3lixir/echonet/internal/auth"
	"github.com/rx3lixir/echonet/internal/event"
	"github.com/rx3lixir/echonet/internal/message"
	"github.com/rx3lixir/echonet/internal/presence"
	"github.com/rx3lixir/echonet/internal/room"
	"github.com/rx3lixir/echonet/internal/user"
	"github.com/rx3lixir/echonet/pkg/logger"
	"github.com/stretchr/testify/require"
)

var connSeq atomic.Int64

// recordingConn captures everything the coordinator sends it
type recordingConn struct {
	id string

	mu     sync.Mutex
	events []*event.Event
	fail   error
}

func newConn() *recordingConn {
	return &recordingConn{id: fmt.Sprintf("conn-%d", connSeq.Add(1))}
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(e *event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.events = append(c.events, e)
	return nil
}

func (c *recordingConn) of(t event.Type) []*event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*event.Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (c *recordingConn) count(t event.Type) int { return len(c.of(t)) }

func (c *recordingConn) last(t event.Type) *event.Event {
	evs := c.of(t)
	if len(evs) == 0 {
		return nil
	}
	return evs[len(evs)-1]
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// saveFailingStore fails Save calls while failing is set. It counts
// successful saves and runs beforeSave, when set, ahead of each one.
type saveFailingStore struct {
	*room.MemoryStore
	failing    atomic.Bool
	saves      atomic.Int64
	beforeSave atomic.Pointer[func()]
}

func (s *saveFailingStore) Save(ctx context.Context, r *room.Room) error {
	if fn := s.beforeSave.Load(); fn != nil {
		(*fn)()
	}
	if s.failing.Load() {
		return errors.New("connection refused")
	}
	if err := s.MemoryStore.Save(ctx, r); err != nil {
		return err
	}
	s.saves.Add(1)
	return nil
}

type fixture struct {
	c        *Coordinator
	rooms    *saveFailingStore
	messages *message.MemoryStore
	registry *presence.MemoryRegistry
	reaper   *presence.Reaper
	users    *user.MemoryStore
	clock    *testClock
}

const testGrace = 40 * time.Millisecond

func newFixture(t *testing.T, opts ...func(*Deps, *Config)) *fixture {
	t.Helper()

	clock := &testClock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	rooms := &saveFailingStore{MemoryStore: room.NewMemoryStore()}
	messages := message.NewMemoryStore(24 * time.Hour)
	messages.SetClock(clock.Now)
	registry := presence.NewRegistry()
	reaper := presence.NewReaper()
	users := user.NewMemoryStore()

	deps := Deps{
		Rooms:    rooms,
		Messages: messages,
		Registry: registry,
		Reaper:   reaper,
		Users:    users,
		Log:      logger.Nop(),
		Now:      clock.Now,
	}
	cfg := Config{
		GracePeriod:  testGrace,
		HistoryLimit: 50,
		XPPerMessage: 1,
		MessageTTL:   24 * time.Hour,
	}
	for _, o := range opts {
		o(&deps, &cfg)
	}

	c := NewCoordinator(deps, cfg)
	t.Cleanup(c.Shutdown)

	return &fixture{
		c:        c,
		rooms:    rooms,
		messages: messages,
		registry: registry,
		reaper:   reaper,
		users:    users,
		clock:    clock,
	}
}

// account stores a user record so stats have somewhere to land
func (f *fixture) account(t *testing.T, id auth.Identity) {
	t.Helper()
	require.NoError(t, f.users.Create(context.Background(), &user.User{
		ID:       id.UserID,
		Username: id.Username,
		IsGuest:  id.Guest,
	}))
}

func (f *fixture) profile(t *testing.T, id auth.Identity) *user.User {
	t.Helper()
	u, err := f.users.FindByID(context.Background(), id.UserID)
	require.NoError(t, err)
	return u
}

func boolPtr(b bool) *bool { return &b }

func member(name string) auth.Identity {
	return auth.Identity{UserID: "user_" + name, Username: name}
}

func guest(name string) auth.Identity {
	return auth.Identity{UserID: "guest_" + name, Username: name, Guest: true}
}

func (f *fixture) createRoom(t *testing.T, creator auth.Identity, req room.CreateRoomRequest) *room.Room {
	t.Helper()
	if req.Name == "" {
		req.Name = "test room"
	}
	r, err := f.c.CreateRoom(context.Background(), creator, req)
	require.NoError(t, err)
	return r
}

func (f *fixture) join(t *testing.T, key string, id auth.Identity) *recordingConn {
	t.Helper()
	conn := newConn()
	require.NoError(t, f.c.Join(context.Background(), key, id, conn))
	return conn
}

func (f *fixture) stored(t *testing.T, key string) *room.Room {
	t.Helper()
	r, err := f.rooms.FindByKey(context.Background(), key)
	require.NoError(t, err)
	return r
}
