package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/echonet/internal/auth"
	"github.com/rx3lixir/echonet/internal/event"
	"github.com/rx3lixir/echonet/internal/message"
	"github.com/rx3lixir/echonet/internal/presence"
	"github.com/rx3lixir/echonet/internal/room"
	"github.com/rx3lixir/echonet/internal/session"
	"github.com/rx3lixir/echonet/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte)}
}

func (m *memObjects) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	if m.failPut != nil {
		return m.failPut
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = b
	return nil
}

func (m *memObjects) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			delete(m.objects, name)
			n++
		}
	}
	return n, nil
}

func (m *memObjects) PresignedURL(ctx context.Context, name string, expiry time.Duration) (string, error) {
	return "https://objects.test/" + name + "?X-Amz-Expires=" + expiry.String(), nil
}

func (m *memObjects) get(name string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[name]
}

func (m *memObjects) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type nopConn struct{ id string }

func (c nopConn) ID() string              { return c.id }
func (c nopConn) Send(*event.Event) error { return nil }

var (
	alice = auth.Identity{UserID: "user_alice", Username: "alice"}
	bob   = auth.Identity{UserID: "user_bob", Username: "bob"}
)

func setup(t *testing.T) (*session.Coordinator, *Exporter, *memObjects, string) {
	t.Helper()

	coord := session.NewCoordinator(session.Deps{
		Rooms:    room.NewMemoryStore(),
		Messages: message.NewMemoryStore(time.Hour),
		Registry: presence.NewRegistry(),
		Log:      logger.Nop(),
	}, session.Config{GracePeriod: time.Second})
	t.Cleanup(coord.Shutdown)

	objects := newMemObjects()
	exp := NewExporter(coord, objects, time.Minute, logger.Nop())
	coord.OnDelete(exp.RemoveRoom)

	ctx := context.Background()
	r, err := coord.CreateRoom(ctx, alice, room.CreateRoomRequest{Name: "standup", TimeLimit: 30})
	require.NoError(t, err)

	require.NoError(t, coord.Join(ctx, r.AccessKey, alice, nopConn{"a"}))
	require.NoError(t, coord.Join(ctx, r.AccessKey, bob, nopConn{"b"}))
	_, err = coord.SendMessage(ctx, r.AccessKey, alice, "morning")
	require.NoError(t, err)
	_, err = coord.SendMessage(ctx, r.AccessKey, bob, "hey")
	require.NoError(t, err)

	return coord, exp, objects, r.AccessKey
}

func TestExportWritesDocument(t *testing.T) {
	_, exp, objects, key := setup(t)

	res, err := exp.Export(context.Background(), key, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.MessageCount)
	assert.True(t, strings.HasPrefix(res.Object, "transcripts/"+key+"/"))
	assert.Contains(t, res.URL, res.Object)

	var doc Document
	require.NoError(t, json.Unmarshal(objects.get(res.Object), &doc))
	assert.Equal(t, "standup", doc.RoomName)
	assert.NotNil(t, doc.ExpiresAt)
	require.Len(t, doc.Messages, 2)
	assert.Equal(t, "morning", doc.Messages[0].Content)
	assert.Equal(t, "bob", doc.Messages[1].Username)
}

func TestExportCreatorOnly(t *testing.T) {
	_, exp, objects, key := setup(t)

	_, err := exp.Export(context.Background(), key, bob.UserID)
	assert.ErrorIs(t, err, room.ErrForbidden)

	_, err = exp.Export(context.Background(), "AAAA-AAAA-AAAA", alice.UserID)
	assert.ErrorIs(t, err, room.ErrNotFound)
	assert.Equal(t, 0, objects.len())
}

func TestExportStoreFailure(t *testing.T) {
	_, exp, objects, key := setup(t)
	objects.failPut = errors.New("connection reset")

	_, err := exp.Export(context.Background(), key, alice.UserID)
	assert.ErrorIs(t, err, room.ErrStoreUnavailable)
}

func TestTranscriptsGoWithTheRoom(t *testing.T) {
	coord, exp, objects, key := setup(t)

	_, err := exp.Export(context.Background(), key, alice.UserID)
	require.NoError(t, err)
	require.Equal(t, 1, objects.len())

	require.NoError(t, coord.DeleteRoom(context.Background(), key, alice.UserID))
	assert.Equal(t, 0, objects.len())
}

func TestHandleExport(t *testing.T) {
	_, exp, _, key := setup(t)

	r := chi.NewRouter()
	r.Route("/rooms", NewHandler(exp, logger.Nop()).RegisterRoutes)

	call := func(id *auth.Identity, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/rooms/"+key+"/transcript", nil)
		if id != nil {
			req = req.WithContext(auth.WithIdentity(req.Context(), *id))
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, call(nil, key).Code)
	assert.Equal(t, http.StatusBadRequest, call(&alice, "bad-key").Code)
	assert.Equal(t, http.StatusForbidden, call(&bob, key).Code)

	rec := call(&alice, strings.ToLower(key))
	require.Equal(t, http.StatusCreated, rec.Code)

	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, key, res.RoomKey)
	assert.Equal(t, 2, res.MessageCount)
}
