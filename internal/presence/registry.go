// Package presence tracks live connections per room. State lives only
// for the life of the process: after a restart every room shows zero
// presence until its clients reconnect.
package presence

import (
	"sync"

	"github.com/rx3lixir/echonet/internal/event"
)

// Conn is one live transport connection. A user may hold many.
type Conn interface {
	ID() string
	Send(e *event.Event) error
}

type Registry interface {
	Register(roomKey, userID string, conn Conn)
	// Unregister removes conn and reports which user it belonged to
	Unregister(roomKey string, conn Conn) (userID string, ok bool)
	HasOtherLiveConnections(roomKey, userID string, excluding Conn) bool
	ConnectionsInRoom(roomKey string) []Conn
	// RemoveRoom drops the room entry and returns the connections it held
	RemoveRoom(roomKey string) []Conn
	UserOf(roomKey string, conn Conn) (string, bool)
}

type entry struct {
	conn   Conn
	userID string
}

type MemoryRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]entry // room key -> conn id -> entry
}

func NewRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		rooms: make(map[string]map[string]entry),
	}
}

func (r *MemoryRegistry) Register(roomKey, userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.rooms[roomKey]
	if !ok {
		conns = make(map[string]entry)
		r.rooms[roomKey] = conns
	}
	conns[conn.ID()] = entry{conn: conn, userID: userID}
}

func (r *MemoryRegistry) Unregister(roomKey string, conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.rooms[roomKey]
	if !ok {
		return "", false
	}
	e, ok := conns[conn.ID()]
	if !ok {
		return "", false
	}

	delete(conns, conn.ID())
	if len(conns) == 0 {
		delete(r.rooms, roomKey)
	}
	return e.userID, true
}

func (r *MemoryRegistry) HasOtherLiveConnections(roomKey, userID string, excluding Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var skip string
	if excluding != nil {
		skip = excluding.ID()
	}
	for id, e := range r.rooms[roomKey] {
		if e.userID == userID && id != skip {
			return true
		}
	}
	return false
}

func (r *MemoryRegistry) ConnectionsInRoom(roomKey string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.rooms[roomKey]
	out := make([]Conn, 0, len(conns))
	for _, e := range conns {
		out = append(out, e.conn)
	}
	return out
}

func (r *MemoryRegistry) RemoveRoom(roomKey string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.rooms[roomKey]
	delete(r.rooms, roomKey)

	out := make([]Conn, 0, len(conns))
	for _, e := range conns {
		out = append(out, e.conn)
	}
	return out
}

func (r *MemoryRegistry) UserOf(roomKey string, conn Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rooms[roomKey][conn.ID()]
	return e.userID, ok
}

// Rooms returns the keys that currently have at least one connection
func (r *MemoryRegistry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rooms))
	for k := range r.rooms {
		out = append(out, k)
	}
	return out
}
