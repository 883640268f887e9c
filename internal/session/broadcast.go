package session

import (
	"fmt"

	"github.com/rx3lixir/echonet/internal/event"
	"github.com/rx3lixir/echonet/internal/presence"
	"github.com/rx3lixir/echonet/internal/room"
)

// fanOut never blocks: a connection that cannot take the event loses it
func (c *Coordinator) fanOut(conns []presence.Conn, e *event.Event, skip presence.Conn) int {
	sent := 0
	for _, conn := range conns {
		if skip != nil && conn.ID() == skip.ID() {
			continue
		}
		if err := conn.Send(e); err != nil {
			c.log.Warn("dropping event for connection",
				"conn_id", conn.ID(),
				"event", e.Type,
				"error", err)
			continue
		}
		sent++
	}
	return sent
}

func (c *Coordinator) broadcast(roomKey string, e *event.Event) int {
	return c.fanOut(c.registry.ConnectionsInRoom(roomKey), e, nil)
}

func (c *Coordinator) broadcastExcept(roomKey string, skip presence.Conn, e *event.Event) int {
	return c.fanOut(c.registry.ConnectionsInRoom(roomKey), e, skip)
}

// AnnounceTimer tells everyone in the room about a new deadline
func (c *Coordinator) AnnounceTimer(r *room.Room, minutes int) {
	n := c.broadcast(r.AccessKey, event.TimerUpdated(
		r.ExpiresAt,
		minutes,
		fmt.Sprintf("Room timer extended by %d minutes", minutes),
	))
	c.log.Debug("timer update broadcast", "room_key", r.AccessKey, "recipients", n)
}

// AnnounceDeleted notifies every connection, the deleter's included,
// then forgets the room's presence. Transports stay open.
func (c *Coordinator) AnnounceDeleted(roomKey string) {
	conns := c.registry.RemoveRoom(roomKey)
	n := c.fanOut(conns, event.RoomDeleted(roomKey), nil)
	c.log.Info("room deletion broadcast", "room_key", roomKey, "recipients", n)
}

func (c *Coordinator) announceExpired(roomKey string) {
	c.reaper.CancelRoom(roomKey)
	conns := c.registry.RemoveRoom(roomKey)
	n := c.fanOut(conns, event.RoomExpired(roomKey), nil)
	c.log.Info("room expired", "room_key", roomKey, "recipients", n)
}
