package websocket

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rx3lixir/echonet/internal/auth"
	"github.com/rx3lixir/echonet/internal/event"
	"github.com/rx3lixir/echonet/internal/message"
	"github.com/rx3lixir/echonet/internal/presence"
	"github.com/rx3lixir/echonet/internal/room"
)

// Sessions is the part of the session engine a connection drives
type Sessions interface {
	Join(ctx context.Context, roomKey string, id auth.Identity, conn presence.Conn) error
	Leave(ctx context.Context, roomKey string, conn presence.Conn) error
	Disconnect(roomKey string, conn presence.Conn)
	SendMessage(ctx context.Context, roomKey string, id auth.Identity, content string) (*message.Message, error)
	Typing(roomKey string, id auth.Identity, conn presence.Conn, isTyping bool)

	ExtendTimer(ctx context.Context, roomKey, userID string, minutes int) (*room.Room, error)
	AnnounceTimer(r *room.Room, minutes int)
	DeleteRoom(ctx context.Context, roomKey, userID string) error
	AnnounceDeleted(roomKey string)
}

// dispatch routes one client frame. Failures go back to this
// connection only as an error event.
func (c *Client) dispatch(ctx context.Context, raw []byte) {
	msg, err := event.Decode(raw)
	if err != nil {
		c.reply(event.NewError("invalid_input", "Malformed message"))
		return
	}

	switch msg.Type {
	case event.TypeJoinRoom:
		err = c.handleJoin(ctx, msg.Data)
	case event.TypeLeaveRoom:
		err = c.handleLeave(ctx, msg.Data)
	case event.TypeSendMessage:
		err = c.handleSend(ctx, msg.Data)
	case event.TypeTyping:
		err = c.handleTyping(msg.Data)
	case event.TypeTimerExtended:
		err = c.handleExtend(ctx, msg.Data)
	case event.TypeRoomDeleted:
		err = c.handleDelete(ctx, msg.Data)
	default:
		c.log.Debug("unknown event type", "type", msg.Type)
		c.reply(event.NewError("invalid_input", "Unknown event type"))
		return
	}

	if err != nil {
		c.log.Debug("event rejected", "type", msg.Type, "room_key", c.room(), "error", err)
		c.reply(event.NewError(room.ErrorCode(err), userMessage(err)))
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.Join(room.ErrInvalidInput, errors.New("missing data"))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(room.ErrInvalidInput, err)
	}
	return nil
}

// roomKey falls back to the joined room when the client omits it
func (c *Client) roomKeyOr(key string) string {
	if key == "" {
		return c.room()
	}
	return room.NormalizeKey(key)
}

func (c *Client) handleJoin(ctx context.Context, data json.RawMessage) error {
	var d event.JoinRoomData
	if err := decodeData(data, &d); err != nil {
		return err
	}
	key := room.NormalizeKey(d.RoomKey)

	// one room per connection
	if prev := c.room(); prev != "" && prev != key {
		if err := c.sessions.Leave(ctx, prev, c); err != nil {
			c.log.Warn("failed to leave previous room", "room_key", prev, "error", err)
		}
		c.setRoom("")
	}

	if err := c.sessions.Join(ctx, key, c.identity, c); err != nil {
		return err
	}
	c.setRoom(key)
	return nil
}

func (c *Client) handleLeave(ctx context.Context, data json.RawMessage) error {
	var d event.RoomRefData
	if len(data) > 0 {
		if err := decodeData(data, &d); err != nil {
			return err
		}
	}
	key := c.roomKeyOr(d.RoomKey)
	if key == "" {
		return nil
	}

	if err := c.sessions.Leave(ctx, key, c); err != nil {
		return err
	}
	if key == c.room() {
		c.setRoom("")
	}
	return nil
}

func (c *Client) handleSend(ctx context.Context, data json.RawMessage) error {
	var d event.SendMessageData
	if err := decodeData(data, &d); err != nil {
		return err
	}
	key := c.roomKeyOr(d.RoomKey)
	if key == "" {
		return room.ErrForbidden
	}

	_, err := c.sessions.SendMessage(ctx, key, c.identity, d.Content)
	return err
}

func (c *Client) handleTyping(data json.RawMessage) error {
	var d event.TypingData
	if err := decodeData(data, &d); err != nil {
		return err
	}
	if key := c.roomKeyOr(d.RoomKey); key != "" {
		c.sessions.Typing(key, c.identity, c, d.IsTyping)
	}
	return nil
}

func (c *Client) handleExtend(ctx context.Context, data json.RawMessage) error {
	var d event.RoomRefData
	if err := decodeData(data, &d); err != nil {
		return err
	}

	r, err := c.sessions.ExtendTimer(ctx, c.roomKeyOr(d.RoomKey), c.identity.UserID, d.AdditionalMinutes)
	if err != nil {
		return err
	}
	c.sessions.AnnounceTimer(r, d.AdditionalMinutes)
	return nil
}

func (c *Client) handleDelete(ctx context.Context, data json.RawMessage) error {
	var d event.RoomRefData
	if len(data) > 0 {
		if err := decodeData(data, &d); err != nil {
			return err
		}
	}
	key := c.roomKeyOr(d.RoomKey)

	if err := c.sessions.DeleteRoom(ctx, key, c.identity.UserID); err != nil {
		return err
	}
	c.sessions.AnnounceDeleted(key)
	if key == c.room() {
		c.setRoom("")
	}
	return nil
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, room.ErrExpired):
		return "Room has expired"
	case errors.Is(err, room.ErrNotFound):
		return "Room not found or expired"
	case errors.Is(err, room.ErrFull):
		return "Room is full"
	case errors.Is(err, room.ErrForbidden):
		return "You are not allowed to do that"
	case errors.Is(err, room.ErrInvalidInput):
		return "Invalid request"
	case errors.Is(err, room.ErrRateLimited):
		return "You are sending messages too fast"
	case errors.Is(err, room.ErrStoreUnavailable):
		return "Service temporarily unavailable"
	default:
		return "Something went wrong"
	}
}
