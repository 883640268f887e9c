package session

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rx3lixir/echonet/internal/auth"
	"github.com/rx3lixir/echonet/internal/message"
	"github.com/rx3lixir/echonet/internal/room"
	"github.com/rx3lixir/echonet/internal/user"
)

const createAttempts = 3

var _ room.Service = (*Coordinator)(nil)

func (c *Coordinator) newRoom(id auth.Identity, req room.CreateRoomRequest) (*room.Room, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("room name is required")
	}
	if utf8.RuneCountInString(name) > room.MaxNameLength {
		return nil, invalid("room name is longer than %d characters", room.MaxNameLength)
	}

	typ := req.Type
	if typ == "" {
		typ = room.TypeGroup
	}
	if !typ.Valid() {
		return nil, invalid("unknown room type %q", typ)
	}

	capacity := req.MaxParticipants
	if capacity == 0 {
		capacity = room.DefaultMaxParticipants
	}
	if capacity < room.MinParticipants || capacity > room.MaxParticipants {
		return nil, invalid("max participants must be between %d and %d", room.MinParticipants, room.MaxParticipants)
	}

	if req.TimeLimit < 0 {
		return nil, invalid("time limit must not be negative")
	}

	settings := req.Settings.Apply(room.DefaultSettings())

	now := c.now()
	r := &room.Room{
		Name:            name,
		Type:            typ,
		Creator:         id.UserID,
		MaxParticipants: capacity,
		IsPublic:        req.IsPublic,
		EnableXP:        req.EnableXP,
		TimeLimit:       req.TimeLimit,
		IsActive:        true,
		Participants:    []room.Participant{},
		Settings:        settings,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.TimeLimit > 0 {
		exp := now.Add(time.Duration(req.TimeLimit) * time.Minute)
		r.ExpiresAt = &exp
	}
	return r, nil
}

// CreateRoom stores a new room under a fresh access key
func (c *Coordinator) CreateRoom(ctx context.Context, id auth.Identity, req room.CreateRoomRequest) (*room.Room, error) {
	if id.UserID == "" {
		return nil, invalid("creator is required")
	}

	r, err := c.newRoom(id, req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	for attempt := 0; attempt < createAttempts; attempt++ {
		key, err := c.keys.Generate(ctx)
		if err != nil {
			return nil, unavailable("generate key", err)
		}
		r.AccessKey = key

		err = c.rooms.Create(ctx, r)
		if err == nil {
			c.log.Info("room created",
				"room_key", key,
				"creator_id", id.UserID,
				"room_type", r.Type,
				"time_limit", r.TimeLimit)
			c.recordStats(ctx, id.UserID, user.StatsDelta{RoomsCreated: 1})
			return r, nil
		}
		if !errors.Is(err, room.ErrKeyExists) {
			return nil, unavailable("create room", err)
		}
		c.log.Debug("access key taken between check and insert, retrying", "room_key", key)
	}

	return nil, unavailable("create room", room.ErrKeySpaceExhausted)
}

// GetRoom returns an active room, expiring it lazily if its time is up
func (c *Coordinator) GetRoom(ctx context.Context, roomKey string) (*room.Room, error) {
	if err := validKey(roomKey); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(roomKey)
	defer unlock()

	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	return c.loadActive(ctx, roomKey)
}

func (c *Coordinator) MessageCount(ctx context.Context, roomKey string) (int, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	n, err := c.messages.Count(ctx, roomKey)
	if err != nil {
		return 0, unavailable("count messages", err)
	}
	return n, nil
}

// History returns up to limit of the latest live messages, oldest first
func (c *Coordinator) History(ctx context.Context, roomKey string, limit int) ([]*message.Message, error) {
	if _, err := c.GetRoom(ctx, roomKey); err != nil {
		return nil, err
	}

	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	msgs, err := c.messages.FindByRoom(ctx, roomKey, limit, message.OldestFirst)
	if err != nil {
		return nil, unavailable("load history", err)
	}
	return msgs, nil
}

// ExtendTimer pushes the room deadline by minutes. Creator only.
func (c *Coordinator) ExtendTimer(ctx context.Context, roomKey, userID string, minutes int) (*room.Room, error) {
	if err := validKey(roomKey); err != nil {
		return nil, err
	}
	if minutes <= 0 {
		return nil, invalid("additional minutes must be positive")
	}

	unlock := c.locks.Lock(roomKey)
	defer unlock()

	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	r, err := c.loadActive(ctx, roomKey)
	if err != nil {
		return nil, err
	}
	if r.Creator != userID {
		return nil, ErrForbidden
	}

	now := c.now()
	r.Extend(minutes, now)
	r.UpdatedAt = now

	if err := c.rooms.Save(ctx, r); err != nil {
		return nil, unavailable("extend timer", err)
	}

	c.log.Info("room timer extended",
		"room_key", roomKey,
		"minutes", minutes,
		"expires_at", r.ExpiresAt)

	return r, nil
}

// DeleteRoom removes the room and all of its messages. Creator only.
func (c *Coordinator) DeleteRoom(ctx context.Context, roomKey, userID string) error {
	if err := validKey(roomKey); err != nil {
		return err
	}

	unlock := c.locks.Lock(roomKey)
	defer unlock()

	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	r, err := c.rooms.FindByKey(ctx, roomKey)
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			return ErrRoomNotFound
		}
		return unavailable("load room", err)
	}
	if r.Creator != userID {
		return ErrForbidden
	}

	purged, err := c.messages.DeleteByRoom(ctx, roomKey)
	if err != nil {
		return unavailable("delete messages", err)
	}
	if err := c.rooms.DeleteByKey(ctx, roomKey); err != nil {
		if errors.Is(err, room.ErrNotFound) {
			return ErrRoomNotFound
		}
		return unavailable("delete room", err)
	}

	c.reaper.CancelRoom(roomKey)

	for _, fn := range c.onDelete {
		fn(ctx, roomKey)
	}

	c.log.Info("room deleted", "room_key", roomKey, "messages", purged)
	return nil
}

func (c *Coordinator) CreatedRooms(ctx context.Context, userID string) ([]room.CreatedSummary, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	rooms, err := c.rooms.FindByCreator(ctx, userID)
	if err != nil {
		return nil, unavailable("list created rooms", err)
	}

	now := c.now()
	out := make([]room.CreatedSummary, 0, len(rooms))
	for _, r := range rooms {
		if r.Expired(now) {
			continue
		}
		n, err := c.messages.Count(ctx, r.AccessKey)
		if err != nil {
			return nil, unavailable("count messages", err)
		}
		out = append(out, r.CreatedSummary(n))
	}
	return out, nil
}

func (c *Coordinator) JoinedRooms(ctx context.Context, userID string) ([]room.JoinedSummary, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	rooms, err := c.rooms.FindByParticipant(ctx, userID, true)
	if err != nil {
		return nil, unavailable("list joined rooms", err)
	}

	now := c.now()
	out := make([]room.JoinedSummary, 0, len(rooms))
	for _, r := range rooms {
		if r.Expired(now) {
			continue
		}

		last := room.NeverMessaged
		m, err := c.messages.LastByRoom(ctx, r.AccessKey)
		switch {
		case err == nil:
			last = room.TimeAgo(m.CreatedAt, now)
		case !errors.Is(err, message.ErrNotFound):
			return nil, unavailable("load last message", err)
		}

		out = append(out, r.JoinedSummary(last))
	}
	return out, nil
}

// ExpireDue deactivates rooms past their deadline and tells their
// live connections. Each room is re-read under its lock, so a write that
// raced the lookup is never overwritten.
func (c *Coordinator) ExpireDue(ctx context.Context) (int, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	keys, err := c.rooms.FindExpired(ctx, c.now())
	if err != nil {
		return 0, unavailable("find expired rooms", err)
	}

	expired := 0
	for _, key := range keys {
		unlock := c.locks.Lock(key)
		_, err := c.loadActive(ctx, key)
		unlock()

		switch {
		case errors.Is(err, ErrRoomExpired):
			expired++
		case errors.Is(err, ErrRoomNotFound), err == nil:
		default:
			c.log.Warn("failed to expire room", "room_key", key, "error", err)
		}
	}
	return expired, nil
}

// PurgeMessages drops messages older than the TTL
func (c *Coordinator) PurgeMessages(ctx context.Context) (int64, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	n, err := c.messages.PurgeOlderThan(ctx, c.now().Add(-c.cfg.MessageTTL))
	if err != nil {
		return 0, unavailable("purge messages", err)
	}
	return n, nil
}
