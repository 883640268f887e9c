// Package session runs live rooms: joins, leaves, messages and the
// teardown of expired or deleted rooms.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rx3lixir/echonet/internal/auth"
	"github.com/rx3lixir/echonet/internal/event"
	"github.com/rx3lixir/echonet/internal/limiter"
	"github.com/rx3lixir/echonet/internal/message"
	"github.com/rx3lixir/echonet/internal/presence"
	"github.com/rx3lixir/echonet/internal/room"
	"github.com/rx3lixir/echonet/internal/user"
)

type Config struct {
	GracePeriod  time.Duration
	HistoryLimit int
	XPPerMessage int
	MessageTTL   time.Duration
	StoreTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.MessageTTL <= 0 {
		c.MessageTTL = message.DefaultTTL
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
}

// StatsRecorder bumps a user's lifetime counters
type StatsRecorder interface {
	AddStats(ctx context.Context, userID string, d user.StatsDelta) error
}

type Deps struct {
	Rooms    room.Store
	Messages message.Store
	Registry presence.Registry
	Reaper   *presence.Reaper
	Limiter  *limiter.Manager // optional
	Users    StatsRecorder    // optional
	Log      *slog.Logger
	Now      func() time.Time // optional
}

type Coordinator struct {
	rooms    room.Store
	messages message.Store
	registry presence.Registry
	reaper   *presence.Reaper
	limiter  *limiter.Manager
	users    StatsRecorder
	keys     *room.KeyGenerator
	locks    *keyedMutex
	log      *slog.Logger
	cfg      Config
	now      func() time.Time

	onDelete []func(ctx context.Context, roomKey string)
}

func NewCoordinator(deps Deps, cfg Config) *Coordinator {
	cfg.setDefaults()

	now := deps.Now
	if now == nil {
		now = time.Now
	}
	reaper := deps.Reaper
	if reaper == nil {
		reaper = presence.NewReaper()
	}

	return &Coordinator{
		rooms:    deps.Rooms,
		messages: deps.Messages,
		registry: deps.Registry,
		reaper:   reaper,
		limiter:  deps.Limiter,
		users:    deps.Users,
		keys:     room.NewKeyGenerator(deps.Rooms),
		locks:    newKeyedMutex(),
		log:      deps.Log,
		cfg:      cfg,
		now:      now,
	}
}

// OnDelete registers fn to run after a room is deleted
func (c *Coordinator) OnDelete(fn func(ctx context.Context, roomKey string)) {
	c.onDelete = append(c.onDelete, fn)
}

// Shutdown drops pending grace-period jobs
func (c *Coordinator) Shutdown() {
	c.reaper.Stop()
}

func (c *Coordinator) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.StoreTimeout)
}

func validKey(roomKey string) error {
	if !room.ValidKey(roomKey) {
		return invalid("malformed room key %q", roomKey)
	}
	return nil
}

// loadActive fetches a room that can take traffic. A room found past its
// deadline is deactivated on the spot. Caller holds the room lock.
func (c *Coordinator) loadActive(ctx context.Context, roomKey string) (*room.Room, error) {
	r, err := c.rooms.FindByKey(ctx, roomKey)
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, unavailable("load room", err)
	}
	if !r.IsActive {
		return nil, ErrRoomNotFound
	}

	if now := c.now(); r.Expired(now) {
		c.expire(ctx, r, now)
		return nil, ErrRoomExpired
	}

	return r, nil
}

// expire deactivates r and closes out its live connections. Caller
// holds the room lock.
func (c *Coordinator) expire(ctx context.Context, r *room.Room, now time.Time) {
	r.IsActive = false
	r.UpdatedAt = now
	if err := c.rooms.Save(ctx, r); err != nil {
		c.log.Error("failed to mark room expired", "room_key", r.AccessKey, "error", err)
	}
	c.announceExpired(r.AccessKey)
}

// recordStats is best effort. Counters never fail a room operation.
func (c *Coordinator) recordStats(ctx context.Context, userID string, d user.StatsDelta) {
	if c.users == nil {
		return
	}
	if err := c.users.AddStats(ctx, userID, d); err != nil {
		c.log.Warn("failed to update user stats", "user_id", userID, "error", err)
	}
}

// Join attaches conn to a room. The first connection of a user makes
// them a participant; later ones are reconnects and change nothing
// persistent.
func (c *Coordinator) Join(ctx context.Context, roomKey string, id auth.Identity, conn presence.Conn) error {
	if err := validKey(roomKey); err != nil {
		return err
	}
	if id.UserID == "" || id.Username == "" {
		return invalid("identity is required")
	}
	if conn == nil {
		return invalid("connection is required")
	}

	unlock := c.locks.Lock(roomKey)
	defer unlock()

	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	r, err := c.loadActive(ctx, roomKey)
	if err != nil {
		return err
	}

	existing := r.IsParticipant(id.UserID)
	if !existing {
		if id.Guest && !r.Settings.AllowGuests {
			return ErrForbidden
		}
		if r.IsFull() {
			c.log.Debug("join rejected, room full",
				"room_key", roomKey,
				"user_id", id.UserID,
				"max", r.MaxParticipants)
			return ErrRoomFull
		}
	}

	c.reaper.Cancel(roomKey, id.UserID)
	c.registry.Register(roomKey, id.UserID, conn)

	if !existing {
		now := c.now()
		r.Participants = append(r.Participants, room.Participant{
			UserID:   id.UserID,
			Username: id.Username,
			JoinedAt: now,
		})
		r.UpdatedAt = now

		if err := c.rooms.Save(ctx, r); err != nil {
			c.registry.Unregister(roomKey, conn)
			c.log.Error("failed to persist participant",
				"room_key", roomKey,
				"user_id", id.UserID,
				"error", err)
			return unavailable("add participant", err)
		}

		c.broadcastExcept(roomKey, conn, event.UserJoined(id.UserID, id.Username, now))
		if r.Creator != id.UserID {
			c.recordStats(ctx, id.UserID, user.StatsDelta{RoomsJoined: 1})
		}
		c.log.Info("user joined room",
			"room_key", roomKey,
			"user_id", id.UserID,
			"participants", len(r.Participants))
	} else {
		c.log.Debug("user reconnected to room", "room_key", roomKey, "user_id", id.UserID)
	}

	history, err := c.messages.FindByRoom(ctx, roomKey, c.cfg.HistoryLimit, message.OldestFirst)
	if err != nil {
		c.log.Warn("failed to load history for join", "room_key", roomKey, "error", err)
		history = nil
	}

	if err := conn.Send(event.RoomJoined(snapshot(r, history))); err != nil {
		c.log.Warn("failed to send room snapshot", "room_key", roomKey, "conn_id", conn.ID(), "error", err)
	}

	return nil
}

// Leave detaches conn now and reconciles without waiting
func (c *Coordinator) Leave(ctx context.Context, roomKey string, conn presence.Conn) error {
	unlock := c.locks.Lock(roomKey)
	defer unlock()

	userID, ok := c.registry.Unregister(roomKey, conn)
	if !ok {
		return nil
	}
	c.reaper.Cancel(roomKey, userID)

	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	return c.reconcile(ctx, roomKey, userID)
}

// Disconnect detaches conn and gives the user GracePeriod to come back
// before they stop being a participant
func (c *Coordinator) Disconnect(roomKey string, conn presence.Conn) {
	userID, ok := c.registry.Unregister(roomKey, conn)
	if !ok {
		return
	}

	c.log.Debug("connection dropped, scheduling reconcile",
		"room_key", roomKey,
		"user_id", userID,
		"grace", c.cfg.GracePeriod)

	c.reaper.Schedule(roomKey, userID, c.cfg.GracePeriod, func() {
		unlock := c.locks.Lock(roomKey)
		defer unlock()

		ctx, cancel := c.storeCtx(context.Background())
		defer cancel()

		if err := c.reconcile(ctx, roomKey, userID); err != nil {
			c.log.Error("grace period reconcile failed", "room_key", roomKey, "user_id", userID, "error", err)
		}
	})
}

// reconcile drops userID from the participant list once they hold no
// live connection. Caller holds the room lock.
func (c *Coordinator) reconcile(ctx context.Context, roomKey, userID string) error {
	if c.registry.HasOtherLiveConnections(roomKey, userID, nil) {
		return nil
	}

	r, err := c.rooms.FindByKey(ctx, roomKey)
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			return nil
		}
		return unavailable("load room", err)
	}
	if !r.IsActive {
		return nil
	}

	now := c.now()
	if r.Expired(now) {
		c.expire(ctx, r, now)
		return nil
	}

	p, ok := r.RemoveParticipant(userID)
	if !ok {
		return nil
	}

	r.UpdatedAt = now
	if err := c.rooms.Save(ctx, r); err != nil {
		return unavailable("remove participant", err)
	}

	c.broadcast(roomKey, event.UserLeft(p.UserID, p.Username, now))
	c.log.Info("user left room",
		"room_key", roomKey,
		"user_id", userID,
		"participants", len(r.Participants))

	return nil
}

// SendMessage persists content and fans it out to the whole room,
// sender included, in persistence order
func (c *Coordinator) SendMessage(ctx context.Context, roomKey string, id auth.Identity, content string) (*message.Message, error) {
	if err := validKey(roomKey); err != nil {
		return nil, err
	}
	content, err := message.ValidateContent(content)
	if err != nil {
		return nil, invalid("%v", err)
	}

	if c.limiter != nil {
		allowed, err := c.limiter.AllowSend(ctx, roomKey, id.UserID)
		if err != nil {
			c.log.Warn("rate limiter unavailable, allowing send", "room_key", roomKey, "error", err)
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	unlock := c.locks.Lock(roomKey)
	defer unlock()

	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	r, err := c.loadActive(ctx, roomKey)
	if err != nil {
		return nil, err
	}
	if !r.IsParticipant(id.UserID) {
		return nil, ErrForbidden
	}

	m := &message.Message{
		RoomKey:  roomKey,
		UserID:   id.UserID,
		Username: id.Username,
		Content:  content,
		Type:     message.TypeText,
	}
	if err := c.messages.Append(ctx, m); err != nil {
		return nil, unavailable("append message", err)
	}

	c.broadcast(roomKey, event.ReceiveMessage(toEventMessage(m)))

	if r.EnableXP && c.cfg.XPPerMessage > 0 {
		p, _ := r.Participant(id.UserID)
		p.XP += c.cfg.XPPerMessage
		if err := c.rooms.Save(ctx, r); err != nil {
			c.log.Warn("failed to award xp", "room_key", roomKey, "user_id", id.UserID, "error", err)
		} else {
			c.recordStats(ctx, id.UserID, user.StatsDelta{XP: c.cfg.XPPerMessage})
		}
	}

	return m, nil
}

// Typing relays a typing indicator to the other connections of the room
func (c *Coordinator) Typing(roomKey string, id auth.Identity, conn presence.Conn, isTyping bool) {
	if userID, ok := c.registry.UserOf(roomKey, conn); !ok || userID != id.UserID {
		return
	}
	c.broadcastExcept(roomKey, conn, event.UserTyping(id.UserID, id.Username, isTyping))
}

func toEventMessage(m *message.Message) event.Message {
	return event.Message{
		ID:        m.ID.String(),
		UserID:    m.UserID,
		Username:  m.Username,
		Content:   m.Content,
		Type:      string(m.Type),
		Timestamp: m.CreatedAt,
	}
}

func snapshot(r *room.Room, history []*message.Message) event.RoomJoinedData {
	participants := make([]event.Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		participants = append(participants, event.Participant{
			UserID:   p.UserID,
			Username: p.Username,
			JoinedAt: p.JoinedAt,
			XP:       p.XP,
		})
	}

	msgs := make([]event.Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, toEventMessage(m))
	}

	return event.RoomJoinedData{
		RoomKey:      r.AccessKey,
		Participants: participants,
		Messages:     msgs,
		RoomInfo: event.RoomInfo{
			Name:     r.Name,
			Type:     string(r.Type),
			EnableXP: r.EnableXP,
		},
		ExpiresAt: r.ExpiresAt,
	}
}
