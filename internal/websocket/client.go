package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rx3lixir/echonet/internal/auth"
	"github.com/rx3lixir/echonet/internal/event"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Send pings to peer with this period
	pingPeriod = 30 * time.Second

	// Room keys plus 2000 characters of UTF-8 and the envelope
	maxMessageSize = 16 * 1024

	sendBufferSize = 256
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClientClosed   = errors.New("client closed")
)

// Client represents a single WebSocket connection
type Client struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn
	sessions Sessions
	send     chan *event.Event
	done     chan struct{}
	log      *slog.Logger

	closeOnce sync.Once

	mu      sync.Mutex
	roomKey string // room this connection has joined, if any
}

// NewClient creates a new client instance
func NewClient(identity auth.Identity, conn *websocket.Conn, sessions Sessions, log *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		sessions: sessions,
		send:     make(chan *event.Event, sendBufferSize),
		done:     make(chan struct{}),
		log:      log.With("conn_id", id, "user_id", identity.UserID),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues e without blocking
func (c *Client) Send(e *event.Event) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- e:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomKey
}

func (c *Client) setRoom(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomKey = key
}

func (c *Client) markClosed() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump pumps events from the connection into the session engine.
// It runs on the handler goroutine and returns when the peer goes away.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.markClosed()
		if key := c.room(); key != "" {
			c.sessions.Disconnect(key, c)
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				c.log.Debug("client disconnected normally", "room_key", c.room())
			} else {
				c.log.Warn("websocket read error", "room_key", c.room(), "error", err)
			}
			return
		}

		if typ != websocket.MessageText {
			c.reply(event.NewError("invalid_input", "Only text frames are supported"))
			continue
		}

		c.dispatch(ctx, data)
	}
}

// writePump pumps queued events to the connection
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.writeEvent(writeCtx, e)
			cancel()

			if err != nil {
				c.log.Warn("failed to write event", "event", e.Type, "error", err)
				c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}

		case <-ticker.C:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(writeCtx)
			cancel()

			if err != nil {
				c.log.Warn("failed to send ping", "error", err)
				return
			}

		case <-c.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

// writeEvent writes an event to the WebSocket connection
func (c *Client) writeEvent(ctx context.Context, e *event.Event) error {
	data, err := e.ToJSON()
	if err != nil {
		return err
	}

	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *Client) reply(e *event.Event) {
	if err := c.Send(e); err != nil {
		c.log.Warn("dropping reply", "event", e.Type, "error", err)
	}
}
