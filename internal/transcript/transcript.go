// Package transcript exports the live messages of a room to object
// storage and hands back a presigned download link.
package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rx3lixir/echonet/internal/message"
	"github.com/rx3lixir/echonet/internal/room"
)

const (
	DefaultURLExpiry = 15 * time.Minute

	// Rooms live for hours, this is far above anything reachable
	maxMessages = 10_000

	contentType = "application/json"
)

// ObjectStore is where transcripts are written
type ObjectStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	RemovePrefix(ctx context.Context, prefix string) (int, error)
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// Rooms is the read side of the session engine
type Rooms interface {
	GetRoom(ctx context.Context, key string) (*room.Room, error)
	History(ctx context.Context, key string, limit int) ([]*message.Message, error)
}

type Line struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Document is the exported file
type Document struct {
	RoomKey    string     `json:"room_key"`
	RoomName   string     `json:"room_name"`
	RoomType   room.Type  `json:"room_type"`
	ExportedAt time.Time  `json:"exported_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Messages   []Line     `json:"messages"`
}

type Result struct {
	RoomKey      string    `json:"room_key"`
	Object       string    `json:"object"`
	URL          string    `json:"url"`
	MessageCount int       `json:"message_count"`
	URLExpiresAt time.Time `json:"url_expires_at"`
}

type Exporter struct {
	rooms     Rooms
	objects   ObjectStore
	urlExpiry time.Duration
	log       *slog.Logger
	now       func() time.Time
}

func NewExporter(rooms Rooms, objects ObjectStore, urlExpiry time.Duration, log *slog.Logger) *Exporter {
	if urlExpiry <= 0 {
		urlExpiry = DefaultURLExpiry
	}
	return &Exporter{
		rooms:     rooms,
		objects:   objects,
		urlExpiry: urlExpiry,
		log:       log,
		now:       time.Now,
	}
}

func prefix(roomKey string) string {
	return "transcripts/" + roomKey + "/"
}

// Export writes the room's live messages as JSON. Creator only.
func (e *Exporter) Export(ctx context.Context, roomKey, userID string) (*Result, error) {
	r, err := e.rooms.GetRoom(ctx, roomKey)
	if err != nil {
		return nil, err
	}
	if r.Creator != userID {
		return nil, room.ErrForbidden
	}

	msgs, err := e.rooms.History(ctx, roomKey, maxMessages)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	doc := Document{
		RoomKey:    r.AccessKey,
		RoomName:   r.Name,
		RoomType:   r.Type,
		ExportedAt: now,
		ExpiresAt:  r.ExpiresAt,
		Messages:   make([]Line, 0, len(msgs)),
	}
	for _, m := range msgs {
		doc.Messages = append(doc.Messages, Line{
			UserID:    m.UserID,
			Username:  m.Username,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}

	name := fmt.Sprintf("%s%s.json", prefix(roomKey), now.Format("20060102T150405Z"))
	if err := e.objects.Put(ctx, name, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return nil, fmt.Errorf("%w: %w", room.ErrStoreUnavailable, err)
	}

	url, err := e.objects.PresignedURL(ctx, name, e.urlExpiry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", room.ErrStoreUnavailable, err)
	}

	e.log.Info("transcript exported",
		"room_key", roomKey,
		"object", name,
		"messages", len(doc.Messages))

	return &Result{
		RoomKey:      roomKey,
		Object:       name,
		URL:          url,
		MessageCount: len(doc.Messages),
		URLExpiresAt: now.Add(e.urlExpiry),
	}, nil
}

// RemoveRoom deletes every transcript of a room. Registered as a
// room deletion hook.
func (e *Exporter) RemoveRoom(ctx context.Context, roomKey string) {
	n, err := e.objects.RemovePrefix(ctx, prefix(roomKey))
	if err != nil {
		e.log.Error("failed to remove transcripts", "room_key", roomKey, "removed", n, "error", err)
		return
	}
	if n > 0 {
		e.log.Debug("transcripts removed", "room_key", roomKey, "count", n)
	}
}
