package message

import (
	"context"
	"time"
)

// Store is the append-only message log. Reads never return messages
// older than the store's TTL.
type Store interface {
	// Append assigns ID and CreatedAt
	Append(ctx context.Context, m *Message) error

	// FindByRoom returns the latest limit messages of a room in the given
	// order. Messages with equal CreatedAt keep append order.
	FindByRoom(ctx context.Context, roomKey string, limit int, order Order) ([]*Message, error)
	Count(ctx context.Context, roomKey string) (int, error)
	LastByRoom(ctx context.Context, roomKey string) (*Message, error)

	DeleteByRoom(ctx context.Context, roomKey string) (int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
