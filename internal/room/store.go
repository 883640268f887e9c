package room

import (
	"context"
	"time"
)

// Store persists rooms. Save replaces the whole room document,
// participants included, in one write.
type Store interface {
	Create(ctx context.Context, room *Room) error
	FindByKey(ctx context.Context, key string) (*Room, error)
	Save(ctx context.Context, room *Room) error
	DeleteByKey(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Active rooms only, newest first
	FindByCreator(ctx context.Context, userID string) ([]*Room, error)
	FindByParticipant(ctx context.Context, userID string, excludingCreator bool) ([]*Room, error)

	// FindExpired lists keys of active rooms whose deadline is at or
	// before now. It does not write; callers deactivate under the room lock.
	FindExpired(ctx context.Context, now time.Time) ([]string, error)
}
