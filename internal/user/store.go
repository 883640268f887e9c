package user

import (
	"context"
	"time"
)

// Store defines what storage operations user entity have
type Store interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	// FindByUsername looks up registered accounts only
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindGuestByFingerprint(ctx context.Context, fingerprint string) (*User, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// AddStats increments the lifetime counters in one write
	AddStats(ctx context.Context, id string, d StatsDelta) error
}
