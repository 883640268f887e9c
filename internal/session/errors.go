package session

import (
	"fmt"

	"github.com/rx3lixir/echonet/internal/room"
)

// Errors returned by the coordinator. They alias the room package
// sentinels so REST and websocket layers map them the same way.
var (
	ErrRoomNotFound     = room.ErrNotFound
	ErrRoomExpired      = room.ErrExpired
	ErrRoomFull         = room.ErrFull
	ErrForbidden        = room.ErrForbidden
	ErrInvalidInput     = room.ErrInvalidInput
	ErrStoreUnavailable = room.ErrStoreUnavailable
	ErrRateLimited      = room.ErrRateLimited
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
