package room

import "errors"

var (
	ErrNotFound         = errors.New("room not found or expired")
	ErrFull             = errors.New("room is full")
	ErrForbidden        = errors.New("action not allowed for this user")
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrRateLimited      = errors.New("too many messages")
	ErrKeyExists        = errors.New("access key already exists")

	// ErrExpired is also an ErrNotFound
	ErrExpired error = expiredError{}
)

type expiredError struct{}

func (expiredError) Error() string { return "room has expired" }

func (expiredError) Is(target error) bool { return target == ErrNotFound }
