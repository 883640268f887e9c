package user

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	GuestPrefix      = "guest_"
	RegisteredPrefix = "user_"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

// User is either a guest (no password) or a registered account
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	IsGuest      bool      `json:"is_guest"`
	Fingerprint  string    `json:"-"`
	TotalXP      int       `json:"total_xp"`
	RoomsCreated int       `json:"rooms_created"`
	RoomsJoined  int       `json:"rooms_joined"`
	LastActive   time.Time `json:"last_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StatsDelta is added to a user's lifetime counters
type StatsDelta struct {
	RoomsCreated int
	RoomsJoined  int
	XP           int
}

// NewID returns a fresh user id carrying the guest or registered prefix
func NewID(guest bool) string {
	prefix := RegisteredPrefix
	if guest {
		prefix = GuestPrefix
	}
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

type GuestRequest struct {
	Username    string `json:"username"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	Password    string `json:"password"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type UserResponse struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	IsGuest      bool      `json:"is_guest"`
	TotalXP      int       `json:"total_xp"`
	RoomsCreated int       `json:"rooms_created"`
	RoomsJoined  int       `json:"rooms_joined"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) Response() UserResponse {
	return UserResponse{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		IsGuest:      u.IsGuest,
		TotalXP:      u.TotalXP,
		RoomsCreated: u.RoomsCreated,
		RoomsJoined:  u.RoomsJoined,
		CreatedAt:    u.CreatedAt,
	}
}

type AuthResponse struct {
	User            UserResponse `json:"user"`
	AccessToken     string       `json:"access_token"`
	RefreshToken    string       `json:"refresh_token"`
	TokenType       string       `json:"token_type"`
	IsReturningUser bool         `json:"is_returning_user,omitempty"`
}
