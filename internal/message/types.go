package message

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxContentLength = 2000
	DefaultTTL       = 24 * time.Hour
)

var (
	ErrNotFound       = errors.New("message not found")
	ErrEmptyContent   = errors.New("message content is empty")
	ErrContentTooLong = errors.New("message content exceeds 2000 characters")
)

type Type string

const (
	TypeText     Type = "text"
	TypeSystem   Type = "system"
	TypeReaction Type = "reaction"
)

type Message struct {
	ID        uuid.UUID  `json:"id"`
	RoomKey   string     `json:"room_key"`
	UserID    string     `json:"user_id"`
	Username  string     `json:"username"`
	Content   string     `json:"content"`
	Type      Type       `json:"message_type"`
	Reactions []Reaction `json:"reactions"`
	IsEdited  bool       `json:"is_edited"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type Reaction struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// Order controls how a page of messages is returned
type Order int

const (
	OldestFirst Order = iota
	NewestFirst
)

// ValidateContent trims content and enforces the length bounds
func ValidateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return content, nil
}

type MessagesResponse struct {
	Messages []*Message `json:"messages"`
	Count    int        `json:"count"`
}
