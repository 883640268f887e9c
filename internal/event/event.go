// Package event defines the websocket wire protocol shared by the
// session engine and its transports.
package event

import (
	"encoding/json"
	"time"
)

// Type names an event on the wire
type Type string

const (
	// Client -> Server
	TypeJoinRoom      Type = "join-room"
	TypeLeaveRoom     Type = "leave-room"
	TypeSendMessage   Type = "send-message"
	TypeTyping        Type = "typing"
	TypeTimerExtended Type = "timer-extended"
	TypeRoomDeleted   Type = "room-deleted"

	// Server -> Client
	TypeRoomJoined     Type = "room-joined"
	TypeUserJoined     Type = "user-joined"
	TypeUserLeft       Type = "user-left"
	TypeReceiveMessage Type = "receive-message"
	TypeUserTyping     Type = "user-typing"
	TypeTimerUpdated   Type = "timer-updated"
	TypeRoomDeletedMsg Type = "room-deleted-notification"
	TypeRoomExpired    Type = "room-expired"
	TypeError          Type = "error"
)

// Event is the envelope for everything the server sends
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data,omitempty"`
}

// ClientMessage represents any message from client
type ClientMessage struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode parses a raw client frame
func Decode(raw []byte) (*ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ToJSON converts an event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Client payloads

type JoinRoomData struct {
	RoomKey string `json:"room_key"`
}

type SendMessageData struct {
	RoomKey string `json:"room_key"`
	Content string `json:"content"`
}

type TypingData struct {
	RoomKey  string `json:"room_key"`
	IsTyping bool   `json:"is_typing"`
}

// RoomRefData is carried by leave-room, timer-extended and room-deleted
type RoomRefData struct {
	RoomKey           string `json:"room_key"`
	AdditionalMinutes int    `json:"additional_minutes,omitempty"`
}

// Server payloads

type Participant struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
	XP       int       `json:"xp"`
}

type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Type      string    `json:"type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomInfo struct {
	Name     string `json:"room_name"`
	Type     string `json:"room_type"`
	EnableXP bool   `json:"enable_xp"`
}

type RoomJoinedData struct {
	RoomKey      string        `json:"room_key"`
	Participants []Participant `json:"participants"`
	Messages     []Message     `json:"messages"`
	RoomInfo     RoomInfo      `json:"room_info"`
	ExpiresAt    *time.Time    `json:"expires_at"`
}

type UserPresenceData struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

type UserTypingData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type TimerUpdatedData struct {
	ExpiresAt         *time.Time `json:"expires_at"`
	AdditionalMinutes int        `json:"additional_minutes"`
	Message           string     `json:"message"`
}

type RoomClosedData struct {
	RoomKey string `json:"room_key"`
	Message string `json:"message"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func RoomJoined(data RoomJoinedData) *Event {
	if data.Participants == nil {
		data.Participants = []Participant{}
	}
	if data.Messages == nil {
		data.Messages = []Message{}
	}
	return &Event{Type: TypeRoomJoined, Data: data}
}

func UserJoined(userID, username string, at time.Time) *Event {
	return &Event{Type: TypeUserJoined, Data: UserPresenceData{UserID: userID, Username: username, Timestamp: at}}
}

func UserLeft(userID, username string, at time.Time) *Event {
	return &Event{Type: TypeUserLeft, Data: UserPresenceData{UserID: userID, Username: username, Timestamp: at}}
}

func ReceiveMessage(m Message) *Event {
	return &Event{Type: TypeReceiveMessage, Data: m}
}

func UserTyping(userID, username string, typing bool) *Event {
	return &Event{Type: TypeUserTyping, Data: UserTypingData{UserID: userID, Username: username, IsTyping: typing}}
}

func TimerUpdated(expiresAt *time.Time, minutes int, message string) *Event {
	return &Event{Type: TypeTimerUpdated, Data: TimerUpdatedData{
		ExpiresAt:         expiresAt,
		AdditionalMinutes: minutes,
		Message:           message,
	}}
}

func RoomDeleted(roomKey string) *Event {
	return &Event{Type: TypeRoomDeletedMsg, Data: RoomClosedData{
		RoomKey: roomKey,
		Message: "This room has been deleted by the creator",
	}}
}

func RoomExpired(roomKey string) *Event {
	return &Event{Type: TypeRoomExpired, Data: RoomClosedData{
		RoomKey: roomKey,
		Message: "This room has expired",
	}}
}

// NewError creates an error event
func NewError(code, message string) *Event {
	return &Event{Type: TypeError, Data: ErrorData{Code: code, Message: message}}
}
