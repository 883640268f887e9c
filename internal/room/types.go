package room

import (
	"time"
)

type Type string

const (
	TypeGame      Type = "Game"
	TypePrivate   Type = "Private"
	TypeGroup     Type = "Group"
	TypeBroadcast Type = "Broadcast"
	TypeTimed     Type = "Timed"
)

func (t Type) Valid() bool {
	switch t {
	case TypeGame, TypePrivate, TypeGroup, TypeBroadcast, TypeTimed:
		return true
	}
	return false
}

const (
	DefaultMaxParticipants = 10
	MinParticipants        = 2
	MaxParticipants        = 50
	MaxNameLength          = 100
)

type Room struct {
	AccessKey       string        `json:"access_key"`
	Name            string        `json:"name"`
	Type            Type          `json:"room_type"`
	Creator         string        `json:"creator"`
	MaxParticipants int           `json:"max_participants"`
	IsPublic        bool          `json:"is_public"`
	EnableXP        bool          `json:"enable_xp"`
	TimeLimit       int           `json:"time_limit"` // minutes, 0 means no expiry
	ExpiresAt       *time.Time    `json:"expires_at"`
	IsActive        bool          `json:"is_active"`
	Participants    []Participant `json:"participants"`
	Settings        Settings      `json:"settings"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type Participant struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
	XP       int       `json:"xp"`
}

type Settings struct {
	AllowGuests       bool `json:"allow_guests"`
	AllowMediaUpload  bool `json:"allow_media_upload"`
	ModerationEnabled bool `json:"moderation_enabled"`
}

func DefaultSettings() Settings {
	return Settings{AllowGuests: true}
}

// SettingsPatch is a partial Settings. Absent fields keep their base value.
type SettingsPatch struct {
	AllowGuests       *bool `json:"allow_guests,omitempty"`
	AllowMediaUpload  *bool `json:"allow_media_upload,omitempty"`
	ModerationEnabled *bool `json:"moderation_enabled,omitempty"`
}

func (p *SettingsPatch) Apply(base Settings) Settings {
	if p == nil {
		return base
	}
	if p.AllowGuests != nil {
		base.AllowGuests = *p.AllowGuests
	}
	if p.AllowMediaUpload != nil {
		base.AllowMediaUpload = *p.AllowMediaUpload
	}
	if p.ModerationEnabled != nil {
		base.ModerationEnabled = *p.ModerationEnabled
	}
	return base
}

// Expired reports whether the room's deadline has passed at now
func (r *Room) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

func (r *Room) Participant(userID string) (*Participant, bool) {
	for i := range r.Participants {
		if r.Participants[i].UserID == userID {
			return &r.Participants[i], true
		}
	}
	return nil, false
}

func (r *Room) IsParticipant(userID string) bool {
	_, ok := r.Participant(userID)
	return ok
}

func (r *Room) IsFull() bool {
	return len(r.Participants) >= r.MaxParticipants
}

// RemoveParticipant drops userID from the list and returns the removed entry
func (r *Room) RemoveParticipant(userID string) (Participant, bool) {
	for i, p := range r.Participants {
		if p.UserID == userID {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return p, true
		}
	}
	return Participant{}, false
}

// Extend pushes the deadline by minutes. A room without a deadline
// gets one counted from now.
func (r *Room) Extend(minutes int, now time.Time) {
	add := time.Duration(minutes) * time.Minute
	if r.ExpiresAt == nil {
		exp := now.Add(add)
		r.ExpiresAt = &exp
		r.TimeLimit = minutes
		return
	}
	exp := r.ExpiresAt.Add(add)
	r.ExpiresAt = &exp
	r.TimeLimit += minutes
}

// Clone returns a deep copy safe to mutate
func (r *Room) Clone() *Room {
	c := *r
	if r.ExpiresAt != nil {
		exp := *r.ExpiresAt
		c.ExpiresAt = &exp
	}
	c.Participants = append([]Participant(nil), r.Participants...)
	return &c
}

type CreateRoomRequest struct {
	Name            string         `json:"room_name"`
	Type            Type           `json:"room_type,omitempty"`
	MaxParticipants int            `json:"max_participants,omitempty"`
	IsPublic        bool           `json:"is_public,omitempty"`
	EnableXP        bool           `json:"enable_xp,omitempty"`
	TimeLimit       int            `json:"time_limit,omitempty"`
	Settings        *SettingsPatch `json:"settings,omitempty"`
}

type CreateRoomResponse struct {
	AccessKey string `json:"access_key"`
	Room      *Room  `json:"room"`
}

type RoomResponse struct {
	*Room
	CurrentParticipants int `json:"current_participants"`
	MessageCount        int `json:"message_count"`
}

type ExtendTimerRequest struct {
	AdditionalMinutes int `json:"additional_minutes"`
}

type ExtendTimerResponse struct {
	Message   string     `json:"message"`
	ExpiresAt *time.Time `json:"expires_at"`
	TimeLimit int        `json:"time_limit"`
}

// CreatedSummary describes a room in its creator's list
type CreatedSummary struct {
	AccessKey    string        `json:"access_key"`
	Name         string        `json:"name"`
	Type         Type          `json:"type"`
	Status       string        `json:"status"`
	Participants []Participant `json:"participants"`
	MessageCount int           `json:"message_count"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    *time.Time    `json:"expires_at"`
}

// JoinedSummary describes a room the user joined but did not create
type JoinedSummary struct {
	AccessKey   string    `json:"access_key"`
	Name        string    `json:"name"`
	Type        Type      `json:"type"`
	LastMessage string    `json:"last_message"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RoomsResponse[T any] struct {
	Rooms []T `json:"rooms"`
	Count int `json:"count"`
}
