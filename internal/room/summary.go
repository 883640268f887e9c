package room

import (
	"fmt"
	"time"
)

var agoUnits = []struct {
	suffix string
	size   time.Duration
}{
	{"y", 365 * 24 * time.Hour},
	{"mo", 30 * 24 * time.Hour},
	{"w", 7 * 24 * time.Hour},
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
}

// TimeAgo renders the age of t as "5m ago", "2d ago" or "Just now"
func TimeAgo(t, now time.Time) string {
	age := now.Sub(t)
	for _, u := range agoUnits {
		if n := int(age / u.size); n >= 1 {
			return fmt.Sprintf("%d%s ago", n, u.suffix)
		}
	}
	return "Just now"
}

// NeverMessaged is shown for rooms without a live message
const NeverMessaged = "Never"

func (r *Room) CreatedSummary(messageCount int) CreatedSummary {
	status := "private"
	if r.IsPublic {
		status = "public"
	}
	return CreatedSummary{
		AccessKey:    r.AccessKey,
		Name:         r.Name,
		Type:         r.Type,
		Status:       status,
		Participants: r.Participants,
		MessageCount: messageCount,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
	}
}

func (r *Room) JoinedSummary(lastMessage string) JoinedSummary {
	return JoinedSummary{
		AccessKey:   r.AccessKey,
		Name:        r.Name,
		Type:        r.Type,
		LastMessage: lastMessage,
		UpdatedAt:   r.UpdatedAt,
	}
}
