package domain

import (
	"time"
)

// SessionHandle identifies one conversation between a visitor and a bot.
type SessionHandle struct {
	ID        int64     `json:"id"`
	BotID     int64     `json:"bot_id"`
	VisitorID string    `json:"visitor_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Valid reports whether the handle refers to a backend session.
func (s *SessionHandle) Valid() bool {
	return s != nil && s.ID > 0
}
