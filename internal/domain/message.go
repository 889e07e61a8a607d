package domain

import (
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TypingContent is the content of the system frame that signals the
// assistant is composing a reply.
const TypingContent = "typing"

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single entry of the visible conversation log.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// StoredMessage is a message persisted by the backend.
type StoredMessage struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Message drops the persistence fields.
func (m StoredMessage) Message() Message {
	return Message{Role: m.Role, Content: m.Content}
}

// InboundFrame is a JSON frame received over the realtime channel.
type InboundFrame struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	SessionID  int64      `json:"session_id,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	Sources    []string   `json:"sources,omitempty"`
}

// IsTyping reports whether the frame is the typing control signal rather
// than a message for the log.
func (f InboundFrame) IsTyping() bool {
	return f.Role == RoleSystem && f.Content == TypingContent
}

// Message projects the frame onto a log entry.
func (f InboundFrame) Message() Message {
	return Message{Role: f.Role, Content: f.Content}
}

// OutboundFrame is the JSON frame the widget publishes.
type OutboundFrame struct {
	Message string `json:"message"`
}

// TypingFrame returns the control frame announcing a pending reply.
func TypingFrame(sessionID int64) InboundFrame {
	return InboundFrame{Role: RoleSystem, Content: TypingContent, SessionID: sessionID}
}
