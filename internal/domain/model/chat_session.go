package model

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label is the speaker prefix used when a message is rendered into a prompt.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Message is one immutable entry of a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the aggregate root for a conversation and its bounded history.
type Session struct {
	ID           string    `json:"id"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		Messages:     make([]Message, 0, 8),
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Append adds m and drops the oldest messages so that at most max remain.
// A non-positive max disables the window.
func (s *Session) Append(m Message, max int) {
	s.Messages = append(s.Messages, m)
	if max > 0 && len(s.Messages) > max {
		kept := make([]Message, max)
		copy(kept, s.Messages[len(s.Messages)-max:])
		s.Messages = kept
	}
	s.LastActivity = m.Timestamp
}

// Touch refreshes the activity timestamp.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
}

// Clone returns a deep copy safe to hand out of the store.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}

// TurnResult is what a completed turn hands back to the transport.
type TurnResult struct {
	Reply          string `json:"response"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}
