package domain

import "time"

// TypingState one user typing in one conversation
type TypingState struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Typing         bool      `json:"typing"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PresenceState zero LastSeen means never seen
type PresenceState struct {
	UserID   string    `json:"user_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}
