package domain

import "time"

// User profile from the user directory
type User struct {
	UID          string    `json:"uid"`
	DisplayName  string    `json:"display_name"`
	PhotoURL     string    `json:"photo_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// LastMessageSnapshot preview of the newest message in a conversation
type LastMessageSnapshot struct {
	Text      string      `bson:"text" json:"text"`
	SenderID  string      `bson:"sender_id" json:"sender_id"`
	Type      MessageType `bson:"type" json:"type"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
}

// Conversation 1對1 or 群組
//
// MemberIDs never change after creation.
type Conversation struct {
	ID            string               `bson:"_id" json:"id"`
	IsGroup       bool                 `bson:"is_group" json:"is_group"`
	Title         string               `bson:"title,omitempty" json:"title,omitempty"`
	MemberIDs     []string             `bson:"member_ids" json:"member_ids"`
	CreatedBy     string               `bson:"created_by" json:"created_by"`
	CreatedAt     time.Time            `bson:"created_at" json:"created_at"`
	LastMessage   *LastMessageSnapshot `bson:"last_message,omitempty" json:"last_message,omitempty"`
	LastMessageAt time.Time            `bson:"last_message_at" json:"last_message_at"`
}

// PeerOf returns the other member of a 1:1 conversation.
func (c *Conversation) PeerOf(uid string) (string, bool) {
	if c.IsGroup {
		return "", false
	}
	for _, id := range c.MemberIDs {
		if id != uid {
			return id, true
		}
	}
	return "", false
}

// ConversationMember one per (conversation, user); LastSeenAt never moves backwards
type ConversationMember struct {
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	UID            string    `bson:"uid" json:"uid"`
	JoinedAt       time.Time `bson:"joined_at" json:"joined_at"`
	LastSeenAt     time.Time `bson:"last_seen_at" json:"last_seen_at"`
	Muted          bool      `bson:"muted" json:"muted"`
}
