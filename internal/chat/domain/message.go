package domain

import (
	"fmt"
	"time"
)

// MessageType message content kind
type MessageType string

const (
	// MessageText plain text body
	MessageText MessageType = "text"
	// MessageImage body is a caption, MediaRef points at the object
	MessageImage MessageType = "image"
	// MessageAI generated by the assistant
	MessageAI MessageType = "ai"
)

// ParseMessageType only accept known types
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(s); t {
	case MessageText, MessageImage, MessageAI:
		return t, nil
	}
	return "", fmt.Errorf("unknown message type %q", s)
}

// DeliveryStatus pending -> sent -> delivered
type DeliveryStatus string

const (
	// StatusPending local echo, not yet confirmed by the store
	StatusPending DeliveryStatus = "pending"
	// StatusSent persisted
	StatusSent DeliveryStatus = "sent"
	// StatusDelivered reached a recipient device
	StatusDelivered DeliveryStatus = "delivered"
)

// ParseDeliveryStatus only accept known statuses
func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	switch st := DeliveryStatus(s); st {
	case StatusPending, StatusSent, StatusDelivered:
		return st, nil
	}
	return "", fmt.Errorf("unknown delivery status %q", s)
}

// Message 一則聊天訊息
//
// ID is assigned by the persistent store and is empty for a local echo.
// LocalID is the logical identity: generated by the sending client and kept
// after confirmation, so an echo and its persisted record never coexist.
type Message struct {
	ID             string         `bson:"_id,omitempty" json:"id,omitempty"`
	LocalID        string         `bson:"client_id" json:"local_id"`
	ConversationID string         `bson:"conversation_id" json:"conversation_id"`
	SenderID       string         `bson:"sender_id" json:"sender_id"`
	Type           MessageType    `bson:"type" json:"type"`
	Body           string         `bson:"body" json:"body"`
	MediaRef       string         `bson:"media_ref,omitempty" json:"media_ref,omitempty"`
	CreatedAt      time.Time      `bson:"created_at" json:"created_at"`
	DeliveryStatus DeliveryStatus `bson:"delivery_status" json:"delivery_status"`
	IsLocalEcho    bool           `bson:"-" json:"is_local_echo"`
}

// MessageDraft outbound message before the store assigns an id
type MessageDraft struct {
	LocalID        string      `validate:"required"`
	ConversationID string      `validate:"required"`
	SenderID       string      `validate:"required"`
	Type           MessageType `validate:"required,oneof=text image ai"`
	Body           string      `validate:"required,max=5000"`
	MediaRef       string
	CreatedAt      time.Time `validate:"required"`
}

// Echo build the optimistic local copy of the draft
func (d MessageDraft) Echo() Message {
	return Message{
		LocalID:        d.LocalID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Type:           d.Type,
		Body:           d.Body,
		MediaRef:       d.MediaRef,
		CreatedAt:      d.CreatedAt,
		DeliveryStatus: StatusPending,
		IsLocalEcho:    true,
	}
}

// Snapshot build the conversation preview for this message
func (m Message) Snapshot() LastMessageSnapshot {
	return LastMessageSnapshot{
		Text:      m.Body,
		SenderID:  m.SenderID,
		Type:      m.Type,
		CreatedAt: m.CreatedAt,
	}
}
