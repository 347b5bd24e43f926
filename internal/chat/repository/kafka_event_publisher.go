package repository

import (
	"context"
	"encoding/json"
	"time"

	"chat_sync_service/internal/chat/domain"

	"github.com/segmentio/kafka-go"
)

// MessageCreated event type for a confirmed message
const MessageCreated = "message.created"

// MessageEvent payload written to the message topic
type MessageEvent struct {
	Type           string             `json:"type"`
	MessageID      string             `json:"message_id"`
	LocalID        string             `json:"local_id"`
	ConversationID string             `json:"conversation_id"`
	SenderID       string             `json:"sender_id"`
	MessageType    domain.MessageType `json:"message_type"`
	Body           string             `json:"body"`
	MediaRef       string             `json:"media_ref,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaEventPublisher EventPublisher on a kafka topic, keyed by conversation
type KafkaEventPublisher struct {
	writer kafkaWriter
}

// NewKafkaEventPublisher create KafkaEventPublisher
func NewKafkaEventPublisher(w kafkaWriter) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: w}
}

// PublishMessage write one message.created event
func (p *KafkaEventPublisher) PublishMessage(ctx context.Context, msg domain.Message) error {
	value, err := json.Marshal(MessageEvent{
		Type:           MessageCreated,
		MessageID:      msg.ID,
		LocalID:        msg.LocalID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		MessageType:    msg.Type,
		Body:           msg.Body,
		MediaRef:       msg.MediaRef,
		CreatedAt:      msg.CreatedAt,
	})
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ConversationID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(MessageCreated)},
		},
	})
	return classify("publish_message", err)
}

// NoopEventPublisher used when no broker is configured
type NoopEventPublisher struct{}

// PublishMessage does nothing
func (NoopEventPublisher) PublishMessage(context.Context, domain.Message) error { return nil }
