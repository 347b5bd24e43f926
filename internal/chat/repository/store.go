package repository

import (
	"context"

	"chat_sync_service/internal/chat/domain"
)

// PersistentStore durable conversations, members and ordered message logs.
// Subscriptions deliver an initial snapshot followed by a fresh snapshot on
// every change; errors are classified errprocess errors.
type PersistentStore interface {
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	CreateConversation(ctx context.Context, conv *domain.Conversation, members []domain.ConversationMember) error
	FindPrivateConversation(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	UpdateConversationLastMessage(ctx context.Context, conversationID string, snap domain.LastMessageSnapshot) error

	// SubscribeConversations conversations containing uid, newest lastMessageAt first
	SubscribeConversations(ctx context.Context, uid string, limit int) *Stream[[]domain.Conversation]
	// SubscribeMessages the newest limit messages, ordered createdAt ascending
	SubscribeMessages(ctx context.Context, conversationID string, limit int) *Stream[[]domain.Message]
	SubscribeMembers(ctx context.Context, conversationID string) *Stream[[]domain.ConversationMember]

	AppendMessage(ctx context.Context, conversationID string, draft domain.MessageDraft) (*domain.Message, error)
	// UpdateMemberLastSeen move lastSeenAt to the store's now, never backwards
	UpdateMemberLastSeen(ctx context.Context, conversationID, userID string) error
}

// EphemeralStore typing and presence. Entries disappear on their own when the
// writer disconnects.
type EphemeralStore interface {
	// SubscribeTyping the set of typing user ids, sorted
	SubscribeTyping(ctx context.Context, conversationID string) *Stream[[]string]
	SetTyping(ctx context.Context, conversationID, userID string) error
	// ClearTyping is a no-op when the user is not typing
	ClearTyping(ctx context.Context, conversationID, userID string) error

	SubscribePresence(ctx context.Context, userID string) *Stream[domain.PresenceState]
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

// UserDirectory display names and avatars
type UserDirectory interface {
	GetUsers(ctx context.Context, uids []string) (map[string]domain.User, error)
	UpsertUser(ctx context.Context, user domain.User) error
	TouchLastActive(ctx context.Context, uid string) error
}

// EventPublisher fan out confirmed messages to external collaborators
type EventPublisher interface {
	PublishMessage(ctx context.Context, msg domain.Message) error
}

// MediaResolver turn a media reference into a URL the client can load
type MediaResolver interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}
