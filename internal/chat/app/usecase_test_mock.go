package app

import (
	"context"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"

	"github.com/stretchr/testify/mock"
)

// MockPersistentStore Mock PersistentStore
type MockPersistentStore struct {
	mock.Mock
}

// GetConversation moke get conversation by id
func (m *MockPersistentStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// CreateConversation moke create conversation
func (m *MockPersistentStore) CreateConversation(ctx context.Context, conv *domain.Conversation, members []domain.ConversationMember) error {
	args := m.Called(ctx, conv, members)
	return args.Error(0)
}

// FindPrivateConversation moke find one private conversation
func (m *MockPersistentStore) FindPrivateConversation(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateConversationLastMessage moke update last message
func (m *MockPersistentStore) UpdateConversationLastMessage(ctx context.Context, conversationID string, snap domain.LastMessageSnapshot) error {
	args := m.Called(ctx, conversationID, snap)
	return args.Error(0)
}

// SubscribeConversations moke subscribe conversations
func (m *MockPersistentStore) SubscribeConversations(ctx context.Context, uid string, limit int) *repository.Stream[[]domain.Conversation] {
	args := m.Called(ctx, uid, limit)
	return args.Get(0).(*repository.Stream[[]domain.Conversation])
}

// SubscribeMessages moke subscribe messages
func (m *MockPersistentStore) SubscribeMessages(ctx context.Context, conversationID string, limit int) *repository.Stream[[]domain.Message] {
	args := m.Called(ctx, conversationID, limit)
	return args.Get(0).(*repository.Stream[[]domain.Message])
}

// SubscribeMembers moke subscribe members
func (m *MockPersistentStore) SubscribeMembers(ctx context.Context, conversationID string) *repository.Stream[[]domain.ConversationMember] {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(*repository.Stream[[]domain.ConversationMember])
}

// AppendMessage moke append message
func (m *MockPersistentStore) AppendMessage(ctx context.Context, conversationID string, draft domain.MessageDraft) (*domain.Message, error) {
	args := m.Called(ctx, conversationID, draft)
	if fn, ok := args.Get(0).(func(context.Context, string, domain.MessageDraft) *domain.Message); ok {
		return fn(ctx, conversationID, draft), args.Error(1)
	}
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateMemberLastSeen moke update member last seen
func (m *MockPersistentStore) UpdateMemberLastSeen(ctx context.Context, conversationID, userID string) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}
