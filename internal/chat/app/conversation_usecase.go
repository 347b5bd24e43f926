package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg"
	errprocess "chat_sync_service/pkg/err"
)

// ConversationUseCase - 建立聊天室 (群組或 1對1)
type ConversationUseCase struct {
	store repository.PersistentStore
	now   func() time.Time
}

// NewConversationUseCase init conversation use case
func NewConversationUseCase(store repository.PersistentStore, now func() time.Time) *ConversationUseCase {
	if now == nil {
		now = time.Now
	}
	return &ConversationUseCase{store: store, now: now}
}

// CreateConversation create a conversation plus one member record per
// participant; a 1:1 between the same two users is reused
func (uc *ConversationUseCase) CreateConversation(
	ctx context.Context,
	creatorID string,
	isGroup bool,
	title string,
	memberIDs []string,
) (string, error) {
	members := uniqueMembers(creatorID, memberIDs)

	if !isGroup {
		if len(members) != 2 {
			return "", errprocess.Newf(errprocess.Invalid, "create_conversation", "private conversation must have exactly 2 members")
		}
		// 已存在(A,B)的 1對1 就直接沿用
		existing, err := uc.store.FindPrivateConversation(ctx, members[0], members[1])
		if err == nil && existing != nil {
			return existing.ID, nil
		}
		if err != nil && !errprocess.Is(err, errprocess.NotFound) {
			return "", err
		}
		title = ""
	} else if len(members) < 2 {
		return "", errprocess.Newf(errprocess.Invalid, "create_conversation", "group needs at least 2 members")
	}

	now := uc.now().UTC().Truncate(time.Millisecond)
	conv := &domain.Conversation{
		ID:            uuid.New().String(),
		IsGroup:       isGroup,
		Title:         strings.TrimSpace(title),
		MemberIDs:     members,
		CreatedBy:     creatorID,
		CreatedAt:     now,
		LastMessageAt: now, // 新聊天室排在列表最前面
	}

	records := make([]domain.ConversationMember, 0, len(members))
	for _, uid := range members {
		records = append(records, domain.ConversationMember{
			ConversationID: conv.ID,
			UID:            uid,
			JoinedAt:       now,
			LastSeenAt:     now,
		})
	}

	if err := uc.store.CreateConversation(ctx, conv, records); err != nil {
		return "", err
	}
	return conv.ID, nil
}

// uniqueMembers creator first, duplicates and blanks dropped
func uniqueMembers(creatorID string, ids []string) []string {
	return pkg.UniqueIDs(append([]string{creatorID}, ids...)...)
}
