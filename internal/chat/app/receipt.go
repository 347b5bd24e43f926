package app

import "chat_sync_service/internal/chat/domain"

// IsRead every member other than the sender has seen the message.
// No other member (list not loaded yet) means unread.
func IsRead(msg domain.Message, members []domain.ConversationMember) bool {
	others := 0
	for _, m := range members {
		if m.UID == msg.SenderID {
			continue
		}
		others++
		if m.LastSeenAt.Before(msg.CreatedAt) {
			return false
		}
	}
	return others > 0
}
