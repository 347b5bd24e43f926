package app

import (
	"time"

	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"
)

var kindMessages = map[errprocess.Kind]string{
	errprocess.NotFound:           "conversation not found",
	errprocess.PermissionDenied:   "you do not have access to this conversation",
	errprocess.NetworkUnavailable: "network unavailable",
	errprocess.SubscriptionError:  "live updates interrupted, retrying",
	errprocess.Invalid:            "invalid request",
}

// errorView never carries the raw error text
func errorView(kind errprocess.Kind) *domain.ErrorView {
	msg, ok := kindMessages[kind]
	if !ok {
		msg = "something went wrong"
	}
	return &domain.ErrorView{Kind: kind.String(), Message: msg}
}

func sendErrorView(err error) domain.ErrorView {
	msg := "message not sent"
	switch errprocess.KindOf(err) {
	case errprocess.NetworkUnavailable:
		msg = "message not sent: network unavailable"
	case errprocess.PermissionDenied:
		msg = "message not sent: you cannot post to this conversation"
	case errprocess.NotFound:
		msg = "message not sent: conversation not found"
	}
	return domain.ErrorView{Kind: errprocess.SendFailure.String(), Message: msg}
}

// sessionView everything a render needs, copied out of the session
type sessionView struct {
	conversationID string
	viewerID       string
	conv           *domain.Conversation
	messages       []domain.Message
	members        []domain.ConversationMember
	typingIDs      []string
	users          map[string]domain.User
	media          map[string]string
	presence       string
	loading        bool
	err            *domain.ErrorView
	banner         *domain.ErrorView
	now            time.Time
	loc            *time.Location
}

func buildViewModel(in sessionView) domain.ViewModel {
	vm := domain.ViewModel{
		ConversationID: in.conversationID,
		Messages:       make([]domain.MessageView, 0, len(in.messages)),
		Loading:        in.loading,
		Error:          in.err,
		Banner:         in.banner,
	}
	if in.conv != nil {
		vm.Title = Title(in.conv, in.viewerID, in.users)
		vm.IsGroup = in.conv.IsGroup
		if !in.conv.IsGroup {
			vm.PresenceCaption = in.presence
		}
	}

	for _, m := range in.messages {
		own := m.SenderID == in.viewerID
		view := domain.MessageView{
			ID:                 logicalID(m),
			StoreID:            m.ID,
			SenderID:           m.SenderID,
			SenderDisplayName:  displayName(in.users, m.SenderID),
			ShowSenderName:     vm.IsGroup && !own,
			Type:               m.Type,
			Body:               m.Body,
			MediaURL:           in.media[m.MediaRef],
			CreatedAt:          m.CreatedAt,
			FormattedTimestamp: MessageTimestamp(in.now, m.CreatedAt, in.loc),
			DeliveryStatus:     m.DeliveryStatus,
			IsOwn:              own,
			IsLocalEcho:        m.IsLocalEcho,
		}
		// read status only for the viewer's own confirmed messages
		if own {
			view.Read = !m.IsLocalEcho && IsRead(m, in.members)
			view.StatusGlyph = StatusGlyph(m.DeliveryStatus, view.Read)
		}
		vm.Messages = append(vm.Messages, view)
	}

	names := make([]string, 0, len(in.typingIDs))
	for _, uid := range in.typingIDs {
		if uid == in.viewerID {
			continue
		}
		names = append(names, displayName(in.users, uid))
	}
	vm.TypingCaption = TypingCaption(names)
	return vm
}

func buildSummaries(
	convs []domain.Conversation,
	viewerID string,
	users map[string]domain.User,
	now time.Time,
	loc *time.Location,
) []domain.ConversationSummary {
	out := make([]domain.ConversationSummary, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		s := domain.ConversationSummary{
			ID:            c.ID,
			IsGroup:       c.IsGroup,
			Title:         Title(c, viewerID, users),
			Preview:       Preview(c.LastMessage, viewerID),
			Timestamp:     ListTimestamp(now, c.LastMessageAt, loc),
			LastMessageAt: c.LastMessageAt,
		}
		if peer, ok := c.PeerOf(viewerID); ok {
			s.PhotoURL = users[peer].PhotoURL
		}
		out = append(out, s)
	}
	return out
}
