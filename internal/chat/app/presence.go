package app

import (
	"context"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// PresenceSubscriber follows one peer's presence. Loop only.
type PresenceSubscriber struct {
	loop   *EventLoop
	store  repository.EphemeralStore
	peerID string
	stream *repository.Stream[domain.PresenceState]
	state  *domain.PresenceState
}

// NewPresenceSubscriber create PresenceSubscriber
func NewPresenceSubscriber(loop *EventLoop, store repository.EphemeralStore) *PresenceSubscriber {
	return &PresenceSubscriber{loop: loop, store: store}
}

// Start subscribe to peerID; onChange runs on the loop after each delivery.
// Empty peerID (group conversation) is a no-op.
func (p *PresenceSubscriber) Start(ctx context.Context, peerID string, onChange func()) {
	if peerID == "" || p.stream != nil {
		return
	}
	p.peerID = peerID
	p.stream = p.store.SubscribePresence(ctx, peerID)
	follow(p.loop, p.stream,
		func(st domain.PresenceState) {
			p.state = &st
			onChange()
		},
		func(err error) {
			logger.Log.Warn("presence subscription failed", zap.String("user_id", peerID), zap.Error(err))
		},
	)
}

// Stop unsubscribe and forget the last state
func (p *PresenceSubscriber) Stop() {
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
	p.state = nil
	p.peerID = ""
}

// PeerID followed user, empty if none
func (p *PresenceSubscriber) PeerID() string { return p.peerID }

// Caption empty until the first snapshot arrives
func (p *PresenceSubscriber) Caption(now time.Time) string {
	if p.state == nil {
		return ""
	}
	return PresenceCaption(now, *p.state)
}
