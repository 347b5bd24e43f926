package app

import (
	"context"
	"strings"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SendHooks session side of a send. All hooks run on the loop.
type SendHooks struct {
	// Echo the optimistic copy, called before Send returns
	Echo func(domain.Message)
	// Confirmed the store accepted the draft
	Confirmed func(localID string, msg domain.Message)
	// Failed the echo must be rolled back and the text restored
	Failed func(domain.SendFailure)
}

// SendPipeline optimistic send: echo now, persist in the background
type SendPipeline struct {
	loop     *EventLoop
	clock    Clock
	store    repository.PersistentStore
	events   repository.EventPublisher
	validate *validator.Validate
	timeout  time.Duration
}

// NewSendPipeline create SendPipeline
func NewSendPipeline(
	loop *EventLoop,
	clock Clock,
	store repository.PersistentStore,
	events repository.EventPublisher,
	timeout time.Duration,
) *SendPipeline {
	return &SendPipeline{
		loop:     loop,
		clock:    clock,
		store:    store,
		events:   events,
		validate: validator.New(),
		timeout:  timeout,
	}
}

// Send validate text and start the send; returns the echo's local id.
// Invalid input never produces an echo.
func (p *SendPipeline) Send(conversationID, senderID, text string, hooks SendHooks) (string, error) {
	body := strings.TrimSpace(text)
	if body == "" {
		return "", errprocess.Newf(errprocess.Invalid, "send", "empty message")
	}

	draft := domain.MessageDraft{
		LocalID:        uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           domain.MessageText,
		Body:           body,
		CreatedAt:      p.clock.Now().UTC().Truncate(time.Millisecond),
	}
	if err := p.validate.Struct(draft); err != nil {
		return "", errprocess.New(errprocess.Invalid, "send", err)
	}

	hooks.Echo(draft.Echo())
	go p.persist(draft, text, hooks)
	return draft.LocalID, nil
}

// persist runs off the loop and detached from the session: a closed session
// still gets its message stored, it just no longer hears about it.
func (p *SendPipeline) persist(draft domain.MessageDraft, original string, hooks SendHooks) {
	log := logger.Log.With(
		zap.String("conversation_id", draft.ConversationID),
		zap.String("local_id", draft.LocalID),
	)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	msg, err := p.store.AppendMessage(ctx, draft.ConversationID, draft)
	if err != nil {
		log.Error("append message failed", zap.String("kind", errprocess.KindOf(err).String()), zap.Error(err))
		failure := domain.SendFailure{
			ConversationID: draft.ConversationID,
			LocalID:        draft.LocalID,
			Text:           original,
			Error:          sendErrorView(err),
		}
		p.loop.Post(func() { hooks.Failed(failure) })
		return
	}

	confirmed := *msg
	p.loop.Post(func() { hooks.Confirmed(draft.LocalID, confirmed) })

	if err := p.store.UpdateConversationLastMessage(ctx, draft.ConversationID, confirmed.Snapshot()); err != nil {
		log.Warn("update last message failed", zap.Error(err))
	}
	if err := p.events.PublishMessage(ctx, confirmed); err != nil {
		log.Warn("publish message event failed", zap.Error(err))
	}
}
