package app

import (
	"context"
	"strings"
	"time"

	"chat_sync_service/internal/chat/repository"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// TypingCoordinator local Idle/Typing machine of one user in one conversation.
//
// All methods run on the engine loop. Store writes go through a private
// serial worker so a set and the clear that follows it reach the store in
// order without ever blocking the loop.
type TypingCoordinator struct {
	conversationID string
	userID         string
	store          repository.EphemeralStore
	idle           time.Duration
	timeout        time.Duration
	timer          *Task
	worker         *EventLoop
	typing         bool
	stopped        bool
	log            *logger.LogInfo
}

// NewTypingCoordinator create TypingCoordinator and start its publish worker
func NewTypingCoordinator(
	loop *EventLoop,
	clock Clock,
	store repository.EphemeralStore,
	conversationID, userID string,
	idle, timeout time.Duration,
) *TypingCoordinator {
	tc := &TypingCoordinator{
		conversationID: conversationID,
		userID:         userID,
		store:          store,
		idle:           idle,
		timeout:        timeout,
		timer:          NewTask("typing-idle:"+conversationID, clock, loop),
		worker:         NewEventLoop(),
		log: logger.Log.With(
			zap.String("conversation_id", conversationID),
			zap.String("user_id", userID),
		),
	}
	go tc.worker.Run(context.Background())
	return tc
}

// Typing current state
func (tc *TypingCoordinator) Typing() bool { return tc.typing }

// InputChanged keystroke; whitespace-only input counts as empty
func (tc *TypingCoordinator) InputChanged(text string) {
	if tc.stopped {
		return
	}
	if strings.TrimSpace(text) == "" {
		tc.toIdle()
		return
	}
	if !tc.typing {
		tc.typing = true
		tc.publish("set_typing", tc.store.SetTyping)
	}
	tc.timer.Schedule(tc.idle, tc.toIdle)
}

// Blur screen lost focus
func (tc *TypingCoordinator) Blur() { tc.toIdle() }

// MessageSent the sender's own typing state is always cleared
func (tc *TypingCoordinator) MessageSent() {
	if tc.stopped {
		return
	}
	tc.timer.Cancel()
	tc.typing = false
	tc.publish("clear_typing", tc.store.ClearTyping)
}

// Stop session teardown: exactly one clear, then ignore everything
func (tc *TypingCoordinator) Stop() {
	if tc.stopped {
		return
	}
	tc.timer.Cancel()
	tc.typing = false
	tc.publish("clear_typing", tc.store.ClearTyping)
	tc.stopped = true
	tc.worker.Close()
}

func (tc *TypingCoordinator) toIdle() {
	if tc.stopped {
		return
	}
	tc.timer.Cancel()
	if !tc.typing {
		return
	}
	tc.typing = false
	tc.publish("clear_typing", tc.store.ClearTyping)
}

// publish best-effort, failures are logged only
func (tc *TypingCoordinator) publish(op string, call func(ctx context.Context, conversationID, userID string) error) {
	cid, uid, timeout := tc.conversationID, tc.userID, tc.timeout
	tc.worker.Post(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := call(ctx, cid, uid); err != nil {
			tc.log.Warn("typing publish failed",
				zap.String("op", op),
				zap.String("kind", errprocess.CleanupFailure.String()),
				zap.Error(err),
			)
		}
	})
}
