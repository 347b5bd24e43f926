package app

import (
	"context"
	"reflect"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// ConversationList the viewer's conversations, newest activity first. Loop only.
type ConversationList struct {
	viewerID string
	loop     *EventLoop
	deps     Deps
	opts     Options
	sink     Sink
	log      *logger.LogInfo

	ctx     context.Context
	cancel  context.CancelFunc
	stream  *repository.Stream[[]domain.Conversation]
	refresh *Task
	stopped bool

	convs      []domain.Conversation
	users      map[string]domain.User
	usersAsked map[string]bool

	flushPending bool
	last         []domain.ConversationSummary
	loaded       bool
}

func newConversationList(viewerID string, loop *EventLoop, deps Deps, opts Options, sink Sink) *ConversationList {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConversationList{
		viewerID:   viewerID,
		loop:       loop,
		deps:       deps,
		opts:       opts,
		sink:       sink,
		log:        logger.Log.With(zap.String("user_id", viewerID)),
		ctx:        ctx,
		cancel:     cancel,
		refresh:    NewTask("conversation-list-refresh", deps.Clock, loop),
		users:      make(map[string]domain.User),
		usersAsked: make(map[string]bool),
	}
}

func (l *ConversationList) start() {
	l.stream = l.deps.Store.SubscribeConversations(l.ctx, l.viewerID, l.opts.PageSize)
	follow(l.loop, l.stream, l.onConversations, func(err error) {
		l.log.Warn("conversation subscription failed", zap.Error(err))
	})
	l.scheduleRefresh()
}

// Stop unsubscribe
func (l *ConversationList) Stop() {
	if l.stopped {
		return
	}
	l.stopped = true
	if l.stream != nil {
		l.stream.Close()
	}
	l.refresh.Cancel()
	l.cancel()
}

func (l *ConversationList) onConversations(convs []domain.Conversation) {
	l.convs = convs
	l.loaded = true
	peers := make([]string, 0, len(convs))
	for i := range convs {
		if peer, ok := convs[i].PeerOf(l.viewerID); ok {
			peers = append(peers, peer)
		}
	}
	l.ensureUsers(peers)
	l.markDirty()
}

func (l *ConversationList) ensureUsers(uids []string) {
	missing := make([]string, 0)
	for _, uid := range uids {
		if !l.usersAsked[uid] {
			l.usersAsked[uid] = true
			missing = append(missing, uid)
		}
	}
	if len(missing) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(l.ctx, l.opts.RequestTimeout)
		defer cancel()
		users, err := l.deps.Users.GetUsers(ctx, missing)
		l.loop.Post(func() {
			if l.stopped {
				return
			}
			if err != nil {
				l.log.Warn("get users failed", zap.Error(err))
				for _, uid := range missing {
					delete(l.usersAsked, uid)
				}
				return
			}
			for uid, u := range users {
				l.users[uid] = u
			}
			l.markDirty()
		})
	}()
}

func (l *ConversationList) scheduleRefresh() {
	l.refresh.Schedule(l.opts.RefreshInterval, func() {
		if l.stopped {
			return
		}
		l.markDirty()
		l.scheduleRefresh()
	})
}

func (l *ConversationList) markDirty() {
	if l.flushPending || l.stopped || !l.loaded {
		return
	}
	l.flushPending = true
	l.loop.Post(l.flush)
}

func (l *ConversationList) flush() {
	l.flushPending = false
	if l.stopped {
		return
	}
	list := buildSummaries(l.convs, l.viewerID, l.users, l.deps.Clock.Now(), l.opts.Location)
	if l.last != nil && reflect.DeepEqual(l.last, list) {
		return
	}
	l.last = list
	l.sink.Conversations(list)
}
