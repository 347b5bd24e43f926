package app

import (
	"context"
	"reflect"
	"sort"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// Session one open conversation. Every method runs on the engine loop;
// Close releases all subscriptions and timers before it returns.
type Session struct {
	id       string
	viewerID string
	loop     *EventLoop
	deps     Deps
	opts     Options
	sink     Sink
	log      *logger.LogInfo

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	messages *repository.Stream[[]domain.Message]
	members  *repository.Stream[[]domain.ConversationMember]
	typingSt *repository.Stream[[]string]
	presence *PresenceSubscriber
	typing   *TypingCoordinator
	pipeline *SendPipeline
	refresh  *Task

	conv           *domain.Conversation
	arena          *MessageArena
	memberByUID    map[string]domain.ConversationMember
	typingIDs      []string
	users          map[string]domain.User
	usersAsked     map[string]bool
	media          map[string]string
	mediaAsked     map[string]bool
	messagesLoaded bool
	metaLoaded     bool
	fatal          *domain.ErrorView
	messagesErr    bool
	membersErr     bool

	flushPending bool
	last         *domain.ViewModel
}

func newSession(id, viewerID string, loop *EventLoop, deps Deps, opts Options, sink Sink) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:          id,
		viewerID:    viewerID,
		loop:        loop,
		deps:        deps,
		opts:        opts,
		sink:        sink,
		log:         logger.Log.With(zap.String("conversation_id", id), zap.String("user_id", viewerID)),
		ctx:         ctx,
		cancel:      cancel,
		presence:    NewPresenceSubscriber(loop, deps.Ephemeral),
		typing:      NewTypingCoordinator(loop, deps.Clock, deps.Ephemeral, id, viewerID, opts.TypingIdle, opts.RequestTimeout),
		pipeline:    NewSendPipeline(loop, deps.Clock, deps.Store, deps.Events, opts.RequestTimeout),
		refresh:     NewTask("refresh:"+id, deps.Clock, loop),
		arena:       NewMessageArena(),
		memberByUID: make(map[string]domain.ConversationMember),
		users:       make(map[string]domain.User),
		usersAsked:  make(map[string]bool),
		media:       make(map[string]string),
		mediaAsked:  make(map[string]bool),
	}
}

// ID conversation id
func (s *Session) ID() string { return s.id }

// open start subscriptions and the initial fetches
func (s *Session) open() {
	s.log.Debug("session open")

	s.messages = s.deps.Store.SubscribeMessages(s.ctx, s.id, s.opts.MessageLimit)
	follow(s.loop, s.messages, s.onMessages, func(err error) {
		s.messagesErr = true
		s.subscriptionFailed("messages", err)
	})

	s.members = s.deps.Store.SubscribeMembers(s.ctx, s.id)
	follow(s.loop, s.members, s.onMembers, func(err error) {
		s.membersErr = true
		s.subscriptionFailed("members", err)
	})

	s.typingSt = s.deps.Ephemeral.SubscribeTyping(s.ctx, s.id)
	follow(s.loop, s.typingSt, s.onTyping, func(err error) {
		s.log.Warn("typing subscription failed", zap.Error(err))
	})

	s.markSeen()
	s.background("touch_last_active", func(ctx context.Context) error {
		return s.deps.Users.TouchLastActive(ctx, s.viewerID)
	})
	s.fetchMetadata()
	s.scheduleRefresh()
	s.markDirty()
}

// Close tear down everything the session owns
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.messages != nil {
		s.messages.Close()
	}
	if s.members != nil {
		s.members.Close()
	}
	if s.typingSt != nil {
		s.typingSt.Close()
	}
	s.presence.Stop()
	s.refresh.Cancel()
	s.typing.Stop()
	s.cancel()
	s.log.Debug("session closed")
}

// InputChanged composer text changed
func (s *Session) InputChanged(text string) {
	if s.closed {
		return
	}
	s.typing.InputChanged(text)
}

// Send start an optimistic send
func (s *Session) Send(text string) (string, error) {
	if s.closed {
		return "", errprocess.Newf(errprocess.Invalid, "send", "session closed")
	}
	return s.pipeline.Send(s.id, s.viewerID, text, SendHooks{
		Echo: func(m domain.Message) {
			s.arena.AddEcho(m)
			s.typing.MessageSent()
			s.markDirty()
		},
		Confirmed: func(localID string, m domain.Message) {
			if s.closed {
				return
			}
			s.arena.Confirm(localID, m)
			s.markDirty()
		},
		Failed: func(f domain.SendFailure) {
			if s.closed {
				return
			}
			s.arena.Remove(f.LocalID)
			s.markDirty()
			s.sink.SendFailed(f)
		},
	})
}

// SetFocus regaining focus marks the conversation seen
func (s *Session) SetFocus(focused bool) {
	if s.closed {
		return
	}
	if focused {
		s.markSeen()
		return
	}
	s.typing.Blur()
}

func (s *Session) markSeen() {
	s.background("update_last_seen", func(ctx context.Context) error {
		return s.deps.Store.UpdateMemberLastSeen(ctx, s.id, s.viewerID)
	})
}

// background fire-and-forget store call, failures only logged
func (s *Session) background(op string, call func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.RequestTimeout)
		defer cancel()
		if err := call(ctx); err != nil && s.ctx.Err() == nil {
			s.log.Warn("background call failed", zap.String("op", op), zap.Error(err))
		}
	}()
}

func (s *Session) fetchMetadata() {
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.RequestTimeout)
		defer cancel()
		conv, err := s.deps.Store.GetConversation(ctx, s.id)
		s.loop.Post(func() {
			if s.closed {
				return
			}
			s.metaLoaded = true
			if err != nil {
				s.log.Error("get conversation failed", zap.String("kind", errprocess.KindOf(err).String()), zap.Error(err))
				kind := errprocess.KindOf(err)
				if kind != errprocess.NotFound && kind != errprocess.PermissionDenied {
					kind = errprocess.Unknown
				}
				s.fatal = errorView(kind)
				s.markDirty()
				return
			}
			s.conv = conv
			s.ensureUsers(conv.MemberIDs)
			if peer, ok := conv.PeerOf(s.viewerID); ok {
				s.presence.Start(s.ctx, peer, s.markDirty)
			}
			s.markDirty()
		})
	}()
}

func (s *Session) onMessages(msgs []domain.Message) {
	s.messagesLoaded = true
	s.messagesErr = false
	s.arena.SetSnapshot(msgs)

	senders := make([]string, 0, len(msgs))
	for _, m := range msgs {
		senders = append(senders, m.SenderID)
		if m.MediaRef != "" {
			s.ensureMedia(m.MediaRef)
		}
	}
	s.ensureUsers(senders)
	s.markDirty()
}

// onMembers lastSeenAt never moves backwards, whatever order snapshots arrive in
func (s *Session) onMembers(members []domain.ConversationMember) {
	s.membersErr = false
	next := make(map[string]domain.ConversationMember, len(members))
	for _, m := range members {
		if prev, ok := s.memberByUID[m.UID]; ok && prev.LastSeenAt.After(m.LastSeenAt) {
			m.LastSeenAt = prev.LastSeenAt
		}
		next[m.UID] = m
	}
	s.memberByUID = next
	s.markDirty()
}

func (s *Session) onTyping(ids []string) {
	s.typingIDs = ids
	s.ensureUsers(ids)
	s.markDirty()
}

func (s *Session) subscriptionFailed(stream string, err error) {
	s.log.Warn("subscription failed", zap.String("stream", stream), zap.Error(err))
	s.markDirty()
}

func (s *Session) ensureUsers(uids []string) {
	missing := make([]string, 0)
	for _, uid := range uids {
		if uid == "" || s.usersAsked[uid] {
			continue
		}
		s.usersAsked[uid] = true
		missing = append(missing, uid)
	}
	if len(missing) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.RequestTimeout)
		defer cancel()
		users, err := s.deps.Users.GetUsers(ctx, missing)
		s.loop.Post(func() {
			if s.closed {
				return
			}
			if err != nil {
				s.log.Warn("get users failed", zap.Error(err))
				// ask again on the next delivery
				for _, uid := range missing {
					delete(s.usersAsked, uid)
				}
				return
			}
			for uid, u := range users {
				s.users[uid] = u
			}
			s.markDirty()
		})
	}()
}

func (s *Session) ensureMedia(ref string) {
	if s.mediaAsked[ref] {
		return
	}
	s.mediaAsked[ref] = true
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.RequestTimeout)
		defer cancel()
		url, err := s.deps.Media.ResolveURL(ctx, ref)
		s.loop.Post(func() {
			if s.closed {
				return
			}
			if err != nil {
				s.log.Warn("resolve media failed", zap.String("ref", ref), zap.Error(err))
				delete(s.mediaAsked, ref)
				return
			}
			s.media[ref] = url
			s.markDirty()
		})
	}()
}

func (s *Session) scheduleRefresh() {
	s.refresh.Schedule(s.opts.RefreshInterval, func() {
		if s.closed {
			return
		}
		s.markDirty()
		s.scheduleRefresh()
	})
}

// markDirty coalesce every change made before the loop gets back to us
func (s *Session) markDirty() {
	if s.flushPending || s.closed {
		return
	}
	s.flushPending = true
	s.loop.Post(s.flush)
}

func (s *Session) flush() {
	s.flushPending = false
	if s.closed {
		return
	}
	vm := buildViewModel(s.snapshot())
	if s.last != nil && reflect.DeepEqual(*s.last, vm) {
		return
	}
	s.last = &vm
	s.sink.ViewModel(vm)
}

func (s *Session) snapshot() sessionView {
	members := make([]domain.ConversationMember, 0, len(s.memberByUID))
	for _, m := range s.memberByUID {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UID < members[j].UID })

	var banner *domain.ErrorView
	if s.messagesErr || s.membersErr {
		banner = errorView(errprocess.SubscriptionError)
	}
	return sessionView{
		conversationID: s.id,
		viewerID:       s.viewerID,
		conv:           s.conv,
		messages:       s.arena.Messages(),
		members:        members,
		typingIDs:      s.typingIDs,
		users:          s.users,
		media:          s.media,
		presence:       s.presence.Caption(s.deps.Clock.Now()),
		loading:        s.fatal == nil && (!s.messagesLoaded || !s.metaLoaded),
		err:            s.fatal,
		banner:         banner,
		now:            s.deps.Clock.Now(),
		loc:            s.opts.Location,
	}
}
