package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"

	"github.com/google/uuid"
)

// watcher one live subscription; refresh publishes a fresh snapshot.
// mu serializes read+publish so the last delivery is never stale.
type watcher struct {
	mu      sync.Mutex
	key     string
	refresh func()
	done    <-chan struct{}
}

func (wt *watcher) run() {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	wt.refresh()
}

type watchers struct {
	mu   sync.Mutex
	list map[*watcher]struct{}
}

func (w *watchers) add(key string, done <-chan struct{}, refresh func()) {
	wt := &watcher{key: key, refresh: refresh, done: done}
	w.mu.Lock()
	if w.list == nil {
		w.list = make(map[*watcher]struct{})
	}
	w.list[wt] = struct{}{}
	w.mu.Unlock()

	go func() {
		<-done
		w.mu.Lock()
		delete(w.list, wt)
		w.mu.Unlock()
	}()
	wt.run()
}

// notify refresh every watcher on key; "" notifies all
func (w *watchers) notify(key string) {
	w.mu.Lock()
	var due []*watcher
	for wt := range w.list {
		if key == "" || wt.key == key {
			due = append(due, wt)
		}
	}
	w.mu.Unlock()
	for _, wt := range due {
		wt.run()
	}
}

// MemoryStore in-process PersistentStore for local development and tests
type MemoryStore struct {
	mu            sync.Mutex
	now           func() time.Time
	conversations map[string]*domain.Conversation
	members       map[string]map[string]*domain.ConversationMember
	messages      map[string][]domain.Message
	appendErr     error

	convWatchers   watchers
	msgWatchers    watchers
	memberWatchers watchers
}

// NewMemoryStore create MemoryStore, now defaults to time.Now
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:           now,
		conversations: make(map[string]*domain.Conversation),
		members:       make(map[string]map[string]*domain.ConversationMember),
		messages:      make(map[string][]domain.Message),
	}
}

// SetAppendError make every AppendMessage fail with err until reset with nil
func (s *MemoryStore) SetAppendError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

// GetConversation find conversation by id
func (s *MemoryStore) GetConversation(_ context.Context, conversationID string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, errprocess.Newf(errprocess.NotFound, "get_conversation", "conversation %s", conversationID)
	}
	return copyConversation(c), nil
}

// CreateConversation insert conversation and its member records
func (s *MemoryStore) CreateConversation(_ context.Context, conv *domain.Conversation, members []domain.ConversationMember) error {
	s.mu.Lock()
	if _, ok := s.conversations[conv.ID]; ok {
		s.mu.Unlock()
		return errprocess.Newf(errprocess.Invalid, "create_conversation", "conversation %s exists", conv.ID)
	}
	s.conversations[conv.ID] = copyConversation(conv)
	byUID := make(map[string]*domain.ConversationMember, len(members))
	for i := range members {
		m := members[i]
		byUID[m.UID] = &m
	}
	s.members[conv.ID] = byUID
	s.mu.Unlock()

	s.convWatchers.notify("")
	s.memberWatchers.notify(conv.ID)
	return nil
}

// FindPrivateConversation 1:1 conversation between exactly userA and userB
func (s *MemoryStore) FindPrivateConversation(_ context.Context, userA, userB string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.IsGroup || len(c.MemberIDs) != 2 {
			continue
		}
		if (c.MemberIDs[0] == userA && c.MemberIDs[1] == userB) || (c.MemberIDs[0] == userB && c.MemberIDs[1] == userA) {
			return copyConversation(c), nil
		}
	}
	return nil, errprocess.Newf(errprocess.NotFound, "find_private_conversation", "%s/%s", userA, userB)
}

// UpdateConversationLastMessage move the preview forward, ignoring older snapshots
func (s *MemoryStore) UpdateConversationLastMessage(_ context.Context, conversationID string, snap domain.LastMessageSnapshot) error {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return errprocess.Newf(errprocess.NotFound, "update_last_message", "conversation %s", conversationID)
	}
	if snap.CreatedAt.Before(c.LastMessageAt) {
		s.mu.Unlock()
		return nil
	}
	c.LastMessage = &snap
	c.LastMessageAt = snap.CreatedAt
	s.mu.Unlock()

	s.convWatchers.notify("")
	return nil
}

// SubscribeConversations conversations of uid, newest first
func (s *MemoryStore) SubscribeConversations(ctx context.Context, uid string, limit int) *Stream[[]domain.Conversation] {
	stream, sctx := NewStream[[]domain.Conversation](ctx)
	s.convWatchers.add(uid, sctx.Done(), func() {
		stream.Publish(s.conversationsOf(uid, limit))
	})
	return stream
}

func (s *MemoryStore) conversationsOf(uid string, limit int) []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Conversation, 0)
	for _, c := range s.conversations {
		for _, id := range c.MemberIDs {
			if id == uid {
				out = append(out, *copyConversation(c))
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SubscribeMessages newest limit messages ascending
func (s *MemoryStore) SubscribeMessages(ctx context.Context, conversationID string, limit int) *Stream[[]domain.Message] {
	stream, sctx := NewStream[[]domain.Message](ctx)
	s.msgWatchers.add(conversationID, sctx.Done(), func() {
		stream.Publish(s.messagesOf(conversationID, limit))
	})
	return stream
}

func (s *MemoryStore) messagesOf(conversationID string, limit int) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.messages[conversationID]
	out := make([]domain.Message, len(log))
	copy(out, log)
	// 插入順序即 store 順序
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// SubscribeMembers member records of the conversation
func (s *MemoryStore) SubscribeMembers(ctx context.Context, conversationID string) *Stream[[]domain.ConversationMember] {
	stream, sctx := NewStream[[]domain.ConversationMember](ctx)
	s.memberWatchers.add(conversationID, sctx.Done(), func() {
		stream.Publish(s.membersOf(conversationID))
	})
	return stream
}

func (s *MemoryStore) membersOf(conversationID string) []domain.ConversationMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ConversationMember, 0, len(s.members[conversationID]))
	for _, m := range s.members[conversationID] {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// AppendMessage persist draft, assigning the store id
func (s *MemoryStore) AppendMessage(_ context.Context, conversationID string, draft domain.MessageDraft) (*domain.Message, error) {
	s.mu.Lock()
	if s.appendErr != nil {
		err := s.appendErr
		s.mu.Unlock()
		return nil, classify("append_message", err)
	}
	if _, ok := s.conversations[conversationID]; !ok {
		s.mu.Unlock()
		return nil, errprocess.Newf(errprocess.NotFound, "append_message", "conversation %s", conversationID)
	}
	if _, ok := s.members[conversationID][draft.SenderID]; !ok {
		s.mu.Unlock()
		return nil, errprocess.Newf(errprocess.PermissionDenied, "append_message", "%s is not a member", draft.SenderID)
	}
	msg := draft.Echo()
	msg.ID = uuid.NewString()
	msg.ConversationID = conversationID
	msg.IsLocalEcho = false
	msg.DeliveryStatus = domain.StatusSent
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	s.mu.Unlock()

	s.msgWatchers.notify(conversationID)
	return &msg, nil
}

// UpdateMemberLastSeen lastSeenAt = max(lastSeenAt, now)
func (s *MemoryStore) UpdateMemberLastSeen(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	m, ok := s.members[conversationID][userID]
	if !ok {
		s.mu.Unlock()
		return errprocess.Newf(errprocess.NotFound, "update_member_last_seen", "%s in %s", userID, conversationID)
	}
	if now := s.now(); now.After(m.LastSeenAt) {
		m.LastSeenAt = now
	}
	s.mu.Unlock()

	s.memberWatchers.notify(conversationID)
	return nil
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	cp := *c
	cp.MemberIDs = append([]string(nil), c.MemberIDs...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	return &cp
}
