package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"
)

// MemoryEphemeralStore in-process EphemeralStore. Entries live until cleared;
// the websocket handler clears them when a connection drops.
type MemoryEphemeralStore struct {
	mu       sync.Mutex
	now      func() time.Time
	typing   map[string]map[string]time.Time
	presence map[string]domain.PresenceState

	typingWatchers   watchers
	presenceWatchers watchers
}

// NewMemoryEphemeralStore create MemoryEphemeralStore
func NewMemoryEphemeralStore(now func() time.Time) *MemoryEphemeralStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryEphemeralStore{
		now:      now,
		typing:   make(map[string]map[string]time.Time),
		presence: make(map[string]domain.PresenceState),
	}
}

// SubscribeTyping sorted ids of users typing in the conversation
func (s *MemoryEphemeralStore) SubscribeTyping(ctx context.Context, conversationID string) *Stream[[]string] {
	stream, sctx := NewStream[[]string](ctx)
	s.typingWatchers.add(conversationID, sctx.Done(), func() {
		stream.Publish(s.typingOf(conversationID))
	})
	return stream
}

func (s *MemoryEphemeralStore) typingOf(conversationID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.typing[conversationID]))
	for uid := range s.typing[conversationID] {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

// SetTyping mark userID typing
func (s *MemoryEphemeralStore) SetTyping(_ context.Context, conversationID, userID string) error {
	if conversationID == "" || userID == "" {
		return errprocess.Newf(errprocess.Invalid, "set_typing", "empty key")
	}
	s.mu.Lock()
	if s.typing[conversationID] == nil {
		s.typing[conversationID] = make(map[string]time.Time)
	}
	s.typing[conversationID][userID] = s.now()
	s.mu.Unlock()

	s.typingWatchers.notify(conversationID)
	return nil
}

// ClearTyping no-op when userID is not typing
func (s *MemoryEphemeralStore) ClearTyping(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	_, ok := s.typing[conversationID][userID]
	delete(s.typing[conversationID], userID)
	s.mu.Unlock()

	if ok {
		s.typingWatchers.notify(conversationID)
	}
	return nil
}

// SubscribePresence presence of userID
func (s *MemoryEphemeralStore) SubscribePresence(ctx context.Context, userID string) *Stream[domain.PresenceState] {
	stream, sctx := NewStream[domain.PresenceState](ctx)
	s.presenceWatchers.add(userID, sctx.Done(), func() {
		s.mu.Lock()
		p, ok := s.presence[userID]
		s.mu.Unlock()
		if !ok {
			p = domain.PresenceState{UserID: userID}
		}
		stream.Publish(p)
	})
	return stream
}

// SetOnline mark userID online
func (s *MemoryEphemeralStore) SetOnline(_ context.Context, userID string) error {
	s.mu.Lock()
	s.presence[userID] = domain.PresenceState{UserID: userID, Online: true, LastSeen: s.now()}
	s.mu.Unlock()
	s.presenceWatchers.notify(userID)
	return nil
}

// SetOffline mark userID offline, lastSeen = now
func (s *MemoryEphemeralStore) SetOffline(_ context.Context, userID string) error {
	s.mu.Lock()
	s.presence[userID] = domain.PresenceState{UserID: userID, Online: false, LastSeen: s.now()}
	s.mu.Unlock()
	s.presenceWatchers.notify(userID)
	return nil
}

// MemoryUserDirectory in-process UserDirectory
type MemoryUserDirectory struct {
	mu    sync.Mutex
	now   func() time.Time
	users map[string]domain.User
}

// NewMemoryUserDirectory create MemoryUserDirectory
func NewMemoryUserDirectory(now func() time.Time) *MemoryUserDirectory {
	if now == nil {
		now = time.Now
	}
	return &MemoryUserDirectory{now: now, users: make(map[string]domain.User)}
}

// GetUsers unknown uids are omitted
func (d *MemoryUserDirectory) GetUsers(_ context.Context, uids []string) (map[string]domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]domain.User, len(uids))
	for _, uid := range uids {
		if u, ok := d.users[uid]; ok {
			out[uid] = u
		}
	}
	return out, nil
}

// UpsertUser insert or replace profile fields
func (d *MemoryUserDirectory) UpsertUser(_ context.Context, user domain.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.users[user.UID]; ok {
		user.CreatedAt = old.CreatedAt
		user.LastActiveAt = old.LastActiveAt
	} else {
		if user.CreatedAt.IsZero() {
			user.CreatedAt = d.now()
		}
		if user.LastActiveAt.IsZero() {
			user.LastActiveAt = user.CreatedAt
		}
	}
	d.users[user.UID] = user
	return nil
}

// TouchLastActive lastActiveAt = now
func (d *MemoryUserDirectory) TouchLastActive(_ context.Context, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[uid]
	if !ok {
		return errprocess.Newf(errprocess.NotFound, "touch_last_active", "user %s", uid)
	}
	if now := d.now(); now.After(u.LastActiveAt) {
		u.LastActiveAt = now
	}
	d.users[uid] = u
	return nil
}
