package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seedConversation(t *testing.T, s *MemoryStore, id string, members ...string) {
	conv := &domain.Conversation{ID: id, MemberIDs: members, CreatedBy: members[0], CreatedAt: t0}
	var ms []domain.ConversationMember
	for _, uid := range members {
		ms = append(ms, domain.ConversationMember{ConversationID: id, UID: uid, JoinedAt: t0, LastSeenAt: t0})
	}
	require.NoError(t, s.CreateConversation(context.Background(), conv, ms))
}

func draft(cid, sender, body string, at time.Time) domain.MessageDraft {
	return domain.MessageDraft{
		LocalID:        uuid.NewString(),
		ConversationID: cid,
		SenderID:       sender,
		Type:           domain.MessageText,
		Body:           body,
		CreatedAt:      at,
	}
}

func next[T any](t *testing.T, s *Stream[T]) T {
	t.Helper()
	select {
	case v := <-s.Updates():
		return v
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
	var zero T
	return zero
}

func TestMemoryStoreMessagesOrderedAndLimited(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	seedConversation(t, s, "c1", "u1", "u2")

	stream := s.SubscribeMessages(ctx, "c1", 2)
	defer stream.Close()
	assert.Empty(t, next(t, stream))

	_, err := s.AppendMessage(ctx, "c1", draft("c1", "u1", "second", t0.Add(2*time.Second)))
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "c1", draft("c1", "u2", "first", t0.Add(time.Second)))
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "c1", draft("c1", "u1", "third", t0.Add(3*time.Second)))
	require.NoError(t, err)

	msgs := next(t, stream)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Body)
	assert.Equal(t, "third", msgs[1].Body)
	assert.Equal(t, domain.StatusSent, msgs[1].DeliveryStatus)
	assert.NotEmpty(t, msgs[1].ID)
	assert.False(t, msgs[1].IsLocalEcho)
}

func TestMemoryStoreAppendErrors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	seedConversation(t, s, "c1", "u1", "u2")

	_, err := s.AppendMessage(ctx, "missing", draft("missing", "u1", "hi", t0))
	assert.True(t, errprocess.Is(err, errprocess.NotFound))

	_, err = s.AppendMessage(ctx, "c1", draft("c1", "intruder", "hi", t0))
	assert.True(t, errprocess.Is(err, errprocess.PermissionDenied))

	s.SetAppendError(errprocess.New(errprocess.NetworkUnavailable, "append", errors.New("offline")))
	_, err = s.AppendMessage(ctx, "c1", draft("c1", "u1", "hi", t0))
	assert.True(t, errprocess.Is(err, errprocess.NetworkUnavailable))
}

func TestMemoryStoreLastSeenMonotonic(t *testing.T) {
	ctx := context.Background()
	clock := &stepClock{now: t0.Add(time.Hour)}
	s := NewMemoryStore(clock.Now)
	seedConversation(t, s, "c1", "u1", "u2")

	members := s.SubscribeMembers(ctx, "c1")
	defer members.Close()
	next(t, members)

	require.NoError(t, s.UpdateMemberLastSeen(ctx, "c1", "u2"))
	got := next(t, members)
	assert.Equal(t, t0.Add(time.Hour), got[1].LastSeenAt)

	clock.Set(t0.Add(time.Minute))
	require.NoError(t, s.UpdateMemberLastSeen(ctx, "c1", "u2"))
	got = next(t, members)
	assert.Equal(t, t0.Add(time.Hour), got[1].LastSeenAt)

	err := s.UpdateMemberLastSeen(ctx, "c1", "nobody")
	assert.True(t, errprocess.Is(err, errprocess.NotFound))
}

func TestMemoryStoreConversationsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	seedConversation(t, s, "a", "u1", "u2")
	seedConversation(t, s, "b", "u1", "u3")
	seedConversation(t, s, "c", "u2", "u3")

	convs := s.SubscribeConversations(ctx, "u1", 20)
	defer convs.Close()
	assert.Len(t, next(t, convs), 2)

	require.NoError(t, s.UpdateConversationLastMessage(ctx, "b", domain.LastMessageSnapshot{Text: "yo", SenderID: "u3", Type: domain.MessageText, CreatedAt: t0.Add(time.Minute)}))
	got := next(t, convs)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "yo", got[0].LastMessage.Text)

	// older snapshot does not regress the preview
	require.NoError(t, s.UpdateConversationLastMessage(ctx, "b", domain.LastMessageSnapshot{Text: "old", CreatedAt: t0}))
	c, err := s.GetConversation(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "yo", c.LastMessage.Text)
}

func TestMemoryStoreFindPrivateConversation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	seedConversation(t, s, "p", "u1", "u2")

	c, err := s.FindPrivateConversation(ctx, "u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, "p", c.ID)

	_, err = s.FindPrivateConversation(ctx, "u1", "u3")
	assert.True(t, errprocess.Is(err, errprocess.NotFound))
}

func TestMemoryEphemeralTyping(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryEphemeralStore(nil)

	typing := s.SubscribeTyping(ctx, "c1")
	defer typing.Close()
	assert.Empty(t, next(t, typing))

	require.NoError(t, s.SetTyping(ctx, "c1", "u2"))
	require.NoError(t, s.SetTyping(ctx, "c1", "u1"))
	assert.Equal(t, []string{"u1", "u2"}, next(t, typing))

	require.NoError(t, s.ClearTyping(ctx, "c1", "u2"))
	assert.Equal(t, []string{"u1"}, next(t, typing))

	// clearing an idle user is a no-op
	assert.NoError(t, s.ClearTyping(ctx, "c1", "u2"))
	select {
	case v := <-typing.Updates():
		t.Fatalf("unexpected snapshot %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryEphemeralPresence(t *testing.T) {
	ctx := context.Background()
	clock := &stepClock{now: t0}
	s := NewMemoryEphemeralStore(clock.Now)

	p := s.SubscribePresence(ctx, "u2")
	defer p.Close()
	first := next(t, p)
	assert.False(t, first.Online)
	assert.True(t, first.LastSeen.IsZero())

	require.NoError(t, s.SetOnline(ctx, "u2"))
	assert.True(t, next(t, p).Online)

	clock.Set(t0.Add(time.Minute))
	require.NoError(t, s.SetOffline(ctx, "u2"))
	off := next(t, p)
	assert.False(t, off.Online)
	assert.Equal(t, t0.Add(time.Minute), off.LastSeen)
}

func TestMemoryUserDirectory(t *testing.T) {
	ctx := context.Background()
	clock := &stepClock{now: t0}
	d := NewMemoryUserDirectory(clock.Now)

	require.NoError(t, d.UpsertUser(ctx, domain.User{UID: "u1", DisplayName: "Ann"}))
	clock.Set(t0.Add(time.Hour))
	require.NoError(t, d.TouchLastActive(ctx, "u1"))

	users, err := d.GetUsers(ctx, []string{"u1", "ghost"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Ann", users["u1"].DisplayName)
	assert.Equal(t, t0, users["u1"].CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), users["u1"].LastActiveAt)

	assert.True(t, errprocess.Is(d.TouchLastActive(ctx, "ghost"), errprocess.NotFound))
}
