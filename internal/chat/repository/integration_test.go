//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/pkg/database"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"
	testtool "chat_sync_service/pkg/test_tool"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetNewNop()
	os.Exit(m.Run())
}

// until read deliveries until cond holds
func until[T any](t *testing.T, s *Stream[T], cond func(T) bool) T {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case v := <-s.Updates():
			if cond(v) {
				return v
			}
		case err := <-s.Errors():
			t.Fatalf("stream failed: %v", err)
		case <-deadline:
			t.Fatal("condition never delivered")
		}
	}
}

func newMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	ctx := context.Background()
	container, uri, err := testtool.StartMongo(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	db, err := database.NewMongoDB(ctx, database.Connection{ConnectStr: uri, RetryCount: 5, RetryInterval: time.Second}, "chat_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(ctx) })

	// standalone mongo has no change streams, poll fast instead
	store := NewMongoStore(db.Database, WithPollInterval(100*time.Millisecond), WithRetryBackoff(100*time.Millisecond))
	require.NoError(t, store.EnsureIndexes(ctx))
	return store
}

func TestMongoStore(t *testing.T) {
	store := newMongoStore(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)

	conv := &domain.Conversation{ID: "c1", MemberIDs: []string{"alice", "bob"}, CreatedBy: "alice", CreatedAt: at}
	members := []domain.ConversationMember{
		{ConversationID: "c1", UID: "alice", JoinedAt: at, LastSeenAt: at},
		{ConversationID: "c1", UID: "bob", JoinedAt: at, LastSeenAt: at},
	}
	require.NoError(t, store.CreateConversation(ctx, conv, members))

	t.Run("get and find", func(t *testing.T) {
		got, err := store.GetConversation(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, []string{"alice", "bob"}, got.MemberIDs)

		found, err := store.FindPrivateConversation(ctx, "bob", "alice")
		require.NoError(t, err)
		require.Equal(t, "c1", found.ID)

		_, err = store.GetConversation(ctx, "missing")
		require.True(t, errprocess.Is(err, errprocess.NotFound))

		_, err = store.FindPrivateConversation(ctx, "alice", "dave")
		require.True(t, errprocess.Is(err, errprocess.NotFound))
	})

	t.Run("messages window", func(t *testing.T) {
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		sub := store.SubscribeMessages(subCtx, "c1", 2)
		require.Empty(t, until(t, sub, func([]domain.Message) bool { return true }))

		for i, body := range []string{"one", "two", "three"} {
			msg, err := store.AppendMessage(ctx, "c1", draft("c1", "alice", body, at.Add(time.Duration(i)*time.Second)))
			require.NoError(t, err)
			require.NotEmpty(t, msg.ID)
			require.Equal(t, domain.StatusSent, msg.DeliveryStatus)
			require.False(t, msg.IsLocalEcho)
		}

		got := until(t, sub, func(ms []domain.Message) bool { return len(ms) == 2 && ms[1].Body == "three" })
		require.Equal(t, "two", got[0].Body)
	})

	t.Run("non member cannot append", func(t *testing.T) {
		_, err := store.AppendMessage(ctx, "c1", draft("c1", "mallory", "hi", at))
		require.True(t, errprocess.Is(err, errprocess.PermissionDenied))
	})

	t.Run("last seen never moves back", func(t *testing.T) {
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		sub := store.SubscribeMembers(subCtx, "c1")
		before := until(t, sub, func(ms []domain.ConversationMember) bool { return len(ms) == 2 })

		require.NoError(t, store.UpdateMemberLastSeen(ctx, "c1", "bob"))
		after := until(t, sub, func(ms []domain.ConversationMember) bool {
			for _, m := range ms {
				if m.UID == "bob" && m.LastSeenAt.After(at) {
					return true
				}
			}
			return false
		})
		for i := range after {
			require.False(t, after[i].LastSeenAt.Before(before[i].LastSeenAt))
		}

		err := store.UpdateMemberLastSeen(ctx, "c1", "mallory")
		require.True(t, errprocess.Is(err, errprocess.NotFound))
	})

	t.Run("conversations newest first", func(t *testing.T) {
		other := &domain.Conversation{ID: "c2", IsGroup: true, Title: "team", MemberIDs: []string{"alice", "carol"}, CreatedBy: "alice", CreatedAt: at}
		require.NoError(t, store.CreateConversation(ctx, other, []domain.ConversationMember{
			{ConversationID: "c2", UID: "alice", JoinedAt: at, LastSeenAt: at},
			{ConversationID: "c2", UID: "carol", JoinedAt: at, LastSeenAt: at},
		}))

		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		sub := store.SubscribeConversations(subCtx, "alice", 10)
		until(t, sub, func(cs []domain.Conversation) bool { return len(cs) == 2 })

		require.NoError(t, store.UpdateConversationLastMessage(ctx, "c2", domain.LastMessageSnapshot{
			Text:      "hello team",
			SenderID:  "carol",
			Type:      domain.MessageText,
			CreatedAt: at.Add(time.Hour),
		}))
		got := until(t, sub, func(cs []domain.Conversation) bool {
			return len(cs) == 2 && cs[0].ID == "c2" && cs[0].LastMessage != nil
		})
		require.Equal(t, "hello team", got[0].LastMessage.Text)
	})
}

func TestRedisEphemeralStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, addr, err := testtool.StartRedis(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	client, err := database.NewRedisStandaloneClient(addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisEphemeralStore(client, 2*time.Second, 2*time.Second)
	go store.Run(ctx)

	t.Run("typing set and clear", func(t *testing.T) {
		sub := store.SubscribeTyping(ctx, "c1")
		require.Empty(t, until(t, sub, func([]string) bool { return true }))

		require.NoError(t, store.SetTyping(ctx, "c1", "bob"))
		require.NoError(t, store.SetTyping(ctx, "c1", "alice"))
		until(t, sub, func(ids []string) bool { return len(ids) == 2 && ids[0] == "alice" && ids[1] == "bob" })

		require.NoError(t, store.ClearTyping(ctx, "c1", "alice"))
		until(t, sub, func(ids []string) bool { return len(ids) == 1 && ids[0] == "bob" })

		// held lease survives past the ttl
		time.Sleep(3 * time.Second)
		require.NoError(t, store.ClearTyping(ctx, "c1", "bob"))
		until(t, sub, func(ids []string) bool { return len(ids) == 0 })
	})

	t.Run("typing expires without a holder", func(t *testing.T) {
		// a second store that never renews stands in for a dead client
		dead := NewRedisEphemeralStore(client, time.Second, time.Second)
		sub := store.SubscribeTyping(ctx, "c2")
		until(t, sub, func([]string) bool { return true })

		require.NoError(t, dead.SetTyping(ctx, "c2", "carol"))
		until(t, sub, func(ids []string) bool { return len(ids) == 1 })
		until(t, sub, func(ids []string) bool { return len(ids) == 0 })
	})

	t.Run("presence", func(t *testing.T) {
		sub := store.SubscribePresence(ctx, "bob")
		first := until(t, sub, func(domain.PresenceState) bool { return true })
		require.False(t, first.Online)
		require.True(t, first.LastSeen.IsZero())

		require.NoError(t, store.SetOnline(ctx, "bob"))
		until(t, sub, func(p domain.PresenceState) bool { return p.Online })

		require.NoError(t, store.SetOffline(ctx, "bob"))
		got := until(t, sub, func(p domain.PresenceState) bool { return !p.Online })
		require.False(t, got.LastSeen.IsZero())
	})
}

func TestPostgresUserDirectory(t *testing.T) {
	ctx := context.Background()
	container, dsn, err := testtool.StartPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	pool, err := database.NewDatabaseConnection(ctx, database.Connection{ConnectStr: dsn, RetryCount: 5, RetryInterval: time.Second})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	dir := NewPostgresUserDirectory(pool)
	require.NoError(t, dir.EnsureSchema(ctx))
	require.NoError(t, dir.EnsureSchema(ctx))

	require.NoError(t, dir.UpsertUser(ctx, domain.User{UID: "alice", DisplayName: "Alice"}))
	require.NoError(t, dir.UpsertUser(ctx, domain.User{UID: "bob", DisplayName: "Bob"}))
	require.NoError(t, dir.UpsertUser(ctx, domain.User{UID: "bob", DisplayName: "Bobby", PhotoURL: "avatars/bob.png"}))

	users, err := dir.GetUsers(ctx, []string{"alice", "bob", "ghost"})
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "Bobby", users["bob"].DisplayName)
	require.Equal(t, "avatars/bob.png", users["bob"].PhotoURL)

	empty, err := dir.GetUsers(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, empty)

	before := users["alice"].LastActiveAt
	require.NoError(t, dir.TouchLastActive(ctx, "alice"))
	users, err = dir.GetUsers(ctx, []string{"alice"})
	require.NoError(t, err)
	require.False(t, users["alice"].LastActiveAt.Before(before))

	err = dir.TouchLastActive(ctx, "ghost")
	require.True(t, errprocess.Is(err, errprocess.NotFound))
}
