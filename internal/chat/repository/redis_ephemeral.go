package repository

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/pkg/database"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisEphemeralStore EphemeralStore on Redis.
//
// Every typing/online entry is a key with a TTL lease. While this process is
// alive Run keeps its own leases extended; when it dies the keys expire,
// which is the disconnect auto-clear. Changes are announced on a pub/sub
// channel and subscribers re-read the snapshot. A periodic re-read catches
// expirations, which publish nothing.
type RedisEphemeralStore struct {
	client   *redis.Client
	typing   database.RedisRepository[domain.TypingState]
	presence database.RedisRepository[domain.PresenceState]
	pubsub   *RedisPubSub

	typingTTL   time.Duration
	presenceTTL time.Duration
	resync      time.Duration
	now         func() time.Time

	mu     sync.Mutex
	leases map[string]func(context.Context) error
}

// NewRedisEphemeralStore create RedisEphemeralStore
func NewRedisEphemeralStore(client *redis.Client, typingTTL, presenceTTL time.Duration) *RedisEphemeralStore {
	resync := typingTTL
	if presenceTTL < resync {
		resync = presenceTTL
	}
	return &RedisEphemeralStore{
		client:      client,
		typing:      database.NewRedisRepository[domain.TypingState](client),
		presence:    database.NewRedisRepository[domain.PresenceState](client),
		pubsub:      NewRedisPubSub(client),
		typingTTL:   typingTTL,
		presenceTTL: presenceTTL,
		resync:      resync / 3,
		now:         time.Now,
		leases:      make(map[string]func(context.Context) error),
	}
}

func typingKey(conversationID, userID string) string {
	return fmt.Sprintf("typing:%s:user:%s", conversationID, userID)
}

func typingIndexKey(conversationID string) string {
	return fmt.Sprintf("typing:%s:index", conversationID)
}

func typingChannel(conversationID string) string {
	return "typing:" + conversationID
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

func presenceOnlineKey(userID string) string {
	return "presence:" + userID + ":online"
}

func presenceChannel(userID string) string {
	return "presence:" + userID + ":changed"
}

// Run extend this process's leases until ctx ends
func (s *RedisEphemeralStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.resync)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			due := make(map[string]func(context.Context) error, len(s.leases))
			for k, f := range s.leases {
				due[k] = f
			}
			s.mu.Unlock()
			for key, refresh := range due {
				if err := refresh(ctx); err != nil {
					logger.Log.Warn("lease refresh failed", zap.String("key", key), zap.Error(err))
				}
			}
		}
	}
}

func (s *RedisEphemeralStore) hold(key string, refresh func(context.Context) error) {
	s.mu.Lock()
	s.leases[key] = refresh
	s.mu.Unlock()
}

func (s *RedisEphemeralStore) release(key string) {
	s.mu.Lock()
	delete(s.leases, key)
	s.mu.Unlock()
}

// SetTyping write the typing lease and announce it
func (s *RedisEphemeralStore) SetTyping(ctx context.Context, conversationID, userID string) error {
	key := typingKey(conversationID, userID)
	state := domain.TypingState{ConversationID: conversationID, UserID: userID, Typing: true, UpdatedAt: s.now()}
	if err := s.typing.Set(ctx, key, state, s.typingTTL); err != nil {
		return classify("set_typing", err)
	}
	if err := s.client.SAdd(ctx, typingIndexKey(conversationID), userID).Err(); err != nil {
		return classify("set_typing", err)
	}
	s.hold(key, func(ctx context.Context) error {
		_, err := s.typing.ExtendTTL(ctx, key, s.typingTTL)
		return err
	})
	return classify("set_typing", s.pubsub.Publish(ctx, typingChannel(conversationID), state))
}

// ClearTyping delete the lease; nothing is announced when there was none
func (s *RedisEphemeralStore) ClearTyping(ctx context.Context, conversationID, userID string) error {
	key := typingKey(conversationID, userID)
	s.release(key)

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, key)
	srem := pipe.SRem(ctx, typingIndexKey(conversationID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return classify("clear_typing", err)
	}
	if del.Val() == 0 && srem.Val() == 0 {
		return nil
	}
	state := domain.TypingState{ConversationID: conversationID, UserID: userID, UpdatedAt: s.now()}
	return classify("clear_typing", s.pubsub.Publish(ctx, typingChannel(conversationID), state))
}

func (s *RedisEphemeralStore) typingSnapshot(ctx context.Context, conversationID string) ([]string, error) {
	index := typingIndexKey(conversationID)
	uids, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	keys := make([]string, len(uids))
	for i, uid := range uids {
		keys[i] = typingKey(conversationID, uid)
	}
	alive, err := s.typing.Exists(ctx, keys...)
	if err != nil {
		return nil, err
	}
	var stale []interface{}
	for i, uid := range uids {
		if alive[i] {
			out = append(out, uid)
		} else {
			stale = append(stale, uid)
		}
	}
	if len(stale) > 0 {
		// lease 過期, 清掉 index
		_ = s.client.SRem(ctx, index, stale...).Err()
	}
	sort.Strings(out)
	return out, nil
}

// SubscribeTyping sorted ids of users typing in the conversation
func (s *RedisEphemeralStore) SubscribeTyping(ctx context.Context, conversationID string) *Stream[[]string] {
	stream, sctx := NewStream[[]string](ctx)
	go s.follow(sctx, typingChannel(conversationID), "subscribe_typing", func(ctx context.Context) (interface{}, error) {
		return s.typingSnapshot(ctx, conversationID)
	}, func(v interface{}) { stream.Publish(v.([]string)) }, func(err error) { stream.Fail(err) })
	return stream
}

// SetOnline write the online lease; lastSeen follows the lease while it is held
func (s *RedisEphemeralStore) SetOnline(ctx context.Context, userID string) error {
	if err := s.markOnline(ctx, userID); err != nil {
		return classify("set_online", err)
	}
	s.hold(presenceOnlineKey(userID), func(ctx context.Context) error {
		return s.markOnline(ctx, userID)
	})
	return classify("set_online", s.pubsub.Publish(ctx, presenceChannel(userID), true))
}

func (s *RedisEphemeralStore) markOnline(ctx context.Context, userID string) error {
	state := domain.PresenceState{UserID: userID, Online: true, LastSeen: s.now()}
	if err := s.presence.Set(ctx, presenceKey(userID), state, 0); err != nil {
		return err
	}
	return s.client.Set(ctx, presenceOnlineKey(userID), "1", s.presenceTTL).Err()
}

// SetOffline drop the online lease, lastSeen = now
func (s *RedisEphemeralStore) SetOffline(ctx context.Context, userID string) error {
	s.release(presenceOnlineKey(userID))
	state := domain.PresenceState{UserID: userID, Online: false, LastSeen: s.now()}
	if err := s.presence.Set(ctx, presenceKey(userID), state, 0); err != nil {
		return classify("set_offline", err)
	}
	if err := s.presence.Del(ctx, presenceOnlineKey(userID)); err != nil {
		return classify("set_offline", err)
	}
	return classify("set_offline", s.pubsub.Publish(ctx, presenceChannel(userID), false))
}

func (s *RedisEphemeralStore) presenceSnapshot(ctx context.Context, userID string) (domain.PresenceState, error) {
	state, err := s.presence.Get(ctx, presenceKey(userID))
	if err != nil && !errprocess.Is(classify("get_presence", err), errprocess.NotFound) {
		return domain.PresenceState{}, err
	}
	state.UserID = userID
	alive, err := s.presence.Exists(ctx, presenceOnlineKey(userID))
	if err != nil {
		return domain.PresenceState{}, err
	}
	// lease 是唯一依據
	state.Online = alive[0]
	return state, nil
}

// SubscribePresence presence of userID
func (s *RedisEphemeralStore) SubscribePresence(ctx context.Context, userID string) *Stream[domain.PresenceState] {
	stream, sctx := NewStream[domain.PresenceState](ctx)
	go s.follow(sctx, presenceChannel(userID), "subscribe_presence", func(ctx context.Context) (interface{}, error) {
		return s.presenceSnapshot(ctx, userID)
	}, func(v interface{}) { stream.Publish(v.(domain.PresenceState)) }, func(err error) { stream.Fail(err) })
	return stream
}

// follow subscribe to channel, publish load() now, on every announcement and
// every resync tick. Publishes only when the snapshot changed.
func (s *RedisEphemeralStore) follow(
	ctx context.Context,
	channel, op string,
	load func(context.Context) (interface{}, error),
	publish func(interface{}),
	fail func(error),
) {
	kick := make(chan struct{}, 1)
	poke := func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	}

	for ctx.Err() == nil {
		if err := s.pubsub.Subscribe(ctx, channel, func([]byte) { poke() }); err != nil {
			if ctx.Err() != nil {
				return
			}
			fail(errprocess.New(errprocess.SubscriptionError, op, classify(op, err)))
			if !sleepCtx(ctx, s.resync) {
				return
			}
			continue
		}
		break
	}

	ticker := time.NewTicker(s.resync)
	defer ticker.Stop()

	var last interface{}
	poke()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-kick:
		}
		snap, err := load(ctx)
		if err != nil {
			if ctx.Err() == nil {
				fail(errprocess.New(errprocess.SubscriptionError, op, classify(op, err)))
			}
			continue
		}
		if last != nil && reflect.DeepEqual(last, snap) {
			continue
		}
		last = snap
		publish(snap)
	}
}
