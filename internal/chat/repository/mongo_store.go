package repository

import (
	"context"
	"reflect"
	"time"

	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	conversationCollection = "conversations"
	memberCollection       = "conversation_members"
	messageCollection      = "messages"
)

// MongoStore PersistentStore on MongoDB. Subscriptions use change streams
// and re-read the snapshot on every change; on a standalone server without
// change streams they fall back to polling.
type MongoStore struct {
	conversations *mongo.Collection
	members       *mongo.Collection
	messages      *mongo.Collection

	now          func() time.Time
	pollInterval time.Duration
	retryBackoff time.Duration
}

// MongoStoreOption tune MongoStore
type MongoStoreOption func(*MongoStore)

// WithPollInterval polling period used when change streams are unavailable
func WithPollInterval(d time.Duration) MongoStoreOption {
	return func(s *MongoStore) { s.pollInterval = d }
}

// WithRetryBackoff wait between failed subscription attempts
func WithRetryBackoff(d time.Duration) MongoStoreOption {
	return func(s *MongoStore) { s.retryBackoff = d }
}

// NewMongoStore create MongoStore
func NewMongoStore(db *mongo.Database, opts ...MongoStoreOption) *MongoStore {
	s := &MongoStore{
		conversations: db.Collection(conversationCollection),
		members:       db.Collection(memberCollection),
		messages:      db.Collection(messageCollection),
		now:           time.Now,
		pollInterval:  time.Second,
		retryBackoff:  2 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// EnsureIndexes create the indexes every query relies on
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
	}); err != nil {
		return classify("ensure_indexes", err)
	}
	if _, err := s.members.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "uid", Value: 1}},
	}); err != nil {
		return classify("ensure_indexes", err)
	}
	if _, err := s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "member_ids", Value: 1}, {Key: "last_message_at", Value: -1}},
	}); err != nil {
		return classify("ensure_indexes", err)
	}
	return nil
}

func memberKey(conversationID, uid string) string {
	return conversationID + ":" + uid
}

// GetConversation find conversation by id
func (s *MongoStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := s.conversations.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conv); err != nil {
		return nil, classify("get_conversation", err)
	}
	return &conv, nil
}

// CreateConversation insert conversation and its member records
func (s *MongoStore) CreateConversation(ctx context.Context, conv *domain.Conversation, members []domain.ConversationMember) error {
	if _, err := s.conversations.InsertOne(ctx, conv); err != nil {
		return classify("create_conversation", err)
	}
	docs := make([]interface{}, 0, len(members))
	for _, m := range members {
		docs = append(docs, memberDoc{ID: memberKey(m.ConversationID, m.UID), ConversationMember: m})
	}
	if len(docs) > 0 {
		if _, err := s.members.InsertMany(ctx, docs); err != nil {
			return classify("create_conversation", err)
		}
	}
	return nil
}

// FindPrivateConversation 1:1 conversation between exactly userA and userB
func (s *MongoStore) FindPrivateConversation(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	filter := bson.M{
		"is_group":   false,
		"member_ids": bson.M{"$all": bson.A{userA, userB}, "$size": 2},
	}
	var conv domain.Conversation
	if err := s.conversations.FindOne(ctx, filter).Decode(&conv); err != nil {
		return nil, classify("find_private_conversation", err)
	}
	return &conv, nil
}

// UpdateConversationLastMessage move the preview forward, ignoring older snapshots
func (s *MongoStore) UpdateConversationLastMessage(ctx context.Context, conversationID string, snap domain.LastMessageSnapshot) error {
	filter := bson.M{
		"_id":             conversationID,
		"last_message_at": bson.M{"$lte": snap.CreatedAt},
	}
	update := bson.M{"$set": bson.M{"last_message": snap, "last_message_at": snap.CreatedAt}}
	res, err := s.conversations.UpdateOne(ctx, filter, update)
	if err != nil {
		return classify("update_last_message", err)
	}
	if res.MatchedCount == 0 {
		// 不存在 or 已有更新的訊息
		n, err := s.conversations.CountDocuments(ctx, bson.M{"_id": conversationID})
		if err != nil {
			return classify("update_last_message", err)
		}
		if n == 0 {
			return errprocess.Newf(errprocess.NotFound, "update_last_message", "conversation %s", conversationID)
		}
	}
	return nil
}

// AppendMessage persist draft; _id is an ObjectID hex so it sorts in insert order
func (s *MongoStore) AppendMessage(ctx context.Context, conversationID string, draft domain.MessageDraft) (*domain.Message, error) {
	n, err := s.members.CountDocuments(ctx, bson.M{"_id": memberKey(conversationID, draft.SenderID)})
	if err != nil {
		return nil, classify("append_message", err)
	}
	if n == 0 {
		return nil, errprocess.Newf(errprocess.PermissionDenied, "append_message", "%s is not a member of %s", draft.SenderID, conversationID)
	}

	msg := draft.Echo()
	msg.ID = primitive.NewObjectID().Hex()
	msg.ConversationID = conversationID
	msg.IsLocalEcho = false
	msg.DeliveryStatus = domain.StatusSent
	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return nil, classify("append_message", err)
	}
	return &msg, nil
}

// UpdateMemberLastSeen $max keeps lastSeenAt monotonic
func (s *MongoStore) UpdateMemberLastSeen(ctx context.Context, conversationID, userID string) error {
	res, err := s.members.UpdateOne(ctx,
		bson.M{"_id": memberKey(conversationID, userID)},
		bson.M{"$max": bson.M{"last_seen_at": s.now().UTC()}},
	)
	if err != nil {
		return classify("update_member_last_seen", err)
	}
	if res.MatchedCount == 0 {
		return errprocess.Newf(errprocess.NotFound, "update_member_last_seen", "%s in %s", userID, conversationID)
	}
	return nil
}

// SubscribeConversations conversations of uid, newest lastMessageAt first
func (s *MongoStore) SubscribeConversations(ctx context.Context, uid string, limit int) *Stream[[]domain.Conversation] {
	stream, sctx := NewStream[[]domain.Conversation](ctx)
	load := func(ctx context.Context) ([]domain.Conversation, error) {
		opts := options.Find().
			SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "_id", Value: 1}}).
			SetLimit(int64(limit))
		cur, err := s.conversations.Find(ctx, bson.M{"member_ids": uid}, opts)
		if err != nil {
			return nil, err
		}
		out := make([]domain.Conversation, 0)
		if err := cur.All(ctx, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	match := bson.D{{Key: "fullDocument.member_ids", Value: uid}}
	go watchSnapshots(sctx, s, s.conversations, match, stream, load, "subscribe_conversations")
	return stream
}

// SubscribeMessages newest limit messages, returned ascending
func (s *MongoStore) SubscribeMessages(ctx context.Context, conversationID string, limit int) *Stream[[]domain.Message] {
	stream, sctx := NewStream[[]domain.Message](ctx)
	load := func(ctx context.Context) ([]domain.Message, error) {
		opts := options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
			SetLimit(int64(limit))
		cur, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
		if err != nil {
			return nil, err
		}
		out := make([]domain.Message, 0)
		if err := cur.All(ctx, &out); err != nil {
			return nil, err
		}
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		return out, nil
	}
	match := bson.D{{Key: "fullDocument.conversation_id", Value: conversationID}}
	go watchSnapshots(sctx, s, s.messages, match, stream, load, "subscribe_messages")
	return stream
}

// SubscribeMembers member records of the conversation
func (s *MongoStore) SubscribeMembers(ctx context.Context, conversationID string) *Stream[[]domain.ConversationMember] {
	stream, sctx := NewStream[[]domain.ConversationMember](ctx)
	load := func(ctx context.Context) ([]domain.ConversationMember, error) {
		opts := options.Find().SetSort(bson.D{{Key: "uid", Value: 1}})
		cur, err := s.members.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
		if err != nil {
			return nil, err
		}
		var docs []memberDoc
		if err := cur.All(ctx, &docs); err != nil {
			return nil, err
		}
		out := make([]domain.ConversationMember, 0, len(docs))
		for _, d := range docs {
			out = append(out, d.ConversationMember)
		}
		return out, nil
	}
	match := bson.D{{Key: "fullDocument.conversation_id", Value: conversationID}}
	go watchSnapshots(sctx, s, s.members, match, stream, load, "subscribe_members")
	return stream
}

type memberDoc struct {
	ID                        string `bson:"_id"`
	domain.ConversationMember `bson:",inline"`
}

// watchSnapshots publish load() once, then again after every matching change.
// Errors are pushed to the stream and the watch is retried until ctx ends.
func watchSnapshots[T any](
	ctx context.Context,
	s *MongoStore,
	coll *mongo.Collection,
	match bson.D,
	stream *Stream[T],
	load func(context.Context) (T, error),
	op string,
) {
	log := logger.Log.With(zap.String("op", op), zap.String("collection", coll.Name()))
	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: match}}}
	csOpts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	var last T
	published := false
	publish := func() bool {
		snap, err := load(ctx)
		if err != nil {
			if ctx.Err() == nil {
				stream.Fail(errprocess.New(errprocess.SubscriptionError, op, classify(op, err)))
			}
			return false
		}
		if published && reflect.DeepEqual(last, snap) {
			return true
		}
		last, published = snap, true
		stream.Publish(snap)
		return true
	}

	for ctx.Err() == nil {
		// 先開 change stream 再讀 snapshot, 中間的變更不會漏掉
		cs, err := coll.Watch(ctx, pipeline, csOpts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Debug("change stream unavailable, polling", zap.Error(err))
			pollSnapshots(ctx, s.pollInterval, publish)
			return
		}

		if publish() {
			for cs.Next(ctx) {
				publish()
			}
		}
		err = cs.Err()
		_ = cs.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Warn("change stream failed, retrying", zap.Error(err))
			stream.Fail(errprocess.New(errprocess.SubscriptionError, op, classify(op, err)))
		}
		if !sleepCtx(ctx, s.retryBackoff) {
			return
		}
	}
}

func pollSnapshots(ctx context.Context, interval time.Duration, publish func() bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
