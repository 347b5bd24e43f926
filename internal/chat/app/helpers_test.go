package app

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg/logger"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const waitFor = 2 * time.Second

// fakeClock manual clock; timers fire from Advance on the caller's goroutine
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	fn    func()
	done  bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.done
	t.done = true
	return was
}

// Advance move time forward, firing due timers in deadline order
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })
		var due *fakeTimer
		for _, t := range c.timers {
			if !t.done && !t.at.After(target) {
				due = t
				break
			}
		}
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		due.done = true
		if due.at.After(c.now) {
			c.now = due.at
		}
		c.mu.Unlock()
		due.fn()
	}
}

// countingEphemeral counts typing writes on top of the in-memory store
type countingEphemeral struct {
	*repository.MemoryEphemeralStore

	mu       sync.Mutex
	sets     int
	clears   int
	failWith error
}

func newCountingEphemeral(now func() time.Time) *countingEphemeral {
	return &countingEphemeral{MemoryEphemeralStore: repository.NewMemoryEphemeralStore(now)}
}

func (c *countingEphemeral) SetTyping(ctx context.Context, conversationID, userID string) error {
	c.mu.Lock()
	c.sets++
	err := c.failWith
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.MemoryEphemeralStore.SetTyping(ctx, conversationID, userID)
}

func (c *countingEphemeral) ClearTyping(ctx context.Context, conversationID, userID string) error {
	c.mu.Lock()
	c.clears++
	err := c.failWith
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.MemoryEphemeralStore.ClearTyping(ctx, conversationID, userID)
}

func (c *countingEphemeral) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets, c.clears
}

// recordingSink keeps everything the engine pushed
type recordingSink struct {
	mu          sync.Mutex
	vms         []domain.ViewModel
	lists       [][]domain.ConversationSummary
	failures    []domain.SendFailure
	authInvalid int
}

func (s *recordingSink) ViewModel(vm domain.ViewModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vms = append(s.vms, vm)
}

func (s *recordingSink) Conversations(list []domain.ConversationSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = append(s.lists, list)
}

func (s *recordingSink) SendFailed(f domain.SendFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
}

func (s *recordingSink) AuthInvalid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authInvalid++
}

func (s *recordingSink) lastVM() (domain.ViewModel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.vms) == 0 {
		return domain.ViewModel{}, false
	}
	return s.vms[len(s.vms)-1], true
}

func (s *recordingSink) lastList() ([]domain.ConversationSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lists) == 0 {
		return nil, false
	}
	return s.lists[len(s.lists)-1], true
}

func (s *recordingSink) sendFailures() []domain.SendFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SendFailure(nil), s.failures...)
}

func (s *recordingSink) authInvalidCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authInvalid
}

// staticIdentity signed-in user that tests can sign out
type staticIdentity struct {
	mu        sync.Mutex
	uid       string
	valid     bool
	listeners []func(bool)
}

func newStaticIdentity(uid string) *staticIdentity {
	return &staticIdentity{uid: uid, valid: true}
}

func (i *staticIdentity) CurrentUserID() (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.uid, i.valid
}

func (i *staticIdentity) OnAuthChange(fn func(bool)) func() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.listeners = append(i.listeners, fn)
	return func() {}
}

func (i *staticIdentity) signOut() {
	i.mu.Lock()
	i.valid = false
	fns := append([]func(bool){}, i.listeners...)
	i.mu.Unlock()
	for _, fn := range fns {
		fn(false)
	}
}

// world shared backing stores for one or more engines
type world struct {
	clock     *fakeClock
	store     *repository.MemoryStore
	ephemeral *countingEphemeral
	users     *repository.MemoryUserDirectory
}

func newWorld(t *testing.T) *world {
	t.Helper()
	logger.SetNewNop()
	clock := newFakeClock(t0)
	w := &world{
		clock:     clock,
		store:     repository.NewMemoryStore(clock.Now),
		ephemeral: newCountingEphemeral(clock.Now),
		users:     repository.NewMemoryUserDirectory(clock.Now),
	}
	for uid, name := range map[string]string{"alice": "Alice", "bob": "Bob", "carol": "Carol", "dave": "Dave"} {
		require.NoError(t, w.users.UpsertUser(context.Background(), domain.User{UID: uid, DisplayName: name}))
	}
	return w
}

func (w *world) deps() Deps {
	return Deps{
		Store:     w.store,
		Ephemeral: w.ephemeral,
		Users:     w.users,
		Clock:     w.clock,
	}
}

// seed create a conversation whose members last saw it at t0
func (w *world) seed(t *testing.T, id string, isGroup bool, title string, members ...string) {
	t.Helper()
	conv := &domain.Conversation{ID: id, IsGroup: isGroup, Title: title, MemberIDs: members, CreatedBy: members[0], CreatedAt: t0}
	records := make([]domain.ConversationMember, 0, len(members))
	for _, uid := range members {
		records = append(records, domain.ConversationMember{ConversationID: id, UID: uid, JoinedAt: t0, LastSeenAt: t0})
	}
	require.NoError(t, w.store.CreateConversation(context.Background(), conv, records))
}

// post append a message directly, as another client would
func (w *world) post(t *testing.T, cid, sender, body string, at time.Time) {
	t.Helper()
	_, err := w.store.AppendMessage(context.Background(), cid, domain.MessageDraft{
		LocalID:        sender + "-" + body,
		ConversationID: cid,
		SenderID:       sender,
		Type:           domain.MessageText,
		Body:           body,
		CreatedAt:      at,
	})
	require.NoError(t, err)
}

type harness struct {
	*world
	identity *staticIdentity
	sink     *recordingSink
	engine   *Engine
}

func newHarness(t *testing.T, w *world, uid string) *harness {
	t.Helper()
	h := &harness{
		world:    w,
		identity: newStaticIdentity(uid),
		sink:     &recordingSink{},
	}
	h.engine = NewEngine(h.identity, h.sink, w.deps(), Options{Location: time.UTC, RequestTimeout: time.Second})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.engine.Run(context.Background())
	}()
	t.Cleanup(func() {
		h.engine.Shutdown()
		<-done
	})
	return h
}

func (h *harness) ctx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	t.Cleanup(cancel)
	return ctx
}

// eventuallyVM wait for a view model matching cond
func (h *harness) eventuallyVM(t *testing.T, cond func(vm domain.ViewModel) bool) domain.ViewModel {
	t.Helper()
	var got domain.ViewModel
	require.Eventually(t, func() bool {
		_ = h.engine.Sync(context.Background())
		vm, ok := h.sink.lastVM()
		if ok && cond(vm) {
			got = vm
			return true
		}
		return false
	}, waitFor, 5*time.Millisecond)
	return got
}

// nextValue next delivery of a stream
func nextValue[T any](t *testing.T, s *repository.Stream[T]) T {
	t.Helper()
	select {
	case v := <-s.Updates():
		return v
	case <-time.After(waitFor):
		t.Fatal("no delivery")
	}
	var zero T
	return zero
}

func loaded(vm domain.ViewModel) bool { return !vm.Loading }

func messageBodies(vm domain.ViewModel) []string {
	out := make([]string, 0, len(vm.Messages))
	for _, m := range vm.Messages {
		out = append(out, m.Body)
	}
	return out
}
