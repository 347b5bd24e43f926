package app

import (
	"context"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg/config"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// Identity read-only view of who is signed in
type Identity interface {
	CurrentUserID() (string, bool)
	// OnAuthChange register a listener; the returned func unregisters it
	OnAuthChange(fn func(valid bool)) func()
}

// Sink receives everything the engine pushes to the UI. Called on the loop.
type Sink interface {
	ViewModel(vm domain.ViewModel)
	Conversations(list []domain.ConversationSummary)
	SendFailed(f domain.SendFailure)
	AuthInvalid()
}

// Deps backing stores and collaborators shared by every engine
type Deps struct {
	Store     repository.PersistentStore
	Ephemeral repository.EphemeralStore
	Users     repository.UserDirectory
	Events    repository.EventPublisher
	Media     repository.MediaResolver
	Clock     Clock
}

func (d Deps) withDefaults() Deps {
	if d.Events == nil {
		d.Events = repository.NoopEventPublisher{}
	}
	if d.Media == nil {
		d.Media = repository.PassthroughMediaResolver{}
	}
	if d.Clock == nil {
		d.Clock = RealClock()
	}
	return d
}

// Options engine tunables
type Options struct {
	TypingIdle      time.Duration
	MessageLimit    int
	PageSize        int
	RequestTimeout  time.Duration
	RefreshInterval time.Duration
	Location        *time.Location
}

// OptionsFromConfig map the yaml engine section
func OptionsFromConfig(cfg config.EngineConfig) Options {
	cfg = cfg.WithDefaults()
	return Options{
		TypingIdle:     cfg.TypingIdleTimeout,
		MessageLimit:   cfg.MessageLimit,
		PageSize:       cfg.ConversationPageSize,
		RequestTimeout: cfg.RequestTimeout,
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.TypingIdle <= 0 {
		o.TypingIdle = 3 * time.Second
	}
	if o.MessageLimit <= 0 {
		o.MessageLimit = 50
	}
	if o.PageSize <= 0 {
		o.PageSize = 20
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 30 * time.Second
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Engine one user's sync engine: at most one open session and one
// conversation list, all driven by a single event loop.
type Engine struct {
	loop     *EventLoop
	identity Identity
	sink     Sink
	deps     Deps
	opts     Options

	session         *Session
	list            *ConversationList
	parkedID        string // session closed by backgrounding
	active          bool
	shutdown        bool
	unsubscribeAuth func()
}

// NewEngine create Engine; call Run to start processing
func NewEngine(identity Identity, sink Sink, deps Deps, opts Options) *Engine {
	e := &Engine{
		loop:     NewEventLoop(),
		identity: identity,
		sink:     sink,
		deps:     deps.withDefaults(),
		opts:     opts.withDefaults(),
		active:   true,
	}
	e.unsubscribeAuth = identity.OnAuthChange(func(valid bool) {
		if !valid {
			e.loop.Post(e.authInvalid)
		}
	})
	return e
}

// Run process the loop until ctx is done or Shutdown
func (e *Engine) Run(ctx context.Context) error {
	return e.loop.Run(ctx)
}

// Sync wait until everything posted so far has run
func (e *Engine) Sync(ctx context.Context) error {
	return e.loop.Do(ctx, func() {})
}

// Shutdown close the session and list, then stop the loop
func (e *Engine) Shutdown() {
	e.loop.Post(func() {
		e.closeAll()
		e.shutdown = true
		if e.unsubscribeAuth != nil {
			e.unsubscribeAuth()
		}
	})
	e.loop.Close()
}

func (e *Engine) viewer() (string, error) {
	uid, ok := e.identity.CurrentUserID()
	if !ok || uid == "" {
		return "", errprocess.Newf(errprocess.PermissionDenied, "identity", "not signed in")
	}
	return uid, nil
}

func (e *Engine) do(ctx context.Context, fn func() error) error {
	var err error
	if doErr := e.loop.Do(ctx, func() {
		if e.shutdown {
			err = ErrLoopClosed
			return
		}
		err = fn()
	}); doErr != nil {
		return doErr
	}
	return err
}

// OpenSession open conversationID; reopening the same id is a no-op and a
// different id replaces the current session
func (e *Engine) OpenSession(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return errprocess.Newf(errprocess.Invalid, "open_session", "conversation id required")
	}
	return e.do(ctx, func() error {
		return e.openSession(conversationID)
	})
}

func (e *Engine) openSession(conversationID string) error {
	uid, err := e.viewer()
	if err != nil {
		return err
	}
	if !e.active {
		e.parkedID = conversationID
		return nil
	}
	if e.session != nil {
		if e.session.ID() == conversationID {
			return nil
		}
		e.session.Close()
		e.session = nil
	}
	e.session = newSession(conversationID, uid, e.loop, e.deps, e.opts, e.sink)
	e.session.open()
	logger.Log.Info("session opened", zap.String("conversation_id", conversationID), zap.String("user_id", uid))
	return nil
}

// CloseSession navigate away
func (e *Engine) CloseSession(ctx context.Context) error {
	return e.do(ctx, func() error {
		e.parkedID = ""
		e.closeSession()
		return nil
	})
}

func (e *Engine) closeSession() {
	if e.session == nil {
		return
	}
	e.session.Close()
	e.session = nil
}

// OnInputChanged composer text of the open session
func (e *Engine) OnInputChanged(ctx context.Context, text string) error {
	return e.do(ctx, func() error {
		if e.session == nil {
			return errprocess.Newf(errprocess.Invalid, "input_changed", "no open session")
		}
		e.session.InputChanged(text)
		return nil
	})
}

// Send send text in the open session, returns the echo's local id
func (e *Engine) Send(ctx context.Context, text string) (string, error) {
	var localID string
	err := e.do(ctx, func() error {
		if e.session == nil {
			return errprocess.Newf(errprocess.Invalid, "send", "no open session")
		}
		var err error
		localID, err = e.session.Send(text)
		return err
	})
	return localID, err
}

// SetFocus conversation screen focus
func (e *Engine) SetFocus(ctx context.Context, focused bool) error {
	return e.do(ctx, func() error {
		if e.session != nil {
			e.session.SetFocus(focused)
		}
		return nil
	})
}

// SetAppActive background closes the session, foreground reopens it
func (e *Engine) SetAppActive(ctx context.Context, active bool) error {
	return e.do(ctx, func() error {
		if active == e.active {
			return nil
		}
		e.active = active
		if !active {
			if e.session != nil {
				e.parkedID = e.session.ID()
				e.closeSession()
			}
			return nil
		}
		if id := e.parkedID; id != "" {
			e.parkedID = ""
			return e.openSession(id)
		}
		return nil
	})
}

// WatchConversations start the conversation list, once per engine
func (e *Engine) WatchConversations(ctx context.Context) error {
	return e.do(ctx, func() error {
		uid, err := e.viewer()
		if err != nil {
			return err
		}
		if e.list != nil {
			return nil
		}
		e.list = newConversationList(uid, e.loop, e.deps, e.opts, e.sink)
		e.list.start()
		return nil
	})
}

func (e *Engine) closeAll() {
	e.closeSession()
	e.parkedID = ""
	if e.list != nil {
		e.list.Stop()
		e.list = nil
	}
}

func (e *Engine) authInvalid() {
	if e.shutdown {
		return
	}
	logger.Log.Info("auth invalidated, closing engine state")
	e.closeAll()
	e.sink.AuthInvalid()
}
