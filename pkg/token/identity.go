package token

import (
	"sync"
	"time"
)

// ClaimsIdentity identity of one websocket connection, backed by its token.
// The session turns invalid when the token expires or Invalidate is called.
type ClaimsIdentity struct {
	mu        sync.Mutex
	userID    string
	valid     bool
	listeners map[int]func(bool)
	nextID    int
	timer     *time.Timer
}

// NewClaimsIdentity create identity; expiry is armed from claims.ExpiresAt
func NewClaimsIdentity(claims *Claims) *ClaimsIdentity {
	id := &ClaimsIdentity{
		userID:    claims.MemberID,
		valid:     claims.MemberID != "",
		listeners: make(map[int]func(bool)),
	}
	if claims.ExpiresAt != nil {
		id.timer = time.AfterFunc(time.Until(claims.ExpiresAt.Time), id.Invalidate)
	}
	return id
}

// CurrentUserID false once invalid
func (i *ClaimsIdentity) CurrentUserID() (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.valid {
		return "", false
	}
	return i.userID, true
}

// OnAuthChange register fn, returns unregister
func (i *ClaimsIdentity) OnAuthChange(fn func(valid bool)) func() {
	i.mu.Lock()
	defer i.mu.Unlock()
	key := i.nextID
	i.nextID++
	i.listeners[key] = fn
	return func() {
		i.mu.Lock()
		delete(i.listeners, key)
		i.mu.Unlock()
	}
}

// Invalidate mark invalid and notify listeners once
func (i *ClaimsIdentity) Invalidate() {
	i.mu.Lock()
	if !i.valid {
		i.mu.Unlock()
		return
	}
	i.valid = false
	fns := make([]func(bool), 0, len(i.listeners))
	for _, fn := range i.listeners {
		fns = append(fns, fn)
	}
	i.mu.Unlock()

	for _, fn := range fns {
		fn(false)
	}
}

// Close stop the expiry timer without notifying
func (i *ClaimsIdentity) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.timer != nil {
		i.timer.Stop()
	}
	i.listeners = make(map[int]func(bool))
}
