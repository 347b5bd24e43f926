package app

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopClosed task posted after Close
var ErrLoopClosed = errors.New("event loop closed")

// EventLoop FIFO of callbacks drained by a single Run goroutine.
//
// Every piece of engine state is touched only from inside a posted callback,
// so callbacks never need their own locking. Post may be called from any
// goroutine and never blocks.
type EventLoop struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{} // buffered 1, coalesces wake-ups
}

// NewEventLoop create EventLoop
func NewEventLoop() *EventLoop {
	return &EventLoop{
		tasks:  make([]func(), 0, 32),
		signal: make(chan struct{}, 1),
	}
}

// Post enqueue fn; false once the loop is closed
func (l *EventLoop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.wake()
	return true
}

// Close stop accepting tasks. Run drains what is already queued, then returns.
func (l *EventLoop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.wake()
}

func (l *EventLoop) wake() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *EventLoop) next() (func(), bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return nil, false, l.closed
	}
	fn := l.tasks[0]
	l.tasks[0] = nil
	if len(l.tasks) == 1 {
		l.tasks = l.tasks[:0]
	} else {
		l.tasks = l.tasks[1:]
	}
	return fn, true, l.closed
}

// Run execute tasks until ctx is done or the loop is closed and empty.
func (l *EventLoop) Run(ctx context.Context) error {
	for {
		fn, ok, closed := l.next()
		if ok {
			fn()
			continue
		}
		if closed {
			return nil
		}
		select {
		case <-l.signal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Do post fn and wait for it to run
func (l *EventLoop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrLoopClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
