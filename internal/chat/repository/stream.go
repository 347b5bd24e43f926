package repository

import (
	"context"
	"sync"
)

// Stream is a cancellable subscription. Every value is a full authoritative
// snapshot, so a slow reader only ever sees the newest one: Publish replaces
// an undelivered value instead of queueing behind it.
type Stream[T any] struct {
	mu      sync.Mutex
	updates chan T
	errs    chan error
	done    chan struct{}
	cancel  context.CancelFunc
	closed  bool
}

// NewStream create a stream bound to parent. The returned context is
// cancelled when the stream is closed; producers must stop on it.
func NewStream[T any](parent context.Context) (*Stream[T], context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s := &Stream[T]{
		updates: make(chan T, 1),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return s, ctx
}

// Updates snapshot deliveries in FIFO order
func (s *Stream[T]) Updates() <-chan T { return s.updates }

// Errors subscription failures; the stream stays open after an error
func (s *Stream[T]) Errors() <-chan error { return s.errs }

// Done closed once the stream is closed
func (s *Stream[T]) Done() <-chan struct{} { return s.done }

// Close unsubscribe. Safe to call more than once.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	s.cancel()
}

// Publish deliver a snapshot, dropping any snapshot not yet read.
func (s *Stream[T]) Publish(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- v
	return true
}

// Fail deliver a subscription error, keeping only the newest.
func (s *Stream[T]) Fail(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.errs:
	default:
	}
	s.errs <- err
	return true
}
