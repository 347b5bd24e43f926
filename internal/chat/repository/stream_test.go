package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamKeepsNewestSnapshot(t *testing.T) {
	s, _ := NewStream[[]string](context.Background())
	defer s.Close()

	assert.True(t, s.Publish([]string{"a"}))
	assert.True(t, s.Publish([]string{"a", "b"}))

	got := <-s.Updates()
	assert.Equal(t, []string{"a", "b"}, got)

	select {
	case v := <-s.Updates():
		t.Fatalf("unexpected extra snapshot %v", v)
	default:
	}
}

func TestStreamCloseStopsDelivery(t *testing.T) {
	s, ctx := NewStream[int](context.Background())
	s.Close()
	s.Close()

	assert.False(t, s.Publish(1))
	assert.False(t, s.Fail(errors.New("boom")))
	<-ctx.Done()
	<-s.Done()
}

func TestStreamParentCancelCloses(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	s, _ := NewStream[int](parent)
	cancel()

	<-s.Done()
	assert.False(t, s.Publish(1))
}

func TestStreamErrors(t *testing.T) {
	s, _ := NewStream[int](context.Background())
	defer s.Close()

	s.Fail(errors.New("first"))
	s.Fail(errors.New("second"))
	assert.EqualError(t, <-s.Errors(), "second")
	assert.True(t, s.Publish(7))
	assert.Equal(t, 7, <-s.Updates())
}
