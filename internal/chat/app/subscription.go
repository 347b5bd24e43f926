package app

import "chat_sync_service/internal/chat/repository"

// follow forward stream deliveries onto the loop, one goroutine per stream.
// Deliveries keep their order; anything still queued when the stream is
// closed is dropped on the loop.
func follow[T any](loop *EventLoop, s *repository.Stream[T], onValue func(T), onErr func(error)) {
	alive := func() bool {
		select {
		case <-s.Done():
			return false
		default:
			return true
		}
	}
	go func() {
		for {
			select {
			case v := <-s.Updates():
				loop.Post(func() {
					if alive() {
						onValue(v)
					}
				})
			case err := <-s.Errors():
				loop.Post(func() {
					if alive() && onErr != nil {
						onErr(err)
					}
				})
			case <-s.Done():
				return
			}
		}
	}()
}
