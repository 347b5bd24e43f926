package app

import "time"

// Clock time source for the engine; tests swap in a manual clock
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer cancel handle of Clock.AfterFunc
type Timer interface {
	Stop() bool
}

type realClock struct{}

// RealClock wall clock
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Task one named cancellable scheduled callback. Rescheduling cancels the
// previous run. The callback executes on the loop and is dropped if the task
// was cancelled or re-armed in the meantime. Task must only be used from the
// loop goroutine.
type Task struct {
	name  string
	clock Clock
	loop  *EventLoop
	timer Timer
	seq   uint64
}

// NewTask create Task
func NewTask(name string, clock Clock, loop *EventLoop) *Task {
	return &Task{name: name, clock: clock, loop: loop}
}

// Name task name
func (t *Task) Name() string { return t.name }

// Schedule run fn after d, replacing any pending run
func (t *Task) Schedule(d time.Duration, fn func()) {
	t.Cancel()
	seq := t.seq
	t.timer = t.clock.AfterFunc(d, func() {
		t.loop.Post(func() {
			if t.seq != seq || t.timer == nil {
				return
			}
			t.timer = nil
			fn()
		})
	})
}

// Cancel drop the pending run, if any
func (t *Task) Cancel() {
	t.seq++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Pending true while a run is scheduled
func (t *Task) Pending() bool { return t.timer != nil }
