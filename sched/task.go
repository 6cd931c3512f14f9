// Package sched runs recurring callbacks that can be cancelled from anywhere,
// including from inside the callback itself.
package sched

import (
	"sync"
	"time"
)

type Task struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Every calls fn with the tick time every interval until Stop. The first call
// happens one interval after Every returns.
func Every(interval time.Duration, fn func(now time.Time)) *Task {
	t := &Task{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.run(interval, fn)
	return t
}

func (t *Task) run(interval time.Duration, fn func(time.Time)) {
	defer close(t.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case now := <-ticker.C:
			// a tick may race with Stop; stop wins
			select {
			case <-t.stop:
				return
			default:
			}
			fn(now)
		}
	}
}

// Stop cancels future ticks. It does not wait for a running callback, so it
// is safe to call from within fn. Calling it more than once is a no-op.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() { close(t.stop) })
}

// Done is closed once the task's goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Stopped reports whether Stop has been called.
func (t *Task) Stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}
