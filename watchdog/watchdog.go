package watchdog

import (
	"sync"
	"time"

	"monologue/metrics"
	"monologue/sched"
)

const (
	DefaultMax  = 180 * time.Second
	DefaultPoll = 250 * time.Millisecond
)

type State struct {
	StartedAt      time.Time
	ElapsedSeconds int
	LimitReached   bool
}

// Watchdog tracks recording time and fires onLimit once when the maximum is
// reached.
type Watchdog struct {
	max     time.Duration
	onLimit func()
	onTick  func(State)

	mu    sync.Mutex
	st    State
	fired bool
	task  *sched.Task
}

// New returns a watchdog. onLimit runs on the ticking goroutine and must not
// block on the watchdog's own teardown; onTick may be nil.
func New(max time.Duration, onLimit func(), onTick func(State)) *Watchdog {
	if max <= 0 {
		max = DefaultMax
	}
	return &Watchdog{max: max, onLimit: onLimit, onTick: onTick}
}

func (w *Watchdog) MaxSeconds() int {
	return int(w.max / time.Second)
}

// Start resets the clock to now and polls every interval.
func (w *Watchdog) Start(now time.Time, interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.task.Stop()
	w.st = State{StartedAt: now}
	w.fired = false
	if interval > 0 {
		w.task = sched.Every(interval, func(t time.Time) { w.Tick(t) })
	}
}

// Tick updates the elapsed time. The first tick at or past the maximum stops
// polling and calls onLimit; later ticks only report the pinned state.
func (w *Watchdog) Tick(now time.Time) State {
	w.mu.Lock()
	if w.st.StartedAt.IsZero() {
		st := w.st
		w.mu.Unlock()
		return st
	}
	elapsed := now.Sub(w.st.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > w.max {
		elapsed = w.max
	}
	w.st.ElapsedSeconds = int(elapsed / time.Second)

	fire := false
	if elapsed >= w.max && !w.fired {
		w.fired = true
		w.st.LimitReached = true
		w.task.Stop()
		fire = true
	}
	st := w.st
	w.mu.Unlock()

	if w.onTick != nil {
		w.onTick(st)
	}
	if fire {
		metrics.WatchdogLimitTotal.Inc()
		if w.onLimit != nil {
			w.onLimit()
		}
	}
	return st
}

// Stop halts polling without touching the state.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	w.task.Stop()
	w.task = nil
	w.mu.Unlock()
}

// SettleAfterStop resets the displayed elapsed time after a recording ends,
// unless the limit was reached, in which case it stays pinned at the maximum.
func (w *Watchdog) SettleAfterStop() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.task.Stop()
	w.task = nil
	if w.st.LimitReached {
		w.st.ElapsedSeconds = w.MaxSeconds()
	} else {
		w.st.ElapsedSeconds = 0
	}
	w.st.StartedAt = time.Time{}
	return w.st
}

func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st
}

// Remaining is the number of seconds left before the limit.
func (w *Watchdog) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.MaxSeconds() - w.st.ElapsedSeconds
}
