package suggest

import (
	"context"
	"errors"
	"sync"
	"time"

	"monologue/log"
	"monologue/metrics"
	"monologue/sched"
)

const (
	DefaultSilence = 6 * time.Second
	DefaultPoll    = 1 * time.Second

	NoFreshIdeas      = "No fresh ideas right now"
	SaySomethingFirst = "Say something first, then ask for new ideas."
)

var (
	ErrNothingSaid = errors.New("transcript is empty")
	ErrBusy        = errors.New("already fetching ideas")
)

type Source string

const (
	SourceAuto   Source = "auto"
	SourceManual Source = "manual"
)

// State is a copy of the trigger's state for display.
type State struct {
	Topics         []string
	Source         Source
	CooldownActive bool
	Fetching       bool
	LastActivityAt time.Time
	Err            string
	ErrSource      Source
	Notice         string
}

// Fetcher requests topics for transcript.
type Fetcher func(ctx context.Context, transcript string) ([]string, error)

type Config struct {
	Silence  time.Duration
	Fetch    Fetcher
	Snapshot func() string
	// OnChange is called outside the lock after every state change.
	OnChange func(State)
	Timeout  time.Duration
}

// Trigger asks for conversation topics when the speaker has been silent for
// Silence, or on demand. At most one request is in flight; after a successful
// automatic fetch it stays quiet until speech resumes.
type Trigger struct {
	cfg Config

	mu      sync.Mutex
	st      State
	gen     int
	task    *sched.Task
	running bool

	ctx    context.Context
	cancel context.CancelFunc

	// spawn runs a fetch; tests replace it to run fetches inline.
	spawn func(func())
}

func New(cfg Config) *Trigger {
	if cfg.Silence <= 0 {
		cfg.Silence = DefaultSilence
	}
	if cfg.Snapshot == nil {
		cfg.Snapshot = func() string { return "" }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Trigger{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		spawn:  func(fn func()) { go fn() },
	}
}

// Reset clears all state for a new session and starts the silence clock at now.
func (t *Trigger) Reset(now time.Time) {
	t.mu.Lock()
	t.gen++
	t.st = State{LastActivityAt: now}
	st := t.copyState()
	t.mu.Unlock()
	t.notify(st)
}

// Run polls Tick every interval until Stop.
func (t *Trigger) Run(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.task != nil {
		t.task.Stop()
	}
	t.running = true
	t.task = sched.Every(interval, func(now time.Time) { t.tick(now, true) })
}

// Stop halts polling and discards any in-flight result.
func (t *Trigger) Stop() {
	t.mu.Lock()
	t.task.Stop()
	t.task = nil
	t.running = false
	t.gen++
	t.st.Fetching = false
	t.mu.Unlock()
}

// Close stops polling and cancels in-flight requests.
func (t *Trigger) Close() {
	t.Stop()
	t.cancel()
}

// Activity records speech. It clears the cooldown and any error left by an
// automatic request.
func (t *Trigger) Activity(now time.Time) {
	t.mu.Lock()
	t.st.LastActivityAt = now
	changed := t.st.CooldownActive || t.st.ErrSource == SourceAuto
	t.st.CooldownActive = false
	if t.st.ErrSource == SourceAuto {
		t.st.Err = ""
		t.st.ErrSource = ""
	}
	st := t.copyState()
	t.mu.Unlock()
	if changed {
		t.notify(st)
	}
}

// Tick starts an automatic request if the silence threshold has passed. It
// reports whether a request was started.
func (t *Trigger) Tick(now time.Time) bool {
	return t.tick(now, false)
}

// tick with scheduled set is a poll from Run; it is ignored once Stop has run,
// even if the poll was already waiting on the lock.
func (t *Trigger) tick(now time.Time, scheduled bool) bool {
	t.mu.Lock()
	if scheduled && !t.running {
		t.mu.Unlock()
		return false
	}
	if t.st.Fetching || t.st.CooldownActive || now.Sub(t.st.LastActivityAt) < t.cfg.Silence {
		t.mu.Unlock()
		return false
	}
	t.st.CooldownActive = true
	t.begin(SourceAuto)
	return true
}

// RequestManual asks for new topics regardless of silence.
func (t *Trigger) RequestManual() error {
	if t.cfg.Snapshot() == "" {
		t.mu.Lock()
		t.st.Err = SaySomethingFirst
		t.st.ErrSource = SourceManual
		st := t.copyState()
		t.mu.Unlock()
		t.notify(st)
		return ErrNothingSaid
	}

	t.mu.Lock()
	if t.st.Fetching {
		t.mu.Unlock()
		return ErrBusy
	}
	t.begin(SourceManual)
	return nil
}

// begin must be called with mu held; it releases it.
func (t *Trigger) begin(source Source) {
	t.st.Fetching = true
	t.st.Err = ""
	t.st.ErrSource = ""
	t.st.Notice = ""
	gen := t.gen
	st := t.copyState()
	t.mu.Unlock()
	t.notify(st)

	transcript := t.cfg.Snapshot()
	t.spawn(func() { t.fetch(gen, source, transcript) })
}

func (t *Trigger) fetch(gen int, source Source, transcript string) {
	ctx := t.ctx
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	var topics []string
	var err error
	if t.cfg.Fetch == nil {
		err = errors.New("no topic source configured")
	} else {
		topics, err = t.cfg.Fetch(ctx, transcript)
	}
	log.Suggestion(string(source), len(topics), time.Since(start), err)
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case len(topics) == 0:
		result = "empty"
	}
	metrics.SuggestionsTotal.WithLabelValues(string(source), result).Inc()

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.st.Fetching = false
	switch {
	case err != nil:
		t.st.Err = err.Error()
		t.st.ErrSource = source
		t.st.CooldownActive = false
	case len(topics) == 0:
		t.st.Topics = nil
		t.st.Source = source
		t.st.Notice = NoFreshIdeas
	default:
		t.st.Topics = append([]string(nil), topics...)
		t.st.Source = source
	}
	st := t.copyState()
	t.mu.Unlock()
	t.notify(st)
}

func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyState()
}

func (t *Trigger) copyState() State {
	st := t.st
	st.Topics = append([]string(nil), t.st.Topics...)
	return st
}

func (t *Trigger) notify(st State) {
	if t.cfg.OnChange != nil {
		t.cfg.OnChange(st)
	}
}
