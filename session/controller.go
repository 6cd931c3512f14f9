package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"monologue/audio"
	"monologue/encoder"
	"monologue/log"
	"monologue/suggest"
	"monologue/transcriber"
	"monologue/watchdog"
)

const closeTimeout = 2 * time.Second

type Options struct {
	API    API
	Audio  audio.Context
	Device *audio.DeviceInfo
	Store  *Store
	Sink   EventSink

	// StreamURL is the transcription socket endpoint.
	StreamURL  string
	NativeRate int

	MaxDuration    time.Duration
	WatchdogPoll   time.Duration
	Silence        time.Duration
	SuggestPoll    time.Duration
	SuggestTimeout time.Duration

	// PlaybackDir holds the local recording copy; empty means the OS temp dir.
	PlaybackDir string

	Now func() time.Time
}

// Controller runs one recording at a time: bootstrap, capture and stream,
// then upload and finalize on stop. All methods are safe for concurrent use.
type Controller struct {
	opts     Options
	boot     *Bootstrapper
	store    *Store
	sink     EventSink
	playback *Playback
	now      func() time.Time

	recon    *transcriber.Reconciler
	trigger  *suggest.Trigger
	watchdog *watchdog.Watchdog

	mu        sync.Mutex
	rec       *recording
	recording bool
	status    Status
	session   RecordingSession
	result    *FinalizedResult
	lastErr   string
	closed    bool
	finished  int
}

func NewController(opts Options) *Controller {
	if opts.NativeRate <= 0 {
		opts.NativeRate = audio.DefaultNativeRate
	}
	if opts.WatchdogPoll <= 0 {
		opts.WatchdogPoll = watchdog.DefaultPoll
	}
	if opts.SuggestPoll <= 0 {
		opts.SuggestPoll = suggest.DefaultPoll
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{
		opts:     opts,
		boot:     NewBootstrapper(opts.API, opts.Store),
		store:    opts.Store,
		sink:     opts.Sink,
		playback: NewPlayback(opts.PlaybackDir),
		now:      opts.Now,
		recon:    transcriber.NewReconciler(),
	}
	if c.sink == nil {
		c.sink = nopSink{}
	}
	c.trigger = suggest.New(suggest.Config{
		Silence:  opts.Silence,
		Fetch:    opts.API.GenerateTopics,
		Snapshot: c.recon.Snapshot,
		OnChange: c.sink.SuggestionsChanged,
		Timeout:  opts.SuggestTimeout,
	})
	c.watchdog = watchdog.New(opts.MaxDuration, c.onLimit, func(st watchdog.State) {
		c.sink.ElapsedChanged(st, c.watchdog.MaxSeconds()-st.ElapsedSeconds)
	})
	return c
}

// Start bootstraps a session, opens the microphone and begins streaming.
// The socket connects concurrently; frames captured before it opens are
// dropped.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.recording || c.status == StatusStarting || c.status == StatusStopping {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	c.status = StatusStarting
	c.lastErr = ""
	c.result = nil
	c.mu.Unlock()
	c.sink.StatusChanged(StatusStarting)

	sess, err := c.boot.Start(ctx)
	if err != nil {
		return c.abortStart(err)
	}
	if c.isClosed() {
		return c.abortStart(ErrClosed)
	}

	recorder, err := encoder.NewFlacRecorder()
	if err != nil {
		return c.abortStart(err)
	}
	c.recon.Reset()
	c.sink.TranscriptChanged("")
	rec := &recording{
		session:     sess,
		recorder:    recorder,
		channel:     transcriber.NewChannel(c.opts.StreamURL, c.channelHandlers()),
		connectDone: make(chan struct{}),
		started:     c.now(),
	}
	if err := c.acquire(rec); err != nil {
		recorder.Stop()
		return c.abortStart(captureError(err))
	}
	c.dial(rec)

	c.mu.Lock()
	if c.closed {
		// Close ran while the microphone was opening; it never saw rec
		c.status = StatusIdle
		c.mu.Unlock()
		c.release(ctx, rec)
		return ErrClosed
	}
	c.rec = rec
	c.recording = true
	c.session = sess
	c.status = StatusRecording
	c.mu.Unlock()

	now := c.now()
	c.trigger.Reset(now)
	c.trigger.Run(c.opts.SuggestPoll)
	c.watchdog.Start(now, c.opts.WatchdogPoll)

	log.SessionStart(sess.ID, sess.Resumed, sess.IsGuest, rec.capture.DeviceName(), rec.capture.SampleRate())
	c.sink.StatusChanged(StatusRecording)
	return nil
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) abortStart(err error) error {
	log.Errorf("session start: %v", err)
	c.mu.Lock()
	c.status = StatusIdle
	c.mu.Unlock()
	c.setError(err)
	c.sink.StatusChanged(StatusIdle)
	return err
}

// Stop ends the recording and finalizes it. The recording flag flips before
// any teardown, so a second Stop returns ErrNotRecording without touching the
// network. With no captured audio the result is empty and nothing is sent.
func (c *Controller) Stop(ctx context.Context) (FinalizedResult, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return FinalizedResult{}, ErrNotRecording
	}
	c.recording = false
	rec := c.rec
	c.rec = nil
	c.status = StatusStopping
	c.lastErr = ""
	c.mu.Unlock()
	c.sink.StatusChanged(StatusStopping)

	c.trigger.Stop()
	c.watchdog.Stop()
	blob := c.release(ctx, rec)

	res, ok, err := c.finalize(ctx, rec.session, blob, c.recon.Snapshot())

	c.sink.ElapsedChanged(c.watchdog.SettleAfterStop(), c.watchdog.Remaining())

	c.mu.Lock()
	switch {
	case err != nil:
		c.status = StatusIdle
	case ok:
		c.result = &res
		c.status = StatusFinished
		c.finished++
	default:
		c.status = StatusIdle
	}
	status := c.status
	c.mu.Unlock()

	if err != nil {
		log.Errorf("session stop: %v", err)
		c.setError(err)
	} else if ok {
		c.sink.Finalized(res)
	}
	c.sink.StatusChanged(status)
	return res, err
}

// onLimit runs on the watchdog's goroutine; the stop runs on its own so the
// watchdog can be torn down.
func (c *Controller) onLimit() {
	log.Info("session: maximum duration reached")
	go func() {
		if _, err := c.Stop(context.Background()); err != nil && !errors.Is(err, ErrNotRecording) {
			log.Warnf("session: auto stop: %v", err)
		}
	}()
}

// RequestSuggestions asks for new topics now.
func (c *Controller) RequestSuggestions() error {
	return c.trigger.RequestManual()
}

// Close releases everything a live recording holds without finalizing it.
// Teardown is best effort and bounded by a short deadline.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	rec := c.rec
	c.rec = nil
	c.recording = false
	finished := c.finished
	c.mu.Unlock()
	defer log.SessionEnd(finished)

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.trigger.Close()
		c.watchdog.Stop()
		if rec != nil {
			c.release(ctx, rec)
		}
		c.playback.Release()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("session: teardown did not finish before deadline")
	}
}

func (c *Controller) setError(err error) {
	msg := userMessage(err)
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
	c.sink.Error(msg)
}

// userMessage turns an error into the single line shown to the user.
func userMessage(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Microphone access was denied. Allow microphone access and try again."
	case errors.Is(err, audio.ErrUnsupported):
		return "Audio capture is not available on this system."
	case errors.Is(err, transcriber.ErrStreamingConnection):
		return fmt.Sprintf("Live transcription unavailable: %v", err)
	}
	return err.Error()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func (c *Controller) Session() RecordingSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) Result() (FinalizedResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return FinalizedResult{}, false
	}
	return *c.result, true
}

func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) Transcript() string {
	return c.recon.Display()
}

func (c *Controller) Suggestions() suggest.State {
	return c.trigger.State()
}

func (c *Controller) Elapsed() watchdog.State {
	return c.watchdog.State()
}

func (c *Controller) Remaining() int {
	return c.watchdog.Remaining()
}

// PlaybackPath is the local recording file, if one was kept.
func (c *Controller) PlaybackPath() string {
	return c.playback.Path()
}
