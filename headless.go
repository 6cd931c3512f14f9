package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"monologue/log"
	"monologue/session"
	"monologue/suggest"
	"monologue/watchdog"
)

const (
	stopTimeout = 30 * time.Second
	// elapsedEvery is how often headless mode prints the clock
	elapsedEvery = 15
)

type controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (session.FinalizedResult, error)
	RequestSuggestions() error
}

// stdoutSink prints session events as plain lines.
type stdoutSink struct {
	mu          sync.Mutex
	w           io.Writer
	status      session.Status
	transcript  string
	lastElapsed int
	ended       chan struct{}
}

func newStdoutSink(w io.Writer) *stdoutSink {
	return &stdoutSink{w: w, lastElapsed: -1, ended: make(chan struct{}, 1)}
}

func (s *stdoutSink) printf(format string, args ...any) {
	fmt.Fprintf(s.w, format+"\n", args...)
}

func (s *stdoutSink) StatusChanged(st session.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.status
	s.status = st
	if st == session.StatusRecording {
		s.lastElapsed = -1
	}
	s.printf("status: %s", st)
	if prev == session.StatusStopping && (st == session.StatusIdle || st == session.StatusFinished) {
		select {
		case s.ended <- struct{}{}:
		default:
		}
	}
}

func (s *stdoutSink) TranscriptChanged(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == s.transcript {
		return
	}
	s.transcript = text
	if text != "" {
		s.printf("transcript: %s", text)
	}
}

func (s *stdoutSink) SuggestionsChanged(st suggest.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case st.Fetching:
	case st.Err != "":
		s.printf("ideas error: %s", st.Err)
	case st.Notice != "":
		s.printf("ideas: %s", st.Notice)
	case len(st.Topics) > 0:
		s.printf("ideas (%s): %s", st.Source, strings.Join(st.Topics, " | "))
	}
}

func (s *stdoutSink) ElapsedChanged(st watchdog.State, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ElapsedSeconds == s.lastElapsed {
		return
	}
	s.lastElapsed = st.ElapsedSeconds
	switch {
	case st.LimitReached:
		s.printf("elapsed: %s (limit reached)", formatClock(st.ElapsedSeconds))
	case st.ElapsedSeconds > 0 && st.ElapsedSeconds%elapsedEvery == 0:
		s.printf("elapsed: %s (%s left)", formatClock(st.ElapsedSeconds), formatClock(remaining))
	}
}

func (s *stdoutSink) Error(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printf("error: %s", msg)
}

func (s *stdoutSink) Finalized(res session.FinalizedResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printf("final: %s", res.Transcript)
	s.printf("fillers: %d", res.FillerWordCount)
	if res.AudioURL != "" {
		s.printf("audio: %s", res.AudioURL)
	}
}

// Ended fires each time a recording finishes stopping.
func (s *stdoutSink) Ended() <-chan struct{} {
	return s.ended
}

// runHeadless records until interrupted or the duration limit stops it.
func runHeadless(ctx context.Context, ctrl controller, sink *stdoutSink) int {
	if err := ctrl.Start(ctx); err != nil {
		return 1
	}
	sink.printf("recording, press Ctrl+C to finish")

	select {
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if _, err := ctrl.Stop(stopCtx); err != nil && !errors.Is(err, session.ErrNotRecording) {
			return 1
		}
		// the limit may have stopped it first; wait for that to settle
		if err := waitEnded(sink, stopTimeout); err != nil {
			log.Warnf("headless: %v", err)
		}
	case <-sink.Ended():
	}
	return 0
}

func waitEnded(sink *stdoutSink, d time.Duration) error {
	sink.mu.Lock()
	st := sink.status
	sink.mu.Unlock()
	if st != session.StatusStopping {
		return nil
	}
	select {
	case <-sink.Ended():
		return nil
	case <-time.After(d):
		return errors.New("timed out waiting for finalize")
	}
}

// runScript drives the controller from line commands:
// START, STOP, IDEAS, WAIT_AUDIO_DONE, WAIT_END, SLEEP <ms>, QUIT.
func runScript(ctx context.Context, ctrl controller, audioDone func() <-chan struct{}, in io.Reader, sink *stdoutSink) int {
	code := 0
	fail := func(cmd string, err error) {
		sink.printf("%s failed: %v", strings.ToLower(cmd), err)
		code = 1
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch {
		case cmd == "":
		case cmd == "START":
			if err := ctrl.Start(ctx); err != nil {
				fail(cmd, err)
			}
		case cmd == "STOP":
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			_, err := ctrl.Stop(stopCtx)
			cancel()
			if err != nil {
				fail(cmd, err)
			}
		case cmd == "IDEAS":
			if err := ctrl.RequestSuggestions(); err != nil {
				fail(cmd, err)
			}
		case cmd == "WAIT_AUDIO_DONE":
			if audioDone == nil {
				continue
			}
			select {
			case <-audioDone():
			case <-ctx.Done():
				return 1
			}
		case cmd == "WAIT_END":
			select {
			case <-sink.Ended():
			case <-ctx.Done():
				return 1
			}
		case cmd == "QUIT":
			return code
		case strings.HasPrefix(cmd, "SLEEP "):
			if ms, err := strconv.Atoi(cmd[6:]); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		default:
			sink.printf("unknown command %q", cmd)
		}
	}
	return code
}

func formatClock(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}
