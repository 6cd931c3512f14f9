package main

import (
	"sync/atomic"

	"monologue/beep"
	"monologue/session"
	"monologue/suggest"
	"monologue/watchdog"
)

// cueSink plays audible cues for session events and forwards everything to next.
type cueSink struct {
	next session.EventSink
	// limit guards the limit cue to once per recording
	limit *atomic.Bool
}

func newCueSink(next session.EventSink) cueSink {
	return cueSink{next: next, limit: new(atomic.Bool)}
}

func (s cueSink) StatusChanged(st session.Status) {
	if st == session.StatusRecording {
		s.limit.Store(false)
		beep.PlayStart()
	}
	s.next.StatusChanged(st)
}

func (s cueSink) TranscriptChanged(text string) { s.next.TranscriptChanged(text) }

func (s cueSink) SuggestionsChanged(st suggest.State) { s.next.SuggestionsChanged(st) }

func (s cueSink) ElapsedChanged(st watchdog.State, remaining int) {
	if st.LimitReached && s.limit.CompareAndSwap(false, true) {
		beep.PlayLimit()
	}
	s.next.ElapsedChanged(st, remaining)
}

func (s cueSink) Error(msg string) {
	beep.PlayError()
	s.next.Error(msg)
}

func (s cueSink) Finalized(res session.FinalizedResult) {
	beep.PlayEnd()
	s.next.Finalized(res)
}
