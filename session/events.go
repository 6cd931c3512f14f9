package session

import (
	"monologue/suggest"
	"monologue/watchdog"
)

type Status int

const (
	StatusIdle Status = iota
	StatusStarting
	StatusRecording
	StatusStopping
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStarting:
		return "starting"
	case StatusRecording:
		return "recording"
	case StatusStopping:
		return "finalizing"
	case StatusFinished:
		return "finished"
	}
	return "unknown"
}

// EventSink abstracts the display layer so the TUI and headless mode receive
// the same session events. Methods are called from arbitrary goroutines and
// must not call back into the Controller synchronously.
type EventSink interface {
	StatusChanged(st Status)
	TranscriptChanged(text string)
	SuggestionsChanged(st suggest.State)
	ElapsedChanged(st watchdog.State, remaining int)
	Error(msg string)
	Finalized(res FinalizedResult)
}

type nopSink struct{}

func (nopSink) StatusChanged(Status)               {}
func (nopSink) TranscriptChanged(string)           {}
func (nopSink) SuggestionsChanged(suggest.State)   {}
func (nopSink) ElapsedChanged(watchdog.State, int) {}
func (nopSink) Error(string)                       {}
func (nopSink) Finalized(FinalizedResult)          {}
