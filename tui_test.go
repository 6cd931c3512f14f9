package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monologue/session"
	"monologue/suggest"
	"monologue/watchdog"
)

type fakeController struct {
	mu       sync.Mutex
	calls    []string
	startErr error
	stopErr  error
	ideasErr error
	result   session.FinalizedResult
}

func (f *fakeController) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeController) Start(ctx context.Context) error {
	f.record("start")
	return f.startErr
}

func (f *fakeController) Stop(ctx context.Context) (session.FinalizedResult, error) {
	f.record("stop")
	return f.result, f.stopErr
}

func (f *fakeController) RequestSuggestions() error {
	f.record("ideas")
	return f.ideasErr
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m tuiModel, msg tea.Msg) (tuiModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(tuiModel)
	require.True(t, ok, "Update returned %T", next)
	return nm, cmd
}

func TestTUIKeysDriveController(t *testing.T) {
	ctrl := &fakeController{}
	m := newTUIModel(ctrl, "mic: fake", 180)

	m, cmd := update(t, m, key("r"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []string{"start"}, ctrl.Calls())

	// stop and ideas do nothing until recording
	_, cmd = update(t, m, key("s"))
	assert.Nil(t, cmd)

	m, _ = update(t, m, statusMsg(session.StatusRecording))
	_, cmd = update(t, m, key("r"))
	assert.Nil(t, cmd, "r while recording must not start again")

	_, cmd = update(t, m, key("n"))
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())

	_, cmd = update(t, m, key("s"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []string{"start", "ideas", "stop"}, ctrl.Calls())
}

func TestTUIIdeasErrors(t *testing.T) {
	ctrl := &fakeController{ideasErr: suggest.ErrNothingSaid}
	m := newTUIModel(ctrl, "", 180)
	m, _ = update(t, m, statusMsg(session.StatusRecording))

	_, cmd := update(t, m, key("n"))
	assert.Nil(t, cmd(), "nothing-said is shown through suggestion state")

	ctrl.ideasErr = errors.New("boom")
	_, cmd = update(t, m, key("n"))
	assert.Equal(t, errorMsg("boom"), cmd())
}

func TestTUIQuit(t *testing.T) {
	m := newTUIModel(&fakeController{}, "", 180)
	_, cmd := update(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTUIRendersSession(t *testing.T) {
	m := newTUIModel(&fakeController{}, "mic: USB", 180)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	assert.Contains(t, m.View(), "STANDBY")

	m, _ = update(t, m, statusMsg(session.StatusStarting))
	m, _ = update(t, m, statusMsg(session.StatusRecording))
	m, _ = update(t, m, elapsedMsg{state: watchdog.State{ElapsedSeconds: 42}, remaining: 138})
	m, _ = update(t, m, transcriptMsg("i went hiking last"))
	m, _ = update(t, m, suggestionsMsg(suggest.State{Topics: []string{"favorite trail"}, Source: suggest.SourceAuto}))

	view := m.View()
	assert.Contains(t, view, "REC 0:42")
	assert.Contains(t, view, "2:18 left")
	assert.Contains(t, view, "i went hiking last")
	assert.Contains(t, view, "favorite trail")
	assert.Contains(t, view, "mic: USB")

	m, _ = update(t, m, errorMsg("Live transcription unavailable"))
	assert.Contains(t, m.View(), "Live transcription unavailable")

	m, _ = update(t, m, statusMsg(session.StatusStopping))
	assert.NotContains(t, m.View(), "Live transcription unavailable", "stop clears the banner")

	m, _ = update(t, m, finalizedMsg(session.FinalizedResult{Transcript: "I went hiking.", FillerWordCount: 3, AudioURL: "file:///tmp/r.flac"}))
	m, _ = update(t, m, statusMsg(session.StatusFinished))
	view = m.View()
	assert.Contains(t, view, "3 filler words")
	assert.Contains(t, view, "I went hiking.")
	assert.Contains(t, view, "file:///tmp/r.flac")
	assert.Contains(t, view, "copy transcript")
}

func TestTUICopyTranscript(t *testing.T) {
	var copied string
	m := newTUIModel(&fakeController{}, "", 180)
	m.copy = func(s string) error { copied = s; return nil }

	_, cmd := update(t, m, key("y"))
	assert.Nil(t, cmd, "nothing to copy before a result")

	m, _ = update(t, m, finalizedMsg(session.FinalizedResult{Transcript: "hello there"}))
	m, cmd = update(t, m, key("y"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, "hello there", copied)
	assert.Contains(t, m.View(), "[✓ copied]")

	m.copy = func(string) error { return errors.New("no display") }
	m, cmd = update(t, m, key("y"))
	m, _ = update(t, m, cmd())
	assert.Contains(t, m.View(), "copy failed: no display")
}

func TestTUILimitBanner(t *testing.T) {
	m := newTUIModel(&fakeController{}, "", 180)
	m, _ = update(t, m, statusMsg(session.StatusRecording))
	m, _ = update(t, m, elapsedMsg{state: watchdog.State{ElapsedSeconds: 180, LimitReached: true}, remaining: 0})
	assert.Contains(t, m.View(), "3:00 limit reached")
}

func TestWrapText(t *testing.T) {
	lines := wrapText("the quick brown fox jumps", 10)
	for _, l := range lines {
		if len(l) > 10 {
			t.Errorf("line %q exceeds width", l)
		}
	}
	if got := strings.Join(lines, " "); got != "the quick brown fox jumps" {
		t.Errorf("rejoined = %q", got)
	}
	if got := wrapText("", 10); len(got) != 1 || got[0] != "" {
		t.Errorf("empty = %q", got)
	}
}
