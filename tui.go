package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"monologue/clipboard"
	"monologue/session"
	"monologue/suggest"
	"monologue/watchdog"
)

// TUI message types
type statusMsg session.Status
type transcriptMsg string
type suggestionsMsg suggest.State
type elapsedMsg struct {
	state     watchdog.State
	remaining int
}
type errorMsg string
type finalizedMsg session.FinalizedResult
type copiedMsg struct{ err error }
type tickMsg time.Time

// tuiSink forwards session events into the Bubble Tea program.
type tuiSink struct {
	mu sync.Mutex
	p  *tea.Program
}

func (s *tuiSink) setProgram(p *tea.Program) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func (s *tuiSink) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (s *tuiSink) StatusChanged(st session.Status)       { s.send(statusMsg(st)) }
func (s *tuiSink) TranscriptChanged(text string)         { s.send(transcriptMsg(text)) }
func (s *tuiSink) SuggestionsChanged(st suggest.State)   { s.send(suggestionsMsg(st)) }
func (s *tuiSink) Error(msg string)                      { s.send(errorMsg(msg)) }
func (s *tuiSink) Finalized(res session.FinalizedResult) { s.send(finalizedMsg(res)) }
func (s *tuiSink) ElapsedChanged(st watchdog.State, remaining int) {
	s.send(elapsedMsg{state: st, remaining: remaining})
}

type tuiModel struct {
	ctrl       controller
	copy       func(string) error
	deviceLine string
	maxSeconds int

	status     session.Status
	frame      int
	elapsed    watchdog.State
	remaining  int
	transcript string
	ideas      suggest.State
	errText    string
	result     *session.FinalizedResult
	copied     bool
	copyErr    string
	width      int
	height     int
}

var (
	recStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	busyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	textStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	partialStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	ideaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpBoldStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)

func newTUIModel(ctrl controller, deviceLine string, maxSeconds int) tuiModel {
	return tuiModel{
		ctrl:       ctrl,
		copy:       clipboard.Copy,
		deviceLine: deviceLine,
		maxSeconds: maxSeconds,
		remaining:  maxSeconds,
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) startCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		// failures reach the model through the sink
		ctrl.Start(context.Background())
		return nil
	}
}

func (m tuiModel) stopCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		ctrl.Stop(ctx)
		return nil
	}
}

func (m tuiModel) ideasCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.RequestSuggestions(); err != nil && !errors.Is(err, suggest.ErrNothingSaid) && !errors.Is(err, suggest.ErrBusy) {
			return errorMsg(err.Error())
		}
		return nil
	}
}

func (m tuiModel) copyCmd(text string) tea.Cmd {
	copyFn := m.copy
	return func() tea.Msg {
		return copiedMsg{err: copyFn(text)}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r", " ":
			if m.status == session.StatusIdle || m.status == session.StatusFinished {
				return m, m.startCmd()
			}
			if m.status == session.StatusRecording && msg.String() == " " {
				return m, m.stopCmd()
			}
		case "s":
			if m.status == session.StatusRecording {
				return m, m.stopCmd()
			}
		case "n":
			if m.status == session.StatusRecording {
				return m, m.ideasCmd()
			}
		case "y":
			if m.result != nil && m.result.Transcript != "" {
				return m, m.copyCmd(m.result.Transcript)
			}
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case statusMsg:
		m.status = session.Status(msg)
		switch m.status {
		case session.StatusStarting:
			m.errText = ""
			m.result = nil
			m.copied = false
			m.copyErr = ""
			m.ideas = suggest.State{}
			m.elapsed = watchdog.State{}
			m.remaining = m.maxSeconds
		case session.StatusStopping:
			m.errText = ""
		}

	case transcriptMsg:
		m.transcript = string(msg)

	case suggestionsMsg:
		m.ideas = suggest.State(msg)

	case elapsedMsg:
		m.elapsed = msg.state
		m.remaining = msg.remaining

	case errorMsg:
		m.errText = string(msg)

	case finalizedMsg:
		res := session.FinalizedResult(msg)
		m.result = &res

	case copiedMsg:
		m.copied = msg.err == nil
		if msg.err != nil {
			m.copyErr = msg.err.Error()
		}
	}
	return m, nil
}

func (m tuiModel) statusLine() string {
	switch m.status {
	case session.StatusRecording:
		dot := "●"
		if m.frame%2 == 1 {
			dot = " "
		}
		return recStyle.Render(fmt.Sprintf("%s REC %s", dot, formatClock(m.elapsed.ElapsedSeconds))) +
			dimStyle.Render(fmt.Sprintf("  %s left", formatClock(m.remaining)))
	case session.StatusStarting:
		return busyStyle.Render("◌ STARTING")
	case session.StatusStopping:
		return busyStyle.Render("◌ FINALIZING")
	case session.StatusFinished:
		return doneStyle.Render("✓ DONE") + dimStyle.Render(fmt.Sprintf("  %s recorded", formatClock(m.elapsed.ElapsedSeconds)))
	}
	return idleStyle.Render("○ STANDBY")
}

func (m tuiModel) helpLine() string {
	var parts []string
	add := func(key, what string) {
		parts = append(parts, helpBoldStyle.Render(key)+helpStyle.Render(" "+what))
	}
	switch m.status {
	case session.StatusRecording:
		add("s", "stop")
		add("n", "ideas")
	case session.StatusIdle, session.StatusFinished:
		add("r", "record")
		if m.result != nil {
			add("y", "copy transcript")
		}
	}
	add("q", "quit")
	return strings.Join(parts, helpStyle.Render("  ·  "))
}

func (m tuiModel) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}
	wrapWidth := max(width-4, 10)

	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteString("\n")
	}

	line(m.statusLine())
	if m.deviceLine != "" {
		line(dimStyle.Render(m.deviceLine))
	}
	if m.elapsed.LimitReached {
		line(warnStyle.Render(fmt.Sprintf("⚠ %s limit reached, recording stopped", formatClock(m.maxSeconds))))
	}
	if m.errText != "" {
		line("")
		for _, l := range wrapText(m.errText, wrapWidth) {
			line(errStyle.Render(l))
		}
	}

	line("")
	if m.result != nil {
		line(titleStyle.Render(fmt.Sprintf("Final transcript · %d filler words", m.result.FillerWordCount)))
		line("")
		lines := wrapText(m.result.Transcript, wrapWidth)
		for i, l := range lines {
			b.WriteString(textStyle.Render(l))
			if i == len(lines)-1 && m.copied {
				b.WriteString(" " + doneStyle.Render("[✓ copied]"))
			}
			b.WriteString("\n")
		}
		if m.copyErr != "" {
			line(errStyle.Render("copy failed: " + m.copyErr))
		}
		if m.result.AudioURL != "" {
			line("")
			line(dimStyle.Render("audio: " + m.result.AudioURL))
		}
	} else {
		line(titleStyle.Render("Live transcript"))
		line("")
		if m.transcript == "" {
			line(dimStyle.Render("Start speaking once recording begins..."))
		} else {
			for _, l := range wrapText(m.transcript, wrapWidth) {
				line(partialStyle.Render(l))
			}
		}
	}

	if ideas := m.ideasBlock(wrapWidth); ideas != "" {
		line("")
		b.WriteString(ideas)
	}

	line("")
	line(m.helpLine())
	b.WriteString(helpStyle.Render("monologue " + version))
	return b.String()
}

func (m tuiModel) ideasBlock(width int) string {
	st := m.ideas
	if m.status != session.StatusRecording && len(st.Topics) == 0 && st.Err == "" {
		return ""
	}
	var b strings.Builder
	title := "Need an idea?"
	if st.Source == suggest.SourceAuto && len(st.Topics) > 0 {
		title = "Stuck? Try one of these"
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	switch {
	case st.Fetching:
		b.WriteString(busyStyle.Render("  thinking...") + "\n")
	case st.Err != "":
		b.WriteString(errStyle.Render("  "+st.Err) + "\n")
	case st.Notice != "":
		b.WriteString(dimStyle.Render("  "+st.Notice) + "\n")
	case len(st.Topics) == 0:
		b.WriteString(dimStyle.Render("  press n for topic ideas") + "\n")
	}
	if !st.Fetching {
		for _, t := range st.Topics {
			for i, l := range wrapText(t, width-4) {
				prefix := "  • "
				if i > 0 {
					prefix = "    "
				}
				b.WriteString(ideaStyle.Render(prefix+l) + "\n")
			}
		}
	}
	return b.String()
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
