package transcriber

import (
	"strings"
	"sync"
)

// TranscriptState holds the committed text and the current revisable partial.
type TranscriptState struct {
	Committed   string
	Partial     string
	LastFinal   string
	LastPartial string
}

// Reconciler merges partial and final turns into a display transcript.
// Partials replace each other; finals are appended once.
type Reconciler struct {
	mu sync.Mutex
	st TranscriptState
}

func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// OnTurn applies one turn and reports whether it counts as speech activity.
func (r *Reconciler) OnTurn(text string, final bool) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if final {
		if text != r.st.LastFinal {
			if r.st.Committed == "" {
				r.st.Committed = text
			} else {
				r.st.Committed += " " + text
			}
			r.st.LastFinal = text
			r.st.Partial = ""
			r.st.LastPartial = ""
		}
		return true
	}

	if text != r.st.LastPartial {
		r.st.Partial = text
		r.st.LastPartial = text
	}
	return true
}

// Display joins committed and partial text, omitting empty parts.
func (r *Reconciler) Display() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return joinNonEmpty(r.st.Committed, r.st.Partial)
}

// Snapshot is the transcript sent with suggestion requests.
func (r *Reconciler) Snapshot() string {
	return strings.TrimSpace(r.Display())
}

func (r *Reconciler) State() TranscriptState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st
}

func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.st = TranscriptState{}
	r.mu.Unlock()
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
