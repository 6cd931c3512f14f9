package transcriber

import (
	"encoding/json"
	"strings"
)

type MessageType string

const (
	MsgBegin       MessageType = "Begin"
	MsgTurn        MessageType = "Turn"
	MsgTermination MessageType = "Termination"
	MsgError       MessageType = "Error"
)

// terminateFrame asks the proxy to end the upstream session.
var terminateFrame = []byte(`{"type":"Terminate"}`)

// Message is an inbound JSON text frame. Only the fields of the relevant
// variant are populated.
type Message struct {
	Type MessageType `json:"type"`

	Transcript      string `json:"transcript"`
	TurnIsFormatted bool   `json:"turn_is_formatted"`
	IsFinal         bool   `json:"is_final"`

	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`

	Reason string `json:"reason"`
	// The proxy reports handshake failures as a bare {"error": "..."} object.
	Err string `json:"error"`
}

// Turn is one transcript update.
type Turn struct {
	Text  string
	Final bool
}

// Termination is the upstream end-of-session summary.
type Termination struct {
	AudioDurationSeconds   float64
	SessionDurationSeconds float64
}

func parseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if m.Type == "" && m.Err != "" {
		m.Type = MsgError
		m.Reason = m.Err
	}
	return m, nil
}

// Turn extracts the transcript update. It reports false for whitespace-only
// text, which must not touch any state.
func (m Message) Turn() (Turn, bool) {
	text := strings.TrimSpace(m.Transcript)
	if text == "" {
		return Turn{}, false
	}
	return Turn{Text: text, Final: m.IsFinal || m.TurnIsFormatted}, true
}
