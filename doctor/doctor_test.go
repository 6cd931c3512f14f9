package doctor

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"nhooyr.io/websocket"

	"monologue/audio"
)

func newHealthyBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"json"}})
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func tone(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.25
	}
	return s
}

func fakeAudio(samples []float32) func() (audio.Context, error) {
	return func() (audio.Context, error) {
		return audio.NewFakeContext(samples, 16000, false), nil
	}
}

func TestRunAllPass(t *testing.T) {
	srv := newHealthyBackend(t)
	var out bytes.Buffer
	code := Run(Options{
		APIURL:   srv.URL,
		Timeout:  2 * time.Second,
		NewAudio: fakeAudio(tone(8000)),
		Out:      &out,
		Window:   50 * time.Millisecond,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0\n%s", code, out.String())
	}
	text := out.String()
	assert.Equal(t, 4, strings.Count(text, "PASS:"), text)
	assert.Contains(t, text, "guest")
	assert.Contains(t, text, "peak 0.250")
	assert.Contains(t, text, "All checks passed!")
}

func TestRunBackendDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var out bytes.Buffer
	code := Run(Options{
		APIURL:   url,
		Timeout:  time.Second,
		NewAudio: fakeAudio(tone(100)),
		Out:      &out,
		Window:   50 * time.Millisecond,
	})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	text := out.String()
	assert.Contains(t, text, "cannot reach")
	assert.Contains(t, text, "[4/4] Microphone capture", "later checks still run")
	assert.Contains(t, text, "Some checks failed")
}

func TestMicrophoneFailures(t *testing.T) {
	srv := newHealthyBackend(t)

	t.Run("no_audio", func(t *testing.T) {
		var out bytes.Buffer
		code := Run(Options{APIURL: srv.URL, Timeout: time.Second, NewAudio: fakeAudio(nil), Out: &out, Window: 50 * time.Millisecond})
		if code != 1 {
			t.Fatalf("exit code = %d, want 1", code)
		}
		assert.Contains(t, out.String(), "no audio captured")
	})

	t.Run("no_context", func(t *testing.T) {
		var out bytes.Buffer
		code := Run(Options{
			APIURL:   srv.URL,
			Timeout:  time.Second,
			NewAudio: func() (audio.Context, error) { return nil, errors.New("pulse: connection refused") },
			Out:      &out,
			Window:   50 * time.Millisecond,
		})
		if code != 1 {
			t.Fatalf("exit code = %d, want 1", code)
		}
		assert.Contains(t, out.String(), "pulse: connection refused")
	})

	t.Run("silent_input_warns", func(t *testing.T) {
		var out bytes.Buffer
		code := Run(Options{APIURL: srv.URL, Timeout: time.Second, NewAudio: fakeAudio(make([]float32, 4000)), Out: &out, Window: 50 * time.Millisecond})
		if code != 0 {
			t.Fatalf("exit code = %d, want 0\n%s", code, out.String())
		}
		assert.Contains(t, out.String(), "input is silent")
	})

	t.Run("unknown_device", func(t *testing.T) {
		var out bytes.Buffer
		code := Run(Options{APIURL: srv.URL, Timeout: time.Second, Device: "Nope", NewAudio: fakeAudio(tone(10)), Out: &out, Window: 50 * time.Millisecond})
		if code != 1 {
			t.Fatalf("exit code = %d, want 1", code)
		}
		assert.Contains(t, out.String(), `microphone "Nope" not found`)
	})
}

func TestExpiredToken(t *testing.T) {
	// {"alg":"HS256","typ":"JWT"}.{"exp":1}.sig
	tok := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJleHAiOjF9.c2ln"
	r := &runner{opts: Options{Token: tok}, out: &bytes.Buffer{}}
	r.pass, r.fail, r.warn = newColors()
	if checkToken(r) {
		t.Fatal("expired token passed")
	}
	assert.Contains(t, r.out.(*bytes.Buffer).String(), "token expired")
}
