//go:build integration

package test_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"nhooyr.io/websocket"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("MONOLOGUE_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "MONOLOGUE_TEST_BIN not set; build the binary and point at it")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func generateToneWAV(path string, sampleRate int, durationS float64) error {
	const headerSize = 44
	numSamples := int(float64(sampleRate) * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i := 0; i < numSamples; i++ {
		s := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(buf[headerSize+i*2:], uint16(s))
	}
	return os.WriteFile(path, buf, 0644)
}

type backend struct {
	mu        sync.Mutex
	starts    int
	uploads   int
	finalized []string
	frames    int
}

func (b *backend) snapshot() (starts, uploads, frames int, finalized []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.starts, b.uploads, b.frames, append([]string(nil), b.finalized...)
}

func newBackend(t *testing.T, final string) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session/start", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.starts++
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"session_id": "it-1", "is_guest": true})
	})
	mux.HandleFunc("POST /session/{id}/chunk", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, `{"detail":"missing file"}`, http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.uploads++
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	mux.HandleFunc("POST /session/{id}/finalize", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.finalized = append(b.finalized, r.PathValue("id"))
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"final": final, "filler_word_count": 2})
	})
	mux.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"json"}})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Begin","id":"x"}`))
		sentTurn := false
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				b.mu.Lock()
				b.frames++
				b.mu.Unlock()
				if !sentTurn {
					sentTurn = true
					conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Turn","transcript":"live words","end_of_turn":true,"turn_is_formatted":true}`))
				}
				continue
			}
			if strings.Contains(string(data), "Terminate") {
				conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Termination","audio_duration_seconds":1}`))
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

func runMonologue(t *testing.T, stdin string, args ...string) (out, logDir string) {
	t.Helper()
	logDir = t.TempDir()
	cmdArgs := append([]string{"-logpath", logDir, "-state", t.TempDir(), "-nobeep"}, args...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := exec.CommandContext(ctx, testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = os.Environ()

	b, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("monologue exited with error: %v\noutput: %s", err, b)
	}
	return string(b), logDir
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func TestRecordAndFinalize(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "tone.wav")
	if err := generateToneWAV(wav, 16000, 1.0); err != nil {
		t.Fatal(err)
	}
	b, srv := newBackend(t, "Backend final.")

	out, logDir := runMonologue(t, cmds("START", "WAIT_AUDIO_DONE", "SLEEP 200", "STOP", "QUIT"),
		"-api", srv.URL, "-test", wav)

	starts, uploads, frames, finalized := b.snapshot()
	if starts != 1 || uploads != 1 {
		t.Errorf("starts=%d uploads=%d, want 1 and 1", starts, uploads)
	}
	if len(finalized) != 1 || finalized[0] != "it-1" {
		t.Errorf("finalized = %v, want [it-1]", finalized)
	}
	if frames == 0 {
		t.Error("no audio frames streamed")
	}
	if !strings.Contains(out, "final: Backend final.") {
		t.Errorf("output missing final transcript:\n%s", out)
	}
	if !strings.Contains(out, "fillers: 2") {
		t.Errorf("output missing filler count:\n%s", out)
	}
	if text := readLog(t, logDir, "transcribe_log.txt"); !strings.Contains(text, "Backend final.") {
		t.Errorf("transcribe_log.txt = %q", text)
	}
	if diag := readLog(t, logDir, "diagnostics_log.txt"); !strings.Contains(diag, "it-1") {
		t.Errorf("diagnostics_log.txt has no session id:\n%s", diag)
	}
}

func TestStopWithoutAudio(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "empty.wav")
	if err := generateToneWAV(wav, 16000, 0); err != nil {
		t.Fatal(err)
	}
	b, srv := newBackend(t, "unused")

	out, _ := runMonologue(t, cmds("START", "STOP", "QUIT"), "-api", srv.URL, "-test", wav)

	_, uploads, _, finalized := b.snapshot()
	if uploads != 0 || len(finalized) != 0 {
		t.Errorf("uploads=%d finalized=%v, want no network calls after empty recording", uploads, finalized)
	}
	if strings.Contains(out, "final:") {
		t.Errorf("unexpected final result:\n%s", out)
	}
}

func TestBackendDown(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "tone.wav")
	if err := generateToneWAV(wav, 16000, 0.5); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cmd := exec.Command(testBinary, "-logpath", t.TempDir(), "-state", t.TempDir(), "-nobeep", "-api", url, "-test", wav)
	cmd.Stdin = strings.NewReader(cmds("START", "QUIT"))
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("expected non-zero exit\n%s", out)
	}
	if !strings.Contains(string(out), "start failed") {
		t.Errorf("output missing start failure:\n%s", out)
	}
}
