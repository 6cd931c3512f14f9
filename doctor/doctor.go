package doctor

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"

	"monologue/audio"
	"monologue/backend"
	"monologue/transcriber"
)

const (
	captureWindow = 2 * time.Second
	dialTimeout   = 5 * time.Second

	// silenceFloor is the peak level below which a capture counts as silent.
	silenceFloor = 0.005
)

type Options struct {
	APIURL    string
	Token     string
	Timeout   time.Duration
	Device    string
	NewAudio  func() (audio.Context, error)
	Clipboard bool
	Out       io.Writer

	// Window is how long the microphone check listens.
	Window time.Duration
}

type check struct {
	name string
	run  func(*runner) bool
}

type runner struct {
	opts Options
	out  io.Writer
	api  *backend.Client

	pass *color.Color
	fail *color.Color
	warn *color.Color
}

func (r *runner) passf(format string, args ...any) bool {
	r.pass.Fprint(r.out, "  PASS: ")
	fmt.Fprintf(r.out, format+"\n", args...)
	return true
}

func (r *runner) failf(format string, args ...any) bool {
	r.fail.Fprint(r.out, "  FAIL: ")
	fmt.Fprintf(r.out, format+"\n", args...)
	return false
}

func (r *runner) warnf(format string, args ...any) {
	r.warn.Fprint(r.out, "  WARN: ")
	fmt.Fprintf(r.out, format+"\n", args...)
}

func newColors() (pass, fail, warn *color.Color) {
	return color.New(color.FgGreen, color.Bold), color.New(color.FgRed, color.Bold), color.New(color.FgYellow)
}

// Run executes diagnostic checks and returns an exit code (0=all pass, 1=any fail).
// Checks after a failing backend check still run so one report covers everything.
func Run(opts Options) int {
	if opts.Out == nil {
		opts.Out = os.Stdout
		resetTerminal()
		setupInterruptHandler()
	}
	if opts.NewAudio == nil {
		opts.NewAudio = audio.NewContext
	}
	if opts.Window <= 0 {
		opts.Window = captureWindow
	}
	r := &runner{opts: opts, out: opts.Out}
	r.pass, r.fail, r.warn = newColors()

	checks := []check{
		{"Backend reachability", checkBackend},
		{"Auth token", checkToken},
		{"Transcription socket", checkSocket},
		{"Microphone capture", checkMicrophone},
	}
	if opts.Clipboard {
		checks = append(checks, check{"Clipboard copy", checkClipboard})
	}

	fmt.Fprintln(r.out, "monologue doctor - system diagnostics")
	fmt.Fprintln(r.out, "=====================================")

	allPass := true
	for i, c := range checks {
		fmt.Fprintln(r.out)
		fmt.Fprintf(r.out, "[%d/%d] %s\n", i+1, len(checks), c.name)
		if !c.run(r) {
			allPass = false
		}
	}

	fmt.Fprintln(r.out)
	if allPass {
		r.pass.Fprintln(r.out, "All checks passed!")
		return 0
	}
	r.fail.Fprintln(r.out, "Some checks failed. See details above.")
	return 1
}

func checkBackend(r *runner) bool {
	api, err := backend.New(r.opts.APIURL, r.opts.Token, r.opts.Timeout)
	if err != nil {
		return r.failf("%v", err)
	}
	r.api = api
	rtt, err := api.Ping()
	if err != nil {
		return r.failf("cannot reach %s: %v", api.BaseURL(), err)
	}
	return r.passf("%s answered in %dms", api.BaseURL(), rtt.Milliseconds())
}

func checkToken(r *runner) bool {
	if r.opts.Token == "" {
		return r.passf("no token configured, sessions will run as guest")
	}
	exp, ok := backend.TokenExpiry(r.opts.Token)
	if !ok {
		return r.passf("opaque token, expiry not checked")
	}
	left := time.Until(exp)
	if left <= 0 {
		return r.failf("token expired at %s", exp.Format(time.RFC3339))
	}
	if left < time.Hour {
		r.warnf("token expires in %s", left.Round(time.Minute))
	}
	return r.passf("token valid until %s", exp.Format(time.RFC3339))
}

func checkSocket(r *runner) bool {
	wsURL, err := transcriber.StreamURL(r.opts.APIURL)
	if err != nil {
		return r.failf("%v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	ch, err := transcriber.Dial(ctx, wsURL, transcriber.Handlers{})
	if err != nil {
		return r.failf("%v", err)
	}
	connect := ch.Stats().ConnectDur
	if err := ch.Terminate(ctx); err != nil {
		r.warnf("terminate: %v", err)
	}
	return r.passf("%s opened in %dms", wsURL, connect.Milliseconds())
}

func checkMicrophone(r *runner) bool {
	actx, err := r.opts.NewAudio()
	if err != nil {
		return r.failf("cannot connect to audio: %v", err)
	}
	defer actx.Close()

	dev, err := audio.FindDevice(actx, r.opts.Device)
	if err != nil {
		return r.failf("%v", err)
	}

	level, n, rate, err := measure(actx, dev, r.opts.Window)
	if err != nil {
		return r.failf("%v", err)
	}
	if n == 0 {
		return r.failf("no audio captured in %s", r.opts.Window)
	}
	if level < silenceFloor {
		r.warnf("input is silent (peak %.4f); check the mic is not muted", level)
	}
	return r.passf("%d samples at %d Hz, peak %.3f", n, rate, level)
}

// measure captures for d and reports the peak absolute level, sample count
// and the rate the device settled on.
func measure(actx audio.Context, dev *audio.DeviceInfo, d time.Duration) (peak float64, n int, rate int, err error) {
	capture, err := actx.NewCapture(dev, audio.CaptureConfig{
		SampleRate: audio.DefaultNativeRate,
		Channels:   1,
	})
	if err != nil {
		return 0, 0, 0, err
	}
	defer capture.Close()

	var mu sync.Mutex
	capture.SetCallback(func(samples []float32) {
		mu.Lock()
		defer mu.Unlock()
		n += len(samples)
		for _, s := range samples {
			peak = math.Max(peak, math.Abs(float64(s)))
		}
	})
	if err := capture.Start(); err != nil {
		return 0, 0, 0, err
	}
	time.Sleep(d)
	capture.ClearCallback()
	capture.Stop()

	mu.Lock()
	defer mu.Unlock()
	return peak, n, capture.SampleRate(), nil
}
