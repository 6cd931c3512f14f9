package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"monologue/audio"
	"monologue/backend"
	"monologue/beep"
	"monologue/config"
	"monologue/doctor"
	"monologue/log"
	"monologue/metrics"
	"monologue/session"
	"monologue/shutdown"
	"monologue/transcriber"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("monologue", flag.ContinueOnError)
	envFileFlag := fs.String("env", "", "Path to .env file (default: ./.env if present)")
	apiFlag := fs.String("api", "", "Backend base URL (overrides MONOLOGUE_API_URL)")
	tokenFlag := fs.String("token", "", "Bearer token for the backend (empty = guest)")
	deviceFlag := fs.String("device", "", "Use named microphone device")
	setupFlag := fs.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	stateFlag := fs.String("state", "", "Directory for the cached session id")
	logPathFlag := fs.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	metricsFlag := fs.String("metrics", "", "Serve Prometheus metrics on this address (e.g., localhost:9464)")
	headlessFlag := fs.Bool("headless", false, "Print events to stdout instead of the terminal UI")
	testFlag := fs.String("test", "", "Test mode: replay a 16-bit mono WAV, driven by stdin commands")
	noBeepFlag := fs.Bool("nobeep", false, "Disable audible cues")
	doctorFlag := fs.Bool("doctor", false, "Run system diagnostics and exit")
	clipFlag := fs.Bool("clipboard", false, "With -doctor, also check the clipboard")
	versionFlag := fs.Bool("version", false, "Print version and exit")
	crashFlag := fs.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *versionFlag {
		fmt.Printf("monologue %s\n", version)
		return 0
	}

	cfg, err := config.Load(config.Overrides{
		EnvFile:     *envFileFlag,
		APIURL:      *apiFlag,
		AuthToken:   *tokenFlag,
		Device:      *deviceFlag,
		StateDir:    *stateFlag,
		LogPath:     *logPathFlag,
		MetricsAddr: *metricsFlag,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Resolve log directory early
	logDir, err := log.ResolveDir(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logDir)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()
	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	if *doctorFlag {
		return doctor.Run(doctor.Options{
			APIURL:    cfg.APIURL,
			Token:     cfg.AuthToken,
			Timeout:   cfg.HTTPTimeout,
			Device:    cfg.Device,
			Clipboard: *clipFlag,
		})
	}

	if *noBeepFlag || *testFlag != "" {
		beep.Disable()
	} else {
		go beep.Init()
	}

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Listen(cfg.MetricsAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: metrics: %v\n", err)
			return 1
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Close(ctx)
		}()
	}

	api, err := backend.New(cfg.APIURL, cfg.AuthToken, cfg.HTTPTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	streamURL, err := transcriber.StreamURL(cfg.APIURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	store, err := session.NewStore(cfg.StateDir, cfg.SessionTTL, session.StoreOwner(cfg.AuthToken))
	if err != nil {
		log.Warnf("session cache unavailable: %v", err)
		store = nil
	}

	var actx audio.Context
	var fake *audio.FakeContext
	if *testFlag != "" {
		fake, err = audio.NewFakeContextFromWAV(*testFlag, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
			return 1
		}
		actx = fake
	} else {
		actx, err = audio.NewContext()
		if err != nil {
			log.Errorf("audio context init error: %v", err)
			fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n%s\n", err, audioHint)
			return 1
		}
	}
	defer actx.Close()

	device, err := pickDevice(actx, cfg.Device, *setupFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	opts := session.Options{
		API:            api,
		Audio:          actx,
		Device:         device,
		Store:          store,
		StreamURL:      streamURL,
		NativeRate:     cfg.SampleRate,
		MaxDuration:    cfg.MaxRecording,
		WatchdogPoll:   cfg.WatchdogPoll,
		Silence:        cfg.Silence,
		SuggestPoll:    cfg.SuggestPoll,
		SuggestTimeout: cfg.SuggestTimeout,
		PlaybackDir:    filepath.Join(cfg.StateDir, "recordings"),
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	switch {
	case fake != nil:
		sink := newStdoutSink(os.Stdout)
		opts.Sink = sink
		ctrl := session.NewController(opts)
		defer ctrl.Close()
		return runScript(ctx, ctrl, func() <-chan struct{} {
			caps := fake.Captures()
			if len(caps) == 0 {
				closed := make(chan struct{})
				close(closed)
				return closed
			}
			return caps[len(caps)-1].AudioDone()
		}, os.Stdin, sink)

	case *headlessFlag:
		sink := newStdoutSink(os.Stdout)
		opts.Sink = newCueSink(sink)
		ctrl := session.NewController(opts)
		defer ctrl.Close()
		return runHeadless(ctx, ctrl, sink)

	default:
		sink := &tuiSink{}
		opts.Sink = newCueSink(sink)
		ctrl := session.NewController(opts)
		defer ctrl.Close()

		p := tea.NewProgram(newTUIModel(ctrl, deviceLabel(device), cfg.MaxSeconds()), tea.WithAltScreen(), tea.WithContext(ctx))
		sink.setProgram(p)
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			log.Errorf("TUI error: %v", err)
			return 1
		}
		return 0
	}
}

// pickDevice resolves the capture device: a named one, the interactive picker,
// or nil for the system default.
func pickDevice(actx audio.Context, name string, setup bool) (*audio.DeviceInfo, error) {
	if name != "" {
		return audio.FindDevice(actx, name)
	}
	if !setup {
		return nil, nil
	}
	dev, err := audio.SelectDevice(actx)
	if err != nil {
		log.Warnf("device selection failed: %v", err)
		fmt.Printf("Warning: device selection failed: %v\n", err)
		fmt.Println("Falling back to default device")
		return nil, nil
	}
	return dev, nil
}

func deviceLabel(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}
