package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"
)

const WAVHeaderSize = 44

// FakeContext replays PCM from memory instead of a microphone. Tests use it
// directly; the -test mode builds one from a WAV file.
type FakeContext struct {
	samples  []float32
	rate     int
	realtime bool

	// StartErr, when set, is returned by every capture's Start.
	StartErr error

	mu       sync.Mutex
	captures []*FakeCapture
}

func NewFakeContext(samples []float32, rate int, realtime bool) *FakeContext {
	if rate <= 0 {
		rate = DefaultNativeRate
	}
	return &FakeContext{samples: samples, rate: rate, realtime: realtime}
}

// NewFakeContextFromWAV loads a 16-bit mono WAV file.
func NewFakeContextFromWAV(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) < WAVHeaderSize {
		return nil, fmt.Errorf("%s: not a wav file", wavPath)
	}
	rate := int(binary.LittleEndian.Uint32(data[24:28]))
	pcm := data[WAVHeaderSize:]
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return NewFakeContext(samples, rate, realtime), nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	c := &FakeCapture{
		samples:   f.samples,
		rate:      f.rate,
		realtime:  f.realtime,
		startErr:  f.StartErr,
		audioDone: make(chan struct{}),
	}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

// Captures returns every capture handed out so far.
func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCapture(nil), f.captures...)
}

type FakeCapture struct {
	samples   []float32
	rate      int
	realtime  bool
	startErr  error
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	started  bool
	stopped  bool
	closed   bool
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) SampleRate() int    { return f.rate }
func (f *FakeCapture) DeviceName() string { return "fake" }

// Push delivers samples to the current callback synchronously. It is a no-op
// once the callback has been cleared.
func (f *FakeCapture) Push(samples []float32) bool {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(samples)
	return true
}

func (f *FakeCapture) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *FakeCapture) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.started = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	f.mu.Unlock()

	if len(f.samples) == 0 {
		close(f.feedDone)
		close(f.audioDone)
		return nil
	}

	interval := time.Duration(BlockSize) * time.Second / time.Duration(f.rate)
	go func() {
		defer close(f.feedDone)
		defer close(f.audioDone)
		for pos := 0; pos < len(f.samples); {
			end := min(pos+BlockSize, len(f.samples))
			f.Push(f.samples[pos:end])
			pos = end
			if !f.realtime {
				continue
			}
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if f.stopped || f.stopCh == nil {
		f.stopped = true
		f.mu.Unlock()
		return
	}
	f.stopped = true
	close(f.stopCh)
	done := f.feedDone
	f.mu.Unlock()
	<-done
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}
