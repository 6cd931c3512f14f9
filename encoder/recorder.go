package encoder

import (
	"sync"
	"time"
)

// Blob is the flushed output of a Recorder.
type Blob struct {
	Data        []byte
	ContentType string
	Ext         string
	Chunks      int
	Samples     uint64
	EncodeTime  time.Duration
}

// Duration is the length of captured audio.
func (b Blob) Duration() time.Duration {
	return time.Duration(float64(b.Samples) / SampleRate * float64(time.Second))
}

// Recorder encodes blocks on its own goroutine so the capture callback never
// waits on compression. Stop drains whatever is queued before returning.
type Recorder struct {
	enc Encoder
	in  chan []int16

	mu      sync.Mutex
	stopped bool
	chunks  int

	done chan struct{}
	err  error

	stopOnce sync.Once
	blob     Blob
}

func NewRecorder(enc Encoder) *Recorder {
	r := &Recorder{
		enc:  enc,
		in:   make(chan []int16, 64),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

// NewFlacRecorder is the default recorder used by capture sessions.
func NewFlacRecorder() (*Recorder, error) {
	enc, err := NewFlac()
	if err != nil {
		return nil, err
	}
	return NewRecorder(enc), nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for block := range r.in {
		if r.err != nil {
			continue
		}
		if err := r.enc.EncodeBlock(block); err != nil {
			r.err = err
		}
	}
}

// Write queues one block. It reports false once the recorder has been stopped.
func (r *Recorder) Write(block []int16) bool {
	if len(block) == 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.chunks++
	r.in <- block
	return true
}

// Chunks is the number of blocks accepted so far.
func (r *Recorder) Chunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks
}

// Stop closes the input, waits for the encoder to flush and returns the blob.
// Later calls return the same result.
func (r *Recorder) Stop() (Blob, error) {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		close(r.in)
		chunks := r.chunks
		r.mu.Unlock()

		<-r.done
		if err := r.enc.Close(); err != nil && r.err == nil {
			r.err = err
		}
		r.blob = Blob{
			Data:        r.enc.Bytes(),
			ContentType: r.enc.ContentType(),
			Ext:         r.enc.Ext(),
			Chunks:      chunks,
			Samples:     r.enc.TotalFrames(),
			EncodeTime:  r.enc.EncodeTime(),
		}
	})
	return r.blob, r.err
}
