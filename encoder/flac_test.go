package encoder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlacEncoder(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}

	var totalFed uint64
	for i := 0; i < 5; i++ {
		block := make([]int16, 1365)
		for j := range block {
			block[j] = int16((i*1365 + j) % 2000)
		}
		if err := enc.EncodeBlock(block); err != nil {
			t.Fatalf("EncodeBlock %d: %v", i, err)
		}
		totalFed += uint64(len(block))
	}

	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if enc.TotalFrames() != totalFed {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), totalFed)
	}
	data := enc.Bytes()
	if len(data) < 4 || string(data[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
}

func TestFlacEncoderEmpty(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close on empty encoder: %v", err)
	}
	if enc.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d, want 0", enc.TotalFrames())
	}
	if len(enc.Bytes()) == 0 {
		t.Error("expected non-empty FLAC output (at least header)")
	}
}

func TestFlacEncoderSplitsLongBlocks(t *testing.T) {
	enc, err := NewFlac()
	require.NoError(t, err)
	require.NoError(t, enc.EncodeBlock(make([]int16, MaxBlockSize*2+10)))
	require.NoError(t, enc.Close())
	assert.Equal(t, uint64(MaxBlockSize*2+10), enc.TotalFrames())
	assert.Error(t, enc.EncodeBlock([]int16{1}))
}

func TestRecorderFlushesOnStop(t *testing.T) {
	rec, err := NewFlacRecorder()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.True(t, rec.Write(make([]int16, 1365)))
	}
	blob, err := rec.Stop()
	require.NoError(t, err)

	assert.Equal(t, 10, blob.Chunks)
	assert.Equal(t, uint64(13650), blob.Samples)
	assert.Equal(t, "audio/flac", blob.ContentType)
	assert.Equal(t, "fLaC", string(blob.Data[:4]))
	assert.InDelta(t, 0.853, blob.Duration().Seconds(), 0.001)

	assert.False(t, rec.Write(make([]int16, 10)), "write after stop must be refused")

	again, err := rec.Stop()
	require.NoError(t, err)
	assert.Equal(t, blob.Chunks, again.Chunks)
}

func TestRecorderNoAudio(t *testing.T) {
	rec, err := NewFlacRecorder()
	require.NoError(t, err)
	assert.True(t, rec.Write(nil))

	blob, err := rec.Stop()
	require.NoError(t, err)
	assert.Zero(t, blob.Chunks)
	assert.Zero(t, blob.Samples)
}

type failingEncoder struct {
	mu     sync.Mutex
	blocks int
}

func (f *failingEncoder) EncodeBlock([]int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks++
	return errors.New("disk full")
}
func (f *failingEncoder) Close() error              { return nil }
func (f *failingEncoder) Bytes() []byte             { return nil }
func (f *failingEncoder) TotalFrames() uint64       { return 0 }
func (f *failingEncoder) EncodeTime() time.Duration { return 0 }
func (f *failingEncoder) ContentType() string       { return "audio/test" }
func (f *failingEncoder) Ext() string               { return ".bin" }

func TestRecorderSurfacesEncodeError(t *testing.T) {
	enc := &failingEncoder{}
	rec := NewRecorder(enc)
	rec.Write([]int16{1, 2})
	rec.Write([]int16{3, 4})

	_, err := rec.Stop()
	require.EqualError(t, err, "disk full")
	assert.Equal(t, 1, enc.blocks, "encoding stops after the first failure")
}
