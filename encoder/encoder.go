package encoder

import "time"

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	// MaxBlockSize bounds a single encoded block; a 4096-sample capture block
	// shrinks to roughly a third of this after decimation.
	MaxBlockSize = 4096
	minBlockSize = 16
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	EncodeTime() time.Duration
	ContentType() string
	Ext() string
}
