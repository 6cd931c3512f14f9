package audio

import (
	"encoding/binary"
	"math"
)

// FloatToInt16 clamps to [-1, 1] and scales asymmetrically so both ends of the
// int16 range are reachable.
func FloatToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	// scale in double precision; float32 rounding can cross an integer
	if s < 0 {
		return int16(float64(s) * 32768)
	}
	return int16(float64(s) * 32767)
}

// Downsample box-filters in to TargetRate. Output sample i is the mean of the
// inputs in [round(i*ratio), round((i+1)*ratio)). Input at TargetRate is
// returned as-is.
func Downsample(in []float32, nativeRate int) []float32 {
	if nativeRate == TargetRate || nativeRate <= 0 || len(in) == 0 {
		return in
	}
	ratio := float64(nativeRate) / float64(TargetRate)
	outLen := int(math.Round(float64(len(in)) / ratio))
	out := make([]float32, outLen)

	for i := range out {
		start := int(math.Round(float64(i) * ratio))
		end := int(math.Round(float64(i+1) * ratio))
		if end > len(in) {
			end = len(in)
		}
		if start >= end {
			// upsampling or tail rounding: hold the nearest input sample
			if start >= len(in) {
				start = len(in) - 1
			}
			out[i] = in[start]
			continue
		}
		var sum float64
		for _, s := range in[start:end] {
			sum += float64(s)
		}
		out[i] = float32(sum / float64(end-start))
	}
	return out
}

// ToPCM16 downsamples to TargetRate and converts to 16-bit samples.
func ToPCM16(in []float32, nativeRate int) []int16 {
	ds := Downsample(in, nativeRate)
	out := make([]int16, len(ds))
	for i, s := range ds {
		out[i] = FloatToInt16(s)
	}
	return out
}

// EncodeLE serializes samples as little-endian bytes, the wire format of the stream.
func EncodeLE(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// Framer regroups arbitrary callback sizes into fixed BlockSize blocks, the
// way a script processor node hands out buffers.
type Framer struct {
	size int
	buf  []float32
	emit func(block []float32)
}

func NewFramer(size int, emit func(block []float32)) *Framer {
	if size <= 0 {
		size = BlockSize
	}
	return &Framer{size: size, buf: make([]float32, 0, size), emit: emit}
}

func (f *Framer) Write(samples []float32) {
	for len(samples) > 0 {
		n := min(f.size-len(f.buf), len(samples))
		f.buf = append(f.buf, samples[:n]...)
		samples = samples[n:]
		if len(f.buf) == f.size {
			block := make([]float32, f.size)
			copy(block, f.buf)
			f.buf = f.buf[:0]
			f.emit(block)
		}
	}
}

// Reset drops a partially filled block.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
