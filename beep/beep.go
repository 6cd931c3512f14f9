package beep

import (
	"math"
	"sync"
	"sync/atomic"
)

var disabled atomic.Bool

// Disable silences every cue for the rest of the process.
func Disable() { disabled.Store(true) }

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Limit beep: two medium ticks
	limitFreq   = 700
	limitVolume = 0.5
	limitDecay  = 35

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

var (
	startSamples []int16
	endSamples   []int16
	limitSamples []int16
	errorSamples []int16
	soundOnce    sync.Once
)

func initSamples() {
	startSamples = generateTick(sampleRate, startFreq, 0.08, startVolume, startDecay)
	endSamples = generateTick(sampleRate, endFreq, 0.12, endVolume, endDecay)
	limitSamples = generateDoubleBeep(sampleRate, limitFreq, 0.1, 0.08, limitVolume, limitDecay)
	errorSamples = generateDoubleBeep(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay)
	initOutput()
}

// generateTick renders a mono sine with an exponential decay envelope.
func generateTick(rate int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(rate) * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(rate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(rate int, freq, beepDur, gapDur, volume, decay float64) []int16 {
	tick := generateTick(rate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(rate)*gapDur))
	result := make([]int16, 0, len(tick)*2+len(gap))
	result = append(result, tick...)
	result = append(result, gap...)
	result = append(result, tick...)
	return result
}

// Init renders the cues and opens the output ahead of the first play.
func Init() {
	soundOnce.Do(initSamples)
}

func cue(samples *[]int16) {
	if disabled.Load() {
		return
	}
	soundOnce.Do(initSamples)
	play(*samples)
}

// PlayStart marks the microphone going live.
func PlayStart() { cue(&startSamples) }

// PlayEnd marks a finalized recording.
func PlayEnd() { cue(&endSamples) }

// PlayLimit marks the recording hitting its maximum duration.
func PlayLimit() { cue(&limitSamples) }

func PlayError() { cue(&errorSamples) }
