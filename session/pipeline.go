package session

import (
	"context"
	"fmt"
	"time"

	"monologue/audio"
	"monologue/encoder"
	"monologue/log"
	"monologue/metrics"
	"monologue/transcriber"
)

const (
	connectTimeout   = 10 * time.Second
	terminateTimeout = 3 * time.Second
)

// recording owns every per-session resource. It is built fresh by Start and
// dropped at teardown; nothing in it is reused across sessions.
type recording struct {
	session  RecordingSession
	capture  audio.CaptureDevice
	channel  *transcriber.Channel
	recorder *encoder.Recorder
	framer   *audio.Framer
	started  time.Time

	connectDone chan struct{}
	cancelDial  context.CancelFunc
}

// acquire opens the microphone and wires source -> framer -> processor. The
// graph has no playback node, so captured audio is never echoed.
func (c *Controller) acquire(rec *recording) error {
	dev, err := c.opts.Audio.NewCapture(c.opts.Device, audio.CaptureConfig{
		SampleRate: uint32(c.opts.NativeRate),
		Channels:   1,
	})
	if err != nil {
		return err
	}
	rec.capture = dev
	rec.framer = audio.NewFramer(audio.BlockSize, func(block []float32) {
		c.processBlock(rec, block)
	})
	dev.SetCallback(rec.framer.Write)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return err
	}
	return nil
}

// processBlock converts one native-rate block and sends it as a single frame.
// Nothing is buffered: if the socket is not open the frame is dropped.
func (c *Controller) processBlock(rec *recording, block []float32) {
	pcm := audio.ToPCM16(block, rec.capture.SampleRate())
	if len(pcm) == 0 {
		return
	}
	metrics.Frame(rec.channel.Send(audio.EncodeLE(pcm)))
	rec.recorder.Write(pcm)
}

func (c *Controller) dial(rec *recording) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	rec.cancelDial = cancel
	go func() {
		defer close(rec.connectDone)
		defer cancel()
		if err := rec.channel.Connect(ctx); err != nil {
			metrics.StreamErrorsTotal.Inc()
		}
	}()
}

func (c *Controller) channelHandlers() transcriber.Handlers {
	return transcriber.Handlers{
		OnTurn: c.onTurn,
		OnTermination: func(t transcriber.Termination) {
			log.Infof("session: upstream audio %.1fs", t.AudioDurationSeconds)
		},
		OnError: c.onStreamError,
	}
}

func (c *Controller) onTurn(turn transcriber.Turn) {
	metrics.Turn(turn.Final)
	if c.recon.OnTurn(turn.Text, turn.Final) {
		c.trigger.Activity(c.now())
	}
	c.sink.TranscriptChanged(c.recon.Display())
}

func (c *Controller) onStreamError(err error) {
	metrics.StreamErrorsTotal.Inc()
	c.setError(err)
}

// release tears the pipeline down in order: socket, callback, microphone,
// recorder. Every step runs; failures are logged.
func (c *Controller) release(ctx context.Context, rec *recording) encoder.Blob {
	if rec.cancelDial != nil {
		rec.cancelDial()
	}
	tctx, cancel := context.WithTimeout(ctx, terminateTimeout)
	if err := rec.channel.Terminate(tctx); err != nil {
		log.Warnf("session: terminate stream: %v", err)
	}
	cancel()

	rec.capture.ClearCallback()
	rec.capture.Stop()
	rec.capture.Close()

	blob, err := rec.recorder.Stop()
	if err != nil {
		log.Warnf("session: recorder flush: %v", err)
	}

	st := rec.channel.Stats()
	log.StreamStats(log.StreamStatsData{
		ConnectMs:     float64(st.ConnectDur.Microseconds()) / 1000,
		TotalMs:       float64(time.Since(rec.started).Microseconds()) / 1000,
		AudioS:        blob.Duration().Seconds(),
		SentFrames:    st.SentFrames,
		DroppedFrames: st.DroppedFrames,
		SentKB:        float64(st.SentBytes) / 1024,
		RecvMessages:  st.RecvMessages,
		RecvTurns:     st.RecvTurns,
		RecvFinal:     st.RecvFinal,
	})
	return blob
}

func captureError(err error) error {
	return fmt.Errorf("microphone: %w", err)
}
