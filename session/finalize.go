package session

import (
	"context"
	"errors"
	"fmt"

	"monologue/backend"
	"monologue/encoder"
	"monologue/log"
	"monologue/metrics"
)

// FinalizedResult is produced once per session.
type FinalizedResult struct {
	SessionID       string
	Transcript      string
	FillerWordCount int
	AudioURL        string
	AudioSeconds    float64
}

// finalize uploads the recording and closes the backend session. With no
// captured audio it makes no network calls and reports ok=false.
func (c *Controller) finalize(ctx context.Context, sess RecordingSession, blob encoder.Blob, live string) (res FinalizedResult, ok bool, err error) {
	if sess.ID == "" {
		return FinalizedResult{}, false, ErrSessionNotInitialized
	}
	if blob.Chunks == 0 {
		metrics.SessionsTotal.WithLabelValues("empty").Inc()
		return FinalizedResult{}, false, nil
	}

	// in-flight requests are never cancelled; the client timeout bounds them
	ctx = context.WithoutCancel(ctx)

	filename := "recording" + blob.Ext
	if err := c.opts.API.UploadChunk(ctx, sess.ID, blob.Data, filename, blob.ContentType); err != nil {
		metrics.SessionsTotal.WithLabelValues("failed").Inc()
		c.forgetRejected(sess, err)
		return FinalizedResult{}, false, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	resp, err := c.opts.API.Finalize(ctx, sess.ID)
	if err != nil {
		metrics.SessionsTotal.WithLabelValues("failed").Inc()
		c.forgetRejected(sess, err)
		return FinalizedResult{}, false, fmt.Errorf("%w: %w", ErrFinalize, err)
	}

	res = FinalizedResult{
		SessionID:       sess.ID,
		Transcript:      resp.Final,
		FillerWordCount: resp.FillerWordCount,
		AudioURL:        resp.AudioURL,
		AudioSeconds:    blob.Duration().Seconds(),
	}
	if res.Transcript == "" {
		res.Transcript = live
	}
	if res.AudioURL == "" {
		u, err := c.playback.Replace(blob.Data, blob.Ext)
		if err != nil {
			log.Warnf("session: keeping local copy: %v", err)
		} else {
			res.AudioURL = u
		}
	}

	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			log.Warnf("session: clearing cached id: %v", err)
		}
	}
	metrics.SessionsTotal.WithLabelValues("finalized").Inc()
	log.Finalized(sess.ID, blob.Chunks, res.AudioSeconds, res.FillerWordCount, res.AudioURL)
	log.TranscriptText(sess.ID, res.Transcript)
	return res, true, nil
}

// forgetRejected drops the cached id when the backend answered with a client
// error: the session is unknown, expired or not ours, so resuming it can only
// fail again. Transport errors and 5xx keep it for the next attempt.
func (c *Controller) forgetRejected(sess RecordingSession, err error) {
	var se *backend.StatusError
	if c.store == nil || !errors.As(err, &se) || se.Code < 400 || se.Code >= 500 {
		return
	}
	log.Warnf("session: backend rejected %s (HTTP %d), starting fresh next time", sess.ID, se.Code)
	if err := c.store.Clear(); err != nil {
		log.Warnf("session: clearing cached id: %v", err)
	}
}
