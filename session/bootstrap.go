package session

import (
	"context"
	"fmt"

	"monologue/backend"
	"monologue/log"
)

// RecordingSession identifies one backend practice session.
type RecordingSession struct {
	ID      string
	IsGuest bool
	// Resumed is set when the id came from the store instead of a new request.
	Resumed bool
}

// API is the part of the backend the session needs.
type API interface {
	StartSession(ctx context.Context) (backend.StartResponse, error)
	UploadChunk(ctx context.Context, sessionID string, data []byte, filename, contentType string) error
	Finalize(ctx context.Context, sessionID string) (backend.FinalizeResponse, error)
	GenerateTopics(ctx context.Context, transcript string) ([]string, error)
}

type Bootstrapper struct {
	api   API
	store *Store
}

func NewBootstrapper(api API, store *Store) *Bootstrapper {
	return &Bootstrapper{api: api, store: store}
}

// Start returns the cached unfinished session or creates a new one. There is
// no retry; a failure aborts the recording start.
func (b *Bootstrapper) Start(ctx context.Context) (RecordingSession, error) {
	if b.store != nil {
		if sess, ok := b.store.Get(); ok {
			sess.Resumed = true
			return sess, nil
		}
	}

	resp, err := b.api.StartSession(ctx)
	if err != nil {
		return RecordingSession{}, fmt.Errorf("%w: %w", ErrSessionStart, err)
	}
	sess := RecordingSession{ID: resp.SessionID, IsGuest: resp.IsGuest}
	if b.store != nil {
		if err := b.store.Save(sess); err != nil {
			log.Warnf("session: could not persist id: %v", err)
		}
	}
	return sess, nil
}
