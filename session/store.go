package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultSessionTTL = 1 * time.Hour
	currentKey        = "current"
	stateFile         = "session.json"
)

type storedSession struct {
	ID        string    `json:"session_id"`
	IsGuest   bool      `json:"is_guest"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StoreOwner identifies the credentials a session was created with, so an id
// made as a guest is never resumed by a signed-in run or the other way round.
// The token itself is never written to disk.
func StoreOwner(token string) string {
	if token == "" {
		return "guest"
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// Store remembers the unfinished session id so a restarted client rejoins
// the same backend session. Entries expire after the TTL and belong to one
// owner (see StoreOwner). When dir is set the entry is mirrored to a JSON file
// there.
type Store struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
	path  string
	owner string
}

func NewStore(dir string, ttl time.Duration, owner string) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &Store{
		cache: cache.New(ttl, 10*time.Minute),
		ttl:   ttl,
		owner: owner,
	}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	s.path = filepath.Join(dir, stateFile)
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var st storedSession
	if err := json.Unmarshal(data, &st); err != nil {
		// a corrupt state file only costs us resumption
		os.Remove(s.path)
		return nil
	}
	remaining := time.Until(st.ExpiresAt)
	if st.ID == "" || remaining <= 0 || st.Owner != s.owner {
		os.Remove(s.path)
		return nil
	}
	s.cache.Set(currentKey, st, remaining)
	return nil
}

func (s *Store) Get() (RecordingSession, bool) {
	v, ok := s.cache.Get(currentKey)
	if !ok {
		return RecordingSession{}, false
	}
	st := v.(storedSession)
	return RecordingSession{ID: st.ID, IsGuest: st.IsGuest}, true
}

func (s *Store) Save(sess RecordingSession) error {
	st := storedSession{ID: sess.ID, IsGuest: sess.IsGuest, Owner: s.owner, ExpiresAt: time.Now().Add(s.ttl)}
	s.cache.Set(currentKey, st, cache.DefaultExpiration)
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Clear forgets the session. Called once the backend has finalized it or has
// rejected it.
func (s *Store) Clear() error {
	s.cache.Delete(currentKey)
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
