package session

import (
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// Playback owns the local copy of the last recording, used when the backend
// does not host the audio. At most one file exists at a time.
type Playback struct {
	dir string

	mu   sync.Mutex
	path string
}

func NewPlayback(dir string) *Playback {
	return &Playback{dir: dir}
}

// Replace removes the previous file, writes data to a new one and returns its
// file:// URL.
func (p *Playback) Replace(data []byte, ext string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()

	if p.dir != "" {
		if err := os.MkdirAll(p.dir, 0755); err != nil {
			return "", err
		}
	}
	f, err := os.CreateTemp(p.dir, "monologue-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	abs, err := filepath.Abs(f.Name())
	if err != nil {
		abs = f.Name()
	}
	p.path = abs
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// Release removes the current file, if any.
func (p *Playback) Release() {
	p.mu.Lock()
	p.releaseLocked()
	p.mu.Unlock()
}

func (p *Playback) releaseLocked() {
	if p.path != "" {
		os.Remove(p.path)
		p.path = ""
	}
}

func (p *Playback) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}
