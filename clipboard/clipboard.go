package clipboard

import (
	"errors"
	"time"

	cb "github.com/atotto/clipboard"
)

var (
	ErrUnavailable = errors.New("no clipboard utility found (install xclip, xsel or wl-clipboard)")
	ErrTimeout     = errors.New("clipboard timed out")
)

const defaultTimeout = 3 * time.Second

// swapped in tests
var (
	writeAll    = cb.WriteAll
	readAll     = cb.ReadAll
	unsupported = func() bool { return cb.Unsupported }
)

func Available() bool {
	return !unsupported()
}

// Copy writes text to the system clipboard. The helper tool can hang when the
// display is unreachable, so the call is bounded.
func Copy(text string) error {
	if unsupported() {
		return ErrUnavailable
	}
	return bounded(func() error { return writeAll(text) })
}

func Read() (string, error) {
	if unsupported() {
		return "", ErrUnavailable
	}
	var out string
	err := bounded(func() error {
		s, err := readAll()
		out = s
		return err
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func bounded(fn func() error) error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	select {
	case err := <-ch:
		return err
	case <-time.After(defaultTimeout):
		return ErrTimeout
	}
}
