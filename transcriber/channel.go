package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"monologue/log"

	"nhooyr.io/websocket"
)

var ErrStreamingConnection = errors.New("streaming connection error")

const writeTimeout = 5 * time.Second

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var transitions = map[State][]State{
	StateConnecting: {StateOpen, StateClosed},
	StateOpen:       {StateClosing, StateClosed},
	StateClosing:    {StateClosed},
	StateClosed:     nil,
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Handlers receive inbound events on the channel's read goroutine, in socket
// order. Any of them may be nil.
type Handlers struct {
	OnTurn        func(Turn)
	OnTermination func(Termination)
	// OnError is called at most once per channel.
	OnError func(error)
}

type Stats struct {
	ConnectDur    time.Duration
	SentFrames    int
	DroppedFrames int
	SentBytes     uint64
	RecvMessages  int
	RecvTurns     int
	RecvFinal     int
	Ignored       int
}

// Channel is one duplex transcription socket. Audio flows out as binary
// frames; transcript turns flow back as JSON text frames.
type Channel struct {
	url string
	h   Handlers

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	stats  Stats

	errOnce  sync.Once
	readDone chan struct{}
}

// StreamURL derives the socket endpoint from the HTTP API base URL.
func StreamURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/stream"
	u.RawQuery = ""
	return u.String(), nil
}

// NewChannel returns a channel in the Connecting state. Frames sent before
// Connect succeeds are dropped.
func NewChannel(wsURL string, h Handlers) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		url:      wsURL,
		h:        h,
		state:    StateConnecting,
		ctx:      ctx,
		cancel:   cancel,
		readDone: make(chan struct{}),
	}
}

// Dial connects a new channel and blocks until it is open.
func Dial(ctx context.Context, wsURL string, h Handlers) (*Channel, error) {
	c := NewChannel(wsURL, h)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect performs the handshake. A failure is reported through OnError and
// returned; there is no reconnect.
func (c *Channel) Connect(ctx context.Context) error {
	start := time.Now()
	dialCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-c.ctx.Done():
			stop()
		case <-dialCtx.Done():
		}
	}()

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		Subprotocols: []string{"json"},
	})

	c.mu.Lock()
	c.stats.ConnectDur = time.Since(start)
	if c.state != StateConnecting {
		// torn down while dialing
		c.mu.Unlock()
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "")
		}
		close(c.readDone)
		return nil
	}
	if err != nil {
		c.transition(StateClosed)
		c.mu.Unlock()
		close(c.readDone)
		wrapped := fmt.Errorf("%w: %v", ErrStreamingConnection, err)
		c.reportError(wrapped)
		return wrapped
	}
	conn.SetReadLimit(1 << 20)
	c.conn = conn
	c.transition(StateOpen)
	c.mu.Unlock()

	go c.readLoop()
	return nil
}

// transition must be called with mu held.
func (c *Channel) transition(to State) bool {
	if !canTransition(c.state, to) {
		log.Warnf("stream: invalid transition %s -> %s", c.state, to)
		return false
	}
	c.state = to
	return true
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Send writes one binary frame if the channel is open and reports whether it
// was sent. Frames are never queued.
func (c *Channel) Send(frame []byte) bool {
	c.mu.Lock()
	if c.state != StateOpen {
		c.stats.DroppedFrames++
		c.mu.Unlock()
		return false
	}
	conn := c.conn
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	err := conn.Write(ctx, websocket.MessageBinary, frame)
	cancel()

	if err != nil {
		c.mu.Lock()
		c.stats.DroppedFrames++
		wasOpen := c.state == StateOpen
		if wasOpen {
			c.transition(StateClosed)
		}
		c.mu.Unlock()
		if wasOpen {
			c.reportError(fmt.Errorf("%w: %v", ErrStreamingConnection, err))
		}
		return false
	}
	c.count(func(s *Stats) {
		s.SentFrames++
		s.SentBytes += uint64(len(frame))
	})
	return true
}

// Terminate sends the Terminate control frame, closes the socket and waits
// for the reader to exit or ctx to expire. Safe to call in any state.
func (c *Channel) Terminate(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting:
		c.transition(StateClosed)
		c.mu.Unlock()
		c.cancel()
		return nil
	case StateClosing, StateClosed:
		c.mu.Unlock()
		c.cancel()
		return nil
	}
	c.transition(StateClosing)
	conn := c.conn
	c.mu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	werr := conn.Write(wctx, websocket.MessageText, terminateFrame)
	cancel()
	if werr != nil {
		log.Warnf("stream: terminate write failed: %v", werr)
	}
	cerr := conn.Close(websocket.StatusNormalClosure, "")

	c.mu.Lock()
	c.transition(StateClosed)
	c.mu.Unlock()

	var err error
	select {
	case <-c.readDone:
	case <-ctx.Done():
		err = ctx.Err()
		log.Warn("stream receiver drain timeout")
	}
	c.cancel()

	if werr != nil {
		return werr
	}
	if cerr != nil && !isNormalClose(cerr) {
		return cerr
	}
	return err
}

func (c *Channel) readLoop() {
	defer close(c.readDone)
	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			wasOpen := c.state == StateOpen
			if wasOpen {
				c.transition(StateClosed)
			}
			c.mu.Unlock()
			if wasOpen && !isNormalClose(err) {
				c.reportError(fmt.Errorf("%w: %v", ErrStreamingConnection, err))
			}
			return
		}
		if typ != websocket.MessageText {
			c.count(func(s *Stats) { s.Ignored++ })
			continue
		}
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	c.count(func(s *Stats) { s.RecvMessages++ })

	msg, err := parseMessage(data)
	if err != nil {
		c.count(func(s *Stats) { s.Ignored++ })
		return
	}

	switch msg.Type {
	case MsgBegin:
	case MsgTurn:
		turn, ok := msg.Turn()
		if !ok {
			return
		}
		c.count(func(s *Stats) {
			s.RecvTurns++
			if turn.Final {
				s.RecvFinal++
			}
		})
		if c.h.OnTurn != nil {
			c.h.OnTurn(turn)
		}
	case MsgTermination:
		log.Infof("stream: upstream terminated audio=%.1fs session=%.1fs",
			msg.AudioDurationSeconds, msg.SessionDurationSeconds)
		if c.h.OnTermination != nil {
			c.h.OnTermination(Termination{
				AudioDurationSeconds:   msg.AudioDurationSeconds,
				SessionDurationSeconds: msg.SessionDurationSeconds,
			})
		}
	case MsgError:
		reason := msg.Reason
		if reason == "" {
			reason = "upstream error"
		}
		c.reportError(fmt.Errorf("%w: %s", ErrStreamingConnection, reason))
	default:
		c.count(func(s *Stats) { s.Ignored++ })
	}
}

func (c *Channel) count(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

func (c *Channel) reportError(err error) {
	c.errOnce.Do(func() {
		log.Errorf("stream: %v", err)
		if c.h.OnError != nil {
			c.h.OnError(err)
		}
	})
}

func isNormalClose(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
