// Package transport keeps one authenticated websocket session alive and
// turns it into a stream of decoded frames.
package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sisi-realtime/internal/wire"
)

const (
	DefaultReconnectDelay = 3 * time.Second
	DefaultQueueLimit     = 100

	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

var (
	ErrMissingCredentials = errors.New("transport: user id and token are required")
	ErrAlreadyOpen        = errors.New("transport: session already open")
	ErrTokenExpired       = errors.New("transport: auth token expired")
	ErrNotConnected       = errors.New("transport: not connected, frame dropped")
)

type State int

const (
	Idle State = iota
	Connecting
	Open
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return "idle"
	}
}

// SendPolicy decides what Send does while the session is not open.
type SendPolicy int

const (
	DropWhileDisconnected SendPolicy = iota
	QueueWhileDisconnected
)

func ParseSendPolicy(s string) (SendPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return DropWhileDisconnected, nil
	case "queue":
		return QueueWhileDisconnected, nil
	default:
		return DropWhileDisconnected, fmt.Errorf("unknown send policy %q", s)
	}
}

// Session is a snapshot of the connection bookkeeping. The token is
// deliberately not part of it.
type Session struct {
	UserID     string
	State      State
	RetryCount int
}

type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventError
	EventClosed
)

type Event struct {
	Kind    EventKind
	Session Session
	Err     error
}

type Options struct {
	// BaseURL is the backend origin, http(s) or ws(s).
	BaseURL         string
	ReconnectDelay  time.Duration
	ReconnectJitter time.Duration
	SendPolicy      SendPolicy
	QueueLimit      int
	Dialer          *websocket.Dialer
	Logger          *zap.Logger
	Now             func() time.Time
}

type Transport struct {
	opts   Options
	log    *zap.Logger
	frames chan wire.Frame
	events chan Event

	mu      sync.Mutex
	state   State
	userID  string
	token   string
	retries int
	gen     uint64
	cancel  context.CancelFunc
	conn    *websocket.Conn
	out     chan []byte
	queue   [][]byte

	// emitMu lets Close wait for in-flight deliveries before returning.
	emitMu sync.RWMutex
}

func New(opts Options) *Transport {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.QueueLimit <= 0 {
		opts.QueueLimit = DefaultQueueLimit
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{
		opts:   opts,
		log:    log.Named("transport"),
		frames: make(chan wire.Frame, 64),
		events: make(chan Event, 16),
	}
}

// Frames delivers every decoded inbound frame in arrival order.
func (t *Transport) Frames() <-chan wire.Frame { return t.frames }

func (t *Transport) Events() <-chan Event { return t.events }

func (t *Transport) Session() Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionLocked()
}

func (t *Transport) sessionLocked() Session {
	return Session{UserID: t.userID, State: t.state, RetryCount: t.retries}
}

// Open starts connecting in the background and returns immediately.
func (t *Transport) Open(userID, token string) error {
	if userID == "" || token == "" {
		return ErrMissingCredentials
	}
	if tokenExpired(token, t.opts.Now()) {
		return ErrTokenExpired
	}
	endpoint, err := WebSocketURL(t.opts.BaseURL, userID, token)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.state != Idle && t.state != Closed {
		t.mu.Unlock()
		return ErrAlreadyOpen
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	gen := t.gen
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.userID = userID
	t.token = token
	t.retries = 0
	t.queue = nil
	t.state = Connecting
	t.mu.Unlock()

	go t.run(ctx, gen, endpoint, token)
	return nil
}

// Close ends the session. Once it returns no further frames or events from
// that session are delivered and no reconnect is pending.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.state == Idle || t.state == Closed {
		cancel := t.cancel
		t.cancel = nil
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	t.gen++
	t.state = Closed
	cancel := t.cancel
	conn := t.conn
	t.cancel = nil
	t.conn = nil
	t.out = nil
	t.queue = nil
	t.token = ""
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
	}

	t.emitMu.Lock()
	t.emitMu.Unlock()
}

// Send never blocks. While the session is not open the frame is dropped or
// queued according to the configured policy.
func (t *Transport) Send(f wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Open && t.out != nil {
		select {
		case t.out <- data:
			return nil
		default:
			t.log.Warn("write buffer full", zap.String("type", f.Type()))
		}
	}

	if t.opts.SendPolicy == QueueWhileDisconnected && t.state != Idle && t.state != Closed {
		if len(t.queue) >= t.opts.QueueLimit {
			t.log.Warn("send queue full, dropping oldest frame")
			t.queue = t.queue[1:]
		}
		t.queue = append(t.queue, data)
		return nil
	}

	t.log.Debug("dropping frame while disconnected", zap.String("type", f.Type()), zap.Stringer("state", t.state))
	return ErrNotConnected
}

func (t *Transport) run(ctx context.Context, gen uint64, endpoint, token string) {
	log := t.log.With(zap.Uint64("session", gen))

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if !t.wait(ctx, t.reconnectDelay()) {
				return
			}
			if tokenExpired(token, t.opts.Now()) {
				log.Info("token expired, giving up")
				t.finish(ctx, gen, ErrTokenExpired)
				return
			}
			if !t.setState(gen, Connecting, true) {
				return
			}
		}

		conn, _, err := t.opts.Dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Debug("dial failed", zap.Error(err), zap.Int("attempt", attempt))
			if !t.setState(gen, Reconnecting, false) {
				return
			}
			t.emitEvent(ctx, Event{Kind: EventError, Session: t.Session(), Err: err})
			continue
		}

		t.serve(ctx, gen, conn, log)
		if ctx.Err() != nil {
			return
		}
		if !t.setState(gen, Reconnecting, false) {
			return
		}
		t.emitEvent(ctx, Event{Kind: EventDisconnected, Session: t.Session()})
	}
}

func (t *Transport) serve(ctx context.Context, gen uint64, conn *websocket.Conn, log *zap.Logger) {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	out := make(chan []byte, t.opts.QueueLimit+64)
	for _, data := range t.queue {
		out <- data
	}
	if n := len(t.queue); n > 0 {
		log.Debug("flushing queued frames", zap.Int("count", n))
	}
	t.queue = nil
	t.out = out
	t.conn = conn
	t.state = Open
	t.retries = 0
	sess := t.sessionLocked()
	t.mu.Unlock()

	t.emitEvent(ctx, Event{Kind: EventConnected, Session: sess})

	done := make(chan struct{})
	go t.writePump(conn, out, done)
	t.readPump(ctx, conn, log)
	close(done)
	_ = conn.Close()

	t.mu.Lock()
	if t.gen == gen {
		t.conn = nil
		t.out = nil
	}
	t.mu.Unlock()
}

func (t *Transport) readPump(ctx context.Context, conn *websocket.Conn, log *zap.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Debug("read ended", zap.Error(err))
			}
			return
		}
		f, err := wire.Decode(data)
		if err != nil {
			log.Warn("discarding malformed frame", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		if !t.emitFrame(ctx, f) {
			return
		}
	}
}

func (t *Transport) writePump(conn *websocket.Conn, out <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case data := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (t *Transport) setState(gen uint64, s State, retry bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		return false
	}
	t.state = s
	if retry {
		t.retries++
	}
	return true
}

func (t *Transport) finish(ctx context.Context, gen uint64, err error) {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.state = Closed
	t.queue = nil
	t.token = ""
	sess := t.sessionLocked()
	t.mu.Unlock()

	t.emitEvent(ctx, Event{Kind: EventClosed, Session: sess, Err: err})
}

func (t *Transport) emitFrame(ctx context.Context, f wire.Frame) bool {
	t.emitMu.RLock()
	defer t.emitMu.RUnlock()
	if ctx.Err() != nil {
		return false
	}
	select {
	case t.frames <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func (t *Transport) emitEvent(ctx context.Context, ev Event) {
	t.emitMu.RLock()
	defer t.emitMu.RUnlock()
	if ctx.Err() != nil {
		return
	}
	select {
	case t.events <- ev:
	case <-ctx.Done():
	}
}

func (t *Transport) reconnectDelay() time.Duration {
	d := t.opts.ReconnectDelay
	if j := t.opts.ReconnectJitter; j > 0 {
		d += time.Duration(rand.Int63n(int64(j) + 1))
	}
	return d
}

func (t *Transport) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// WebSocketURL builds <base>/ws/<userID>?token=<token>, swapping an http(s)
// scheme for ws(s).
func WebSocketURL(base, userID, token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported backend url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("backend url %q has no host", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + userID
	u.RawPath = ""
	u.RawQuery = url.Values{"token": {token}}.Encode()
	u.Fragment = ""
	return u.String(), nil
}
