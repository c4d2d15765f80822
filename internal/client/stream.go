package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnState is the live stream connection state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// TokenSource yields the credential presented at each handshake.
type TokenSource interface {
	Get() (string, bool)
}

// StreamConfig configures a Stream. Zero durations take the defaults
// below.
type StreamConfig struct {
	URL           string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	PingInterval  time.Duration
	PongTimeout   time.Duration
	Dialer        *websocket.Dialer
}

const (
	defaultReconnectBase = 1 * time.Second
	defaultReconnectMax  = 30 * time.Second
	defaultPingInterval  = 30 * time.Second
	defaultPongTimeout   = 60 * time.Second
	writeTimeout         = 10 * time.Second
)

type handlerFunc func(payload json.RawMessage) error

// Stream maintains one logical subscription to the backend's live event
// source and dispatches each frame to the handler registered for its tag.
//
// Handlers run on the stream's reader goroutine in receipt order and must
// not block or call Disconnect. Frames whose tag has no handler at
// dispatch time are dropped.
type Stream struct {
	cfg   StreamConfig
	creds TokenSource
	log   *zap.Logger
	jit   func() float64

	mu        sync.Mutex
	state     ConnState
	running   bool
	announced bool
	cancel    context.CancelFunc
	done      chan struct{}
	conn      *websocket.Conn
	handlers  map[EventTag]handlerFunc
	onConnect func(bool)
}

// NewStream creates a disconnected Stream.
func NewStream(cfg StreamConfig, creds TokenSource, log *zap.Logger) *Stream {
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = defaultReconnectBase
	}
	if cfg.ReconnectMax < cfg.ReconnectBase {
		cfg.ReconnectMax = max(defaultReconnectMax, cfg.ReconnectBase)
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Stream{
		cfg:      cfg,
		creds:    creds,
		log:      log,
		jit:      rand.Float64,
		handlers: make(map[EventTag]handlerFunc),
	}
}

// --- Handler registration ---

// OnGateEvent registers fn for gate_event frames; nil unregisters.
func (c *Stream) OnGateEvent(fn func(GateEvent)) {
	if fn == nil {
		c.setHandler(TagGateEvent, nil)
		return
	}
	c.setHandler(TagGateEvent, func(raw json.RawMessage) error {
		var e GateEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		fn(e)
		return nil
	})
}

// OnAlert registers fn for new_alert frames; nil unregisters.
func (c *Stream) OnAlert(fn func(Alert)) {
	if fn == nil {
		c.setHandler(TagNewAlert, nil)
		return
	}
	c.setHandler(TagNewAlert, func(raw json.RawMessage) error {
		var a Alert
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		if a.ID == "" {
			return errors.New("alert without id")
		}
		fn(a)
		return nil
	})
}

// OnOccupancy registers fn for occupancy_update frames; nil unregisters.
func (c *Stream) OnOccupancy(fn func(Occupancy)) {
	if fn == nil {
		c.setHandler(TagOccupancyUpdate, nil)
		return
	}
	c.setHandler(TagOccupancyUpdate, func(raw json.RawMessage) error {
		var o Occupancy
		if err := json.Unmarshal(raw, &o); err != nil {
			return err
		}
		fn(o)
		return nil
	})
}

// OnConnectivity registers the observer told about every connected /
// disconnected transition.
func (c *Stream) OnConnectivity(fn func(connected bool)) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

func (c *Stream) setHandler(tag EventTag, h handlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil {
		delete(c.handlers, tag)
		return
	}
	c.handlers[tag] = h
}

// --- Lifecycle ---

// State returns the current connection state.
func (c *Stream) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection supervisor. It returns immediately; the
// observer reports when the handshake completes. Calling Connect while
// the supervisor is already running is a no-op.
func (c *Stream) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.supervise(runCtx, done)
}

// Disconnect tears the connection down and stops reconnecting until the
// next Connect. The observer hears false only if it last heard true.
func (c *Stream) Disconnect() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(writeTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
	<-done
}

// supervise dials, reads until the connection drops, and redials with
// backoff until ctx is cancelled.
func (c *Stream) supervise(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.state = Disconnected
		c.conn = nil
		c.mu.Unlock()
		c.announce(false)
		close(done)
	}()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(Connecting)
		conn, err := c.dial(ctx)
		if err != nil {
			c.setState(Disconnected)
			if ctx.Err() != nil {
				return
			}
			attempt++
			delay := backoff(attempt, c.cfg.ReconnectBase, c.cfg.ReconnectMax, c.jit)
			c.log.Warn("stream dial failed",
				zap.String("url", c.cfg.URL),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", delay),
				zap.Error(err))
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}

		attempt = 0
		if !c.attach(ctx, conn) {
			conn.Close()
			return
		}
		c.log.Info("stream connected", zap.String("url", c.cfg.URL))
		c.announce(true)

		err = c.readLoop(ctx, conn)

		c.detach(conn)
		c.announce(false)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("stream dropped", zap.Error(err))

		// A server that accepts and immediately closes must not spin us.
		attempt = 1
		if !sleepCtx(ctx, backoff(attempt, c.cfg.ReconnectBase, c.cfg.ReconnectMax, c.jit)) {
			return
		}
	}
}

// dial performs the handshake, presenting the credential as it is right
// now.
func (c *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if tok, ok := c.creds.Get(); ok {
		header.Set("Authorization", "Bearer "+tok)
	}
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "handshake rejected"}
		}
		return nil, err
	}
	return conn, nil
}

// attach publishes conn unless Disconnect raced the handshake.
func (c *Stream) attach(ctx context.Context, conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	c.conn = conn
	c.state = Connected
	return true
}

func (c *Stream) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.state = Disconnected
	c.mu.Unlock()
	conn.Close()
}

func (c *Stream) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// announce tells the observer about a connectivity change, once per
// transition. Only the supervisor goroutine calls it.
func (c *Stream) announce(connected bool) {
	c.mu.Lock()
	if c.announced == connected {
		c.mu.Unlock()
		return
	}
	c.announced = connected
	fn := c.onConnect
	c.mu.Unlock()

	if fn != nil {
		fn(connected)
	}
}

// readLoop delivers frames until the connection fails.
func (c *Stream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.pingLoop(pingCtx, conn)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		c.dispatch(data)
	}
}

// pingLoop sends periodic pings on conn until ctx is cancelled or a
// write fails.
func (c *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// dispatch classifies one frame and hands it to its handler. Malformed
// frames and frames without a handler are dropped.
func (c *Stream) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Debug("dropping malformed frame", zap.Error(err))
		return
	}

	c.mu.Lock()
	h := c.handlers[env.Type]
	c.mu.Unlock()
	if h == nil {
		c.log.Debug("dropping frame without handler", zap.String("type", string(env.Type)))
		return
	}
	if err := h(env.Payload); err != nil {
		c.log.Debug("dropping malformed payload", zap.String("type", string(env.Type)), zap.Error(err))
	}
}

// backoff returns the wait before reconnect attempt n (1-based):
// base*2^(n-1) capped at ceiling, with jitter drawn from [d/2, d].
func backoff(attempt int, base, ceiling time.Duration, jitter func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := ceiling
	if shift := uint(attempt - 1); shift < 63 && base > 0 && base <= ceiling>>shift {
		d = base << shift
	}
	half := d / 2
	return half + time.Duration(jitter()*float64(d-half))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
