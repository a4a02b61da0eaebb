package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gudfood/realtime/config"
	"github.com/gudfood/realtime/src/stomp"
	"github.com/gudfood/realtime/src/transport"
	"github.com/gudfood/realtime/src/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Client manages one STOMP connection to a broker and routes inbound
// messages to subscription handlers.
type Client struct {
	cfg    *config.ClientConfig
	dialer transport.Dialer
	logger zerolog.Logger

	mu       sync.RWMutex
	state    State
	conn     types.FrameConn
	session  string
	pending  *handshake
	active   bool // Connect called with no Disconnect since
	retry    *time.Timer
	retryGen uint64
	stopBeat chan struct{}

	subs      map[string]*Subscription
	receipts  map[string]chan error
	observers map[int]func(State)
	nextObs   int
}

type handshake struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc
	once   sync.Once
}

func (h *handshake) finish(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// New creates a disconnected client. Nothing is dialed until Connect.
func New(cfg *config.ClientConfig, dialer transport.Dialer, logger zerolog.Logger) *Client {
	return &Client{
		cfg:       cfg,
		dialer:    dialer,
		logger:    logger.With().Str("component", "stomp-client").Logger(),
		subs:      make(map[string]*Subscription),
		receipts:  make(map[string]chan error),
		observers: make(map[int]func(State)),
	}
}

// Connect returns immediately if already connected. Otherwise it opens a
// transport session and waits for the broker's CONNECTED frame. Callers
// arriving while a handshake is in flight share its outcome. ctx bounds
// only the caller's wait.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Connected {
		c.mu.Unlock()
		return nil
	}
	c.active = true
	h := c.pending
	notify := func() {}
	if h == nil {
		h, notify = c.beginHandshakeLocked()
	}
	c.mu.Unlock()
	notify()

	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected reports whether the client holds a live broker session.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == Connected
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Session returns the broker-assigned session id, or "" when not connected.
func (c *Client) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Disconnect tears down the session, aborts any in-flight handshake and
// stops reconnection. All subscriptions are invalidated.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.active = false
	c.stopRetryLocked()
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	c.session = ""
	h := c.pending
	c.pending = nil
	c.subs = make(map[string]*Subscription)
	c.failReceiptsLocked(ErrClientClosed)
	notify := c.setStateLocked(Disconnected)
	c.mu.Unlock()
	notify()

	if h != nil {
		h.cancel()
		h.finish(ErrClientClosed)
	}
	if conn == nil {
		return nil
	}
	if err := conn.WriteFrame(stomp.Disconnect(uuid.NewString())); err != nil {
		c.logger.Debug().Err(err).Msg("DISCONNECT not delivered")
	}
	c.logger.Info().Msg("disconnected")
	return conn.Close()
}

// OnStateChange registers an observer for lifecycle transitions and
// returns a func that removes it.
func (c *Client) OnStateChange(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// setStateLocked records s and returns a func that notifies observers.
// Call the returned func after releasing the lock.
func (c *Client) setStateLocked(s State) func() {
	if c.state == s {
		return func() {}
	}
	c.state = s
	observers := lo.Values(c.observers)
	return func() {
		for _, fn := range observers {
			fn(s)
		}
	}
}

func (c *Client) beginHandshakeLocked() (*handshake, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	h := &handshake{done: make(chan struct{}), cancel: cancel}
	c.pending = h
	c.stopRetryLocked()
	notify := c.setStateLocked(Connecting)
	go c.runHandshake(ctx, h)
	return h, notify
}

func (c *Client) runHandshake(ctx context.Context, h *handshake) {
	defer h.cancel()
	conn, session, beat, err := c.open(ctx)

	c.mu.Lock()
	if c.pending != h {
		// Aborted by Disconnect, which already finished h.
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.pending = nil

	if err != nil {
		notify := c.setStateLocked(Error)
		c.scheduleRetryLocked()
		c.mu.Unlock()
		notify()
		c.logger.Error().Err(err).Str("url", c.cfg.BrokerURL).Msg("broker handshake failed")
		h.finish(err)
		return
	}

	c.conn = conn
	c.session = session
	subs := lo.Values(c.subs)
	if beat > 0 {
		c.stopBeat = make(chan struct{})
		go c.heartbeat(conn, beat, c.stopBeat)
	}
	notify := c.setStateLocked(Connected)
	c.mu.Unlock()

	go c.readLoop(conn)
	c.replay(conn, subs)
	c.logger.Info().Str("session", session).Str("url", c.cfg.BrokerURL).Dur("heart_beat", beat).Msg("connected")
	notify()
	h.finish(nil)
}

// open dials the broker and completes the CONNECT/CONNECTED exchange. It
// returns the session id and the negotiated heart-beat send interval.
func (c *Client) open(ctx context.Context) (types.FrameConn, string, time.Duration, error) {
	conn, err := c.dialer.Dial(ctx, c.cfg.BrokerURL, c.upgradeHeader())
	if err != nil {
		return nil, "", 0, err
	}
	connect := stomp.Connect(c.cfg.VirtualHost, c.cfg.HeartbeatInterval,
		frame.Login, c.cfg.Login,
		frame.Passcode, c.cfg.AccessToken,
	)
	if err := conn.WriteFrame(connect); err != nil {
		_ = conn.Close()
		return nil, "", 0, fmt.Errorf("send CONNECT: %w", err)
	}

	type result struct {
		f   *frame.Frame
		err error
	}
	reply := make(chan result, 1)
	go func() {
		for {
			f, err := conn.ReadFrame()
			if err != nil || f != nil {
				reply <- result{f: f, err: err}
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		_ = conn.Close()
		return nil, "", 0, fmt.Errorf("await CONNECTED: %w", ctx.Err())
	case r := <-reply:
		if r.err != nil {
			_ = conn.Close()
			return nil, "", 0, fmt.Errorf("await CONNECTED: %w", r.err)
		}
		switch r.f.Command {
		case frame.CONNECTED:
			return conn, r.f.Header.Get(frame.Session), c.negotiateHeartBeat(r.f), nil
		case frame.ERROR:
			_ = conn.Close()
			return nil, "", 0, &BrokerError{
				Message: r.f.Header.Get(frame.Message),
				Body:    string(r.f.Body),
			}
		default:
			_ = conn.Close()
			return nil, "", 0, fmt.Errorf("%w: %s", ErrUnexpectedFrame, r.f.Command)
		}
	}
}

// negotiateHeartBeat applies the broker's heart-beat request to the
// configured interval. A missing header means the broker wants none.
func (c *Client) negotiateHeartBeat(connected *frame.Frame) time.Duration {
	value, ok := connected.Header.Contains(frame.HeartBeat)
	if !ok {
		return 0
	}
	_, want, err := stomp.ParseHeartBeat(value)
	if err != nil {
		c.logger.Warn().Err(err).Msg("ignoring broker heart-beat header")
		return 0
	}
	return stomp.NegotiateHeartBeat(c.cfg.HeartbeatInterval, want)
}

func (c *Client) upgradeHeader() http.Header {
	header := http.Header{}
	if c.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}
	return header
}

func (c *Client) readLoop(conn types.FrameConn) {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			c.connectionLost(conn, err)
			return
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case frame.MESSAGE:
			c.dispatch(f)
		case frame.RECEIPT:
			c.resolveReceipt(f.Header.Get(frame.ReceiptId))
		case frame.ERROR:
			c.logger.Error().
				Str("message", f.Header.Get(frame.Message)).
				Str("body", string(f.Body)).
				Msg("broker error")
			_ = conn.Close()
		default:
			c.logger.Debug().Str("command", f.Command).Msg("ignoring frame")
		}
	}
}

func (c *Client) connectionLost(conn types.FrameConn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.session = ""
	c.stopHeartbeatLocked()
	c.failReceiptsLocked(ErrConnectionLost)
	notify := c.setStateLocked(Disconnected)
	c.scheduleRetryLocked()
	c.mu.Unlock()

	_ = conn.Close()
	c.logger.Warn().Err(cause).Msg("connection lost")
	notify()
}

// scheduleRetryLocked arms a single reconnect attempt after the fixed delay.
func (c *Client) scheduleRetryLocked() {
	if !c.active || c.cfg.ReconnectDelay <= 0 || c.retry != nil {
		return
	}
	c.retryGen++
	gen := c.retryGen
	c.retry = time.AfterFunc(c.cfg.ReconnectDelay, func() { c.reconnect(gen) })
	c.logger.Debug().Dur("delay", c.cfg.ReconnectDelay).Msg("reconnect scheduled")
}

func (c *Client) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if c.retry == nil || gen != c.retryGen {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	if !c.active || c.state == Connected || c.pending != nil {
		c.mu.Unlock()
		return
	}
	c.logger.Info().Str("url", c.cfg.BrokerURL).Msg("reconnecting")
	_, notify := c.beginHandshakeLocked()
	c.mu.Unlock()
	notify()
}

func (c *Client) heartbeat(conn types.FrameConn, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteFrame(nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) stopHeartbeatLocked() {
	if c.stopBeat != nil {
		close(c.stopBeat)
		c.stopBeat = nil
	}
}
