package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gudfood/realtime/src/stomp"
	"github.com/gudfood/realtime/src/types"
)

// Dialer opens a frame transport to a broker endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (types.FrameConn, error)
}

// WebSocketDialer dials STOMP over WebSocket.
type WebSocketDialer struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

// NewWebSocketDialer creates a dialer whose HTTP upgrade is bounded by
// handshakeTimeout.
func NewWebSocketDialer(handshakeTimeout time.Duration) *WebSocketDialer {
	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			Subprotocols:     []string{stomp.Subprotocol},
		},
		writeTimeout: 10 * time.Second,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (types.FrameConn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewConn(ws, d.writeTimeout), nil
}

// Conn carries one STOMP frame per WebSocket text message.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

// NewConn wraps an established WebSocket connection.
func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

// ReadFrame blocks for the next message. Heart-beats return a nil frame.
func (c *Conn) ReadFrame() (*frame.Frame, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return stomp.Decode(data)
}

// WriteFrame is safe for concurrent use.
func (c *Conn) WriteFrame(f *frame.Frame) error {
	data, err := stomp.Encode(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) Close() error { return c.ws.Close() }
