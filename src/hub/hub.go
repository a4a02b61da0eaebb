package hub

import (
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gudfood/realtime/src/auth"
	"github.com/gudfood/realtime/src/types"
	"github.com/rs/zerolog"
)

// MessageBridge publishes messages to other broker instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(msg types.Message) error
	Available() bool
}

// Options configures destination prefixes and buffering.
type Options struct {
	AppPrefix   string
	TopicPrefix string
	UserPrefix  string
	SendBuffer  int
	ServerName  string
	// HeartBeat is the interval the broker asks clients to beat at.
	HeartBeat time.Duration
}

// DefaultOptions mirrors the broker configuration defaults.
func DefaultOptions() Options {
	return Options{
		AppPrefix:   "/app",
		TopicPrefix: "/topic",
		UserPrefix:  "/user",
		SendBuffer:  256,
		ServerName:  "gudfood-broker/0.1",
		HeartBeat:   10 * time.Second,
	}
}

// subscriptionRef names one subscription of one session.
type subscriptionRef struct {
	session string
	id      string
}

// Hub manages broker sessions and destination subscriptions. All inbound
// frames are processed in order on the Run loop.
type Hub struct {
	sessions     map[string]*Session
	destinations map[string]map[subscriptionRef]string // resolved destination -> ref -> reported destination

	register   chan *Session
	unregister chan *Session
	incoming   chan inbound
	broadcast  chan types.Message
	localCast  chan types.Message // messages from bridge, no re-publish

	opts   Options
	auth   auth.Authenticator
	bridge MessageBridge
	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
	once   sync.Once
}

type inbound struct {
	session *Session
	frame   *frame.Frame
}

// New creates a new Hub instance.
func New(opts Options, authenticator auth.Authenticator, logger zerolog.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	if opts.ServerName == "" {
		opts.ServerName = DefaultOptions().ServerName
	}
	return &Hub{
		sessions:     make(map[string]*Session),
		destinations: make(map[string]map[subscriptionRef]string),
		register:     make(chan *Session),
		unregister:   make(chan *Session),
		incoming:     make(chan inbound, 256),
		broadcast:    make(chan types.Message, 256),
		localCast:    make(chan types.Message, 256),
		opts:         opts,
		auth:         authenticator,
		logger:       logger.With().Str("component", "hub").Logger(),
		done:         make(chan struct{}),
	}
}

// SetBridge attaches a cross-instance message bridge to the hub.
// When set, published messages are also forwarded to other instances.
func (h *Hub) SetBridge(b MessageBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// BroadcastToLocal delivers a message from the bridge to local subscribers only.
// It does not re-publish to the bridge, preventing infinite loops.
func (h *Hub) BroadcastToLocal(msg types.Message) {
	select {
	case h.localCast <- msg:
	case <-h.done:
	}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case s := <-h.register:
			h.addSession(s)
		case s := <-h.unregister:
			h.removeSession(s)
		case in := <-h.incoming:
			h.handleFrame(in.session, in.frame)
		case msg := <-h.broadcast:
			h.publishToBridge(msg)
			h.broadcastToDestination(msg)
		case msg := <-h.localCast:
			h.broadcastToDestination(msg)
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop. Safe to call more than once.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Serve registers a session for conn and pumps frames until the transport
// closes. It blocks.
func (h *Hub) Serve(id string, conn types.FrameConn) {
	s := newSession(id, conn, h, h.opts.SendBuffer)
	select {
	case h.register <- s:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go s.writePump()
	s.readPump()
}

func (h *Hub) addSession(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	h.logger.Info().Str("session", s.ID).Msg("session opened")
}

func (h *Hub) removeSession(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.ID)

	// Remove from all destination subscriptions.
	for dest, subs := range h.destinations {
		for ref := range subs {
			if ref.session == s.ID {
				delete(subs, ref)
			}
		}
		if len(subs) == 0 {
			delete(h.destinations, dest)
		}
	}
	h.mu.Unlock()

	s.close()
	h.logger.Info().Str("session", s.ID).Str("user_id", s.UserID()).Msg("session closed")
}

// resolve maps a subscribed destination to its routing key. User
// destinations are scoped to the session's user.
func (h *Hub) resolve(s *Session, destination string) string {
	if rest, ok := strings.CutPrefix(destination, h.opts.UserPrefix+"/"); ok {
		return UserDestination(h.opts.UserPrefix, s.UserID(), "/"+rest)
	}
	return destination
}

// route maps a SEND destination to its broker destination. Application
// destinations are rewritten to the topic prefix.
func (h *Hub) route(destination string) string {
	if rest, ok := strings.CutPrefix(destination, h.opts.AppPrefix+"/"); ok {
		return h.opts.TopicPrefix + "/" + rest
	}
	return destination
}

// UserDestination returns the routing key for destination scoped to userID,
// e.g. "/user/42/queue/notifications".
func UserDestination(userPrefix, userID, destination string) string {
	return userPrefix + "/" + userID + destination
}
