package hub

import (
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gudfood/realtime/src/auth"
	"github.com/gudfood/realtime/src/types"
)

// outbound is a frame queued for a session; closeAfter ends the session
// once the frame is written.
type outbound struct {
	frame      *frame.Frame
	closeAfter bool
}

// Session wraps one STOMP connection and manages its frame flow.
type Session struct {
	ID            string
	conn          types.FrameConn
	hub           *Hub
	send          chan outbound
	connectedAt   time.Time
	principal     auth.Principal
	connected     bool
	subscriptions map[string]string // subscription id -> requested destination
	mu            sync.RWMutex
	done          chan struct{}
	closed        bool
}

func newSession(id string, conn types.FrameConn, h *Hub, buffer int) *Session {
	return &Session{
		ID:            id,
		conn:          conn,
		hub:           h,
		send:          make(chan outbound, buffer),
		connectedAt:   time.Now(),
		subscriptions: make(map[string]string),
		done:          make(chan struct{}),
	}
}

// Info returns metadata about this session.
func (s *Session) Info() types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]types.SubscriptionInfo, 0, len(s.subscriptions))
	for id, dest := range s.subscriptions {
		subs = append(subs, types.SubscriptionInfo{ID: id, Destination: dest})
	}
	return types.SessionInfo{
		ID:            s.ID,
		UserID:        s.principal.UserID,
		Role:          s.principal.Role,
		ConnectedAt:   s.connectedAt,
		Subscriptions: subs,
	}
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal.UserID
}

func (s *Session) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Session) markConnected(p auth.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = p
	s.connected = true
}

// addSubscription records id and reports false if it is already in use.
func (s *Session) addSubscription(id, destination string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subscriptions[id]; exists {
		return false
	}
	s.subscriptions[id] = destination
	return true
}

func (s *Session) removeSubscription(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dest, ok := s.subscriptions[id]
	delete(s.subscriptions, id)
	return dest, ok
}

// deliver queues a frame without blocking. It reports false when the
// buffer is full or the session is closed.
func (s *Session) deliver(f *frame.Frame, closeAfter bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- outbound{frame: f, closeAfter: closeAfter}:
		return true
	default:
		return false
	}
}

// readPump reads frames from the transport and routes them to the hub.
func (s *Session) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		_ = s.conn.Close()
	}()

	for {
		f, err := s.conn.ReadFrame()
		if err != nil {
			return
		}
		if f == nil {
			continue
		}
		select {
		case s.hub.incoming <- inbound{session: s, frame: f}:
		case <-s.hub.done:
			return
		}
	}
}

// writePump writes queued frames to the transport.
func (s *Session) writePump() {
	defer s.conn.Close()

	for {
		select {
		case out, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.WriteFrame(out.frame); err != nil {
				return
			}
			if out.closeAfter {
				return
			}
		case <-s.done:
			return
		}
	}
}

// close signals the session to stop its pumps.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}
