package hub

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gudfood/realtime/src/auth"
	"github.com/gudfood/realtime/src/stomp"
	"github.com/gudfood/realtime/src/types"
)

// protocolError is reported to the client in an ERROR frame, after which the
// session is closed.
type protocolError struct {
	message string
	detail  string
}

func (e *protocolError) Error() string { return e.message + ": " + e.detail }

func protoErr(message, format string, args ...any) error {
	return &protocolError{message: message, detail: fmt.Sprintf(format, args...)}
}

func (h *Hub) handleFrame(s *Session, f *frame.Frame) {
	var err error
	switch {
	case f.Command == frame.CONNECT || f.Command == frame.STOMP:
		err = h.handleConnect(s, f)
	case !s.isConnected():
		err = protoErr("not connected", "send CONNECT before %s", f.Command)
	case f.Command == frame.SUBSCRIBE:
		err = h.handleSubscribe(s, f)
	case f.Command == frame.UNSUBSCRIBE:
		err = h.handleUnsubscribe(s, f)
	case f.Command == frame.SEND:
		err = h.handleSend(s, f)
	case f.Command == frame.DISCONNECT:
		h.handleDisconnect(s, f)
		return
	default:
		err = protoErr("unsupported frame", "command %s is not supported", f.Command)
	}

	if err != nil {
		h.reject(s, err)
		return
	}
	if receipt := f.Header.Get(frame.Receipt); receipt != "" {
		s.deliver(stomp.Receipt(receipt), false)
	}
}

func (h *Hub) reject(s *Session, err error) {
	var pe *protocolError
	if !errors.As(err, &pe) {
		pe = &protocolError{message: "internal error", detail: err.Error()}
	}
	h.logger.Warn().Str("session", s.ID).Str("message", pe.message).Str("detail", pe.detail).Msg("rejecting frame")
	if !s.deliver(stomp.Error(pe.message, pe.detail), true) {
		_ = s.conn.Close()
	}
}

func (h *Hub) handleConnect(s *Session, f *frame.Frame) error {
	if s.isConnected() {
		return protoErr("already connected", "session %s already completed CONNECT", s.ID)
	}
	if versions, ok := f.Header.Contains(frame.AcceptVersion); ok && !acceptsVersion(versions) {
		return protoErr("unsupported protocol version", "supported versions are %s", stomp.Version)
	}

	principal, err := h.auth.Authenticate(auth.Credentials{
		Login:         f.Header.Get(frame.Login),
		Passcode:      f.Header.Get(frame.Passcode),
		Authorization: f.Header.Get("Authorization"),
	})
	if err != nil {
		return protoErr("authentication failed", "%v", err)
	}

	s.markConnected(principal)
	s.deliver(stomp.Connected(s.ID, h.opts.ServerName, h.opts.HeartBeat), false)
	h.logger.Info().
		Str("session", s.ID).
		Str("user_id", principal.UserID).
		Str("role", principal.Role).
		Msg("session connected")
	return nil
}

func acceptsVersion(header string) bool {
	for _, v := range strings.Split(header, ",") {
		if strings.TrimSpace(v) == stomp.Version {
			return true
		}
	}
	return false
}

func (h *Hub) handleSubscribe(s *Session, f *frame.Frame) error {
	id := f.Header.Get(frame.Id)
	dest := f.Header.Get(frame.Destination)
	if id == "" || dest == "" {
		return protoErr("malformed frame", "SUBSCRIBE requires id and destination headers")
	}
	if !s.addSubscription(id, dest) {
		return protoErr("duplicate subscription", "subscription id %s already in use", id)
	}

	resolved := h.resolve(s, dest)
	h.mu.Lock()
	if h.destinations[resolved] == nil {
		h.destinations[resolved] = make(map[subscriptionRef]string)
	}
	h.destinations[resolved][subscriptionRef{session: s.ID, id: id}] = dest
	h.mu.Unlock()

	h.logger.Debug().Str("session", s.ID).Str("subscription", id).Str("destination", resolved).Msg("subscribed")
	return nil
}

func (h *Hub) handleUnsubscribe(s *Session, f *frame.Frame) error {
	id := f.Header.Get(frame.Id)
	if id == "" {
		return protoErr("malformed frame", "UNSUBSCRIBE requires an id header")
	}
	dest, ok := s.removeSubscription(id)
	if !ok {
		return nil
	}

	resolved := h.resolve(s, dest)
	h.mu.Lock()
	if subs, ok := h.destinations[resolved]; ok {
		delete(subs, subscriptionRef{session: s.ID, id: id})
		if len(subs) == 0 {
			delete(h.destinations, resolved)
		}
	}
	h.mu.Unlock()

	h.logger.Debug().Str("session", s.ID).Str("subscription", id).Msg("unsubscribed")
	return nil
}

func (h *Hub) handleSend(s *Session, f *frame.Frame) error {
	dest := f.Header.Get(frame.Destination)
	if dest == "" {
		return protoErr("malformed frame", "SEND requires a destination header")
	}
	// User queues are written by the server only.
	if dest == h.opts.UserPrefix || strings.HasPrefix(dest, h.opts.UserPrefix+"/") {
		return protoErr("forbidden destination", "SEND to %s is not allowed", dest)
	}
	msg := types.Message{
		Destination: h.route(dest),
		ID:          uuid.NewString(),
		ContentType: f.Header.Get(frame.ContentType),
		Headers:     map[string]string{"sender": s.UserID()},
		Body:        f.Body,
		Timestamp:   time.Now(),
	}
	h.publishToBridge(msg)
	h.broadcastToDestination(msg)
	return nil
}

func (h *Hub) handleDisconnect(s *Session, f *frame.Frame) {
	receipt := f.Header.Get(frame.Receipt)
	if receipt == "" || !s.deliver(stomp.Receipt(receipt), true) {
		_ = s.conn.Close()
	}
	h.logger.Debug().Str("session", s.ID).Msg("client disconnect")
}

func (h *Hub) broadcastToDestination(msg types.Message) {
	h.mu.RLock()
	subs, ok := h.destinations[msg.Destination]
	if !ok {
		h.mu.RUnlock()
		return
	}
	// Copy subscriber refs to avoid holding lock during sends.
	refs := make(map[subscriptionRef]string, len(subs))
	for ref, reported := range subs {
		refs[ref] = reported
	}
	h.mu.RUnlock()

	extra := make([]string, 0, 2*len(msg.Headers))
	for k, v := range msg.Headers {
		extra = append(extra, k, v)
	}
	for ref, reported := range refs {
		h.mu.RLock()
		s, exists := h.sessions[ref.session]
		h.mu.RUnlock()
		if !exists {
			continue
		}
		f := stomp.Message(ref.id, msg.ID, reported, msg.ContentType, msg.Body, extra...)
		if !s.deliver(f, false) {
			h.logger.Warn().Str("session", ref.session).Str("destination", msg.Destination).Msg("send buffer full, dropping")
		}
	}
}

// publishToBridge forwards a message to the bridge if one is attached.
func (h *Hub) publishToBridge(msg types.Message) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(msg); err != nil {
		h.logger.Error().Err(err).Msg("bridge publish failed")
	}
}

// Publish queues a message for every subscriber of msg.Destination.
func (h *Hub) Publish(msg types.Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// PublishToUser queues a message for userID's subscriptions to the user
// destination. Both "/queue/notifications" and "/user/queue/notifications"
// are accepted.
func (h *Hub) PublishToUser(userID string, msg types.Message) {
	dest := msg.Destination
	if rest, ok := strings.CutPrefix(dest, h.opts.UserPrefix+"/"); ok {
		dest = "/" + rest
	}
	msg.Destination = UserDestination(h.opts.UserPrefix, userID, dest)
	h.Publish(msg)
}
