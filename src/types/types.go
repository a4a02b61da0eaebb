package types

import (
	"encoding/json"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

// Message is a payload routed to a destination.
type Message struct {
	Destination  string            `json:"destination"`
	Subscription string            `json:"subscription,omitempty"`
	ID           string            `json:"message_id,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         []byte            `json:"body,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Decode unmarshals the JSON body into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Body, v)
}

// MessageHandler handles messages delivered on a subscription.
type MessageHandler func(msg Message)

// SubscriptionInfo describes one STOMP subscription held by a session.
type SubscriptionInfo struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
}

// SessionInfo holds metadata about a connected broker session.
type SessionInfo struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id,omitempty"`
	Role          string             `json:"role,omitempty"`
	ConnectedAt   time.Time          `json:"connected_at"`
	Subscriptions []SubscriptionInfo `json:"subscriptions"`
}

// FrameConn abstracts a frame-oriented transport for testability.
// A nil frame is a heart-beat.
type FrameConn interface {
	ReadFrame() (*frame.Frame, error)
	WriteFrame(f *frame.Frame) error
	Close() error
}
