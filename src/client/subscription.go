package client

import (
	"fmt"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gudfood/realtime/src/stomp"
	"github.com/gudfood/realtime/src/types"
)

// Subscription is a disposable handle for a (destination, handler) pair.
// It stays registered across reconnects until Unsubscribe or Disconnect.
type Subscription struct {
	ID          string
	Destination string

	handler types.MessageHandler
	client  *Client
}

// Subscribe registers handler for destination. It does not queue: when the
// client is not connected the call is logged and ErrNotConnected returned.
func (c *Client) Subscribe(destination string, handler types.MessageHandler) (*Subscription, error) {
	c.mu.Lock()
	conn := c.conn
	if c.state != Connected || conn == nil {
		c.mu.Unlock()
		c.logger.Error().Str("destination", destination).Msg("subscribe while not connected, dropped")
		return nil, ErrNotConnected
	}
	sub := &Subscription{
		ID:          "sub-" + uuid.NewString(),
		Destination: destination,
		handler:     handler,
		client:      c,
	}
	c.subs[sub.ID] = sub
	c.mu.Unlock()

	if err := conn.WriteFrame(stomp.Subscribe(sub.ID, destination)); err != nil {
		c.mu.Lock()
		delete(c.subs, sub.ID)
		c.mu.Unlock()
		c.logger.Error().Err(err).Str("destination", destination).Msg("subscribe failed")
		return nil, fmt.Errorf("subscribe %s: %w", destination, err)
	}
	c.logger.Debug().Str("subscription", sub.ID).Str("destination", destination).Msg("subscribed")
	return sub, nil
}

// Unsubscribe releases the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() error {
	c := s.client
	c.mu.Lock()
	if _, ok := c.subs[s.ID]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.subs, s.ID)
	conn := c.conn
	connected := c.state == Connected && conn != nil
	c.mu.Unlock()

	if !connected {
		return nil
	}
	if err := conn.WriteFrame(stomp.Unsubscribe(s.ID)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", s.Destination, err)
	}
	return nil
}

// Active reports whether the subscription is still registered.
func (s *Subscription) Active() bool {
	s.client.mu.RLock()
	defer s.client.mu.RUnlock()
	_, ok := s.client.subs[s.ID]
	return ok
}

// Subscriptions returns the number of registered subscriptions.
func (c *Client) Subscriptions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// replay re-sends SUBSCRIBE for subs on a fresh session.
func (c *Client) replay(conn types.FrameConn, subs []*Subscription) {
	for _, sub := range subs {
		if !sub.Active() {
			continue
		}
		if err := conn.WriteFrame(stomp.Subscribe(sub.ID, sub.Destination)); err != nil {
			c.logger.Error().Err(err).Str("destination", sub.Destination).Msg("resubscribe failed")
			continue
		}
		c.logger.Debug().Str("subscription", sub.ID).Str("destination", sub.Destination).Msg("resubscribed")
	}
}

func (c *Client) dispatch(f *frame.Frame) {
	id := f.Header.Get(frame.Subscription)
	c.mu.RLock()
	sub, ok := c.subs[id]
	c.mu.RUnlock()
	if !ok {
		c.logger.Debug().Str("subscription", id).Msg("message for unknown subscription")
		return
	}
	sub.deliver(toMessage(f))
}

func (s *Subscription) deliver(msg types.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.client.logger.Error().
				Interface("panic", r).
				Str("destination", s.Destination).
				Msg("subscription handler panicked")
		}
	}()
	s.handler(msg)
}

func toMessage(f *frame.Frame) types.Message {
	headers := make(map[string]string, f.Header.Len())
	for i := 0; i < f.Header.Len(); i++ {
		k, v := f.Header.GetAt(i)
		if _, seen := headers[k]; !seen {
			headers[k] = v
		}
	}
	return types.Message{
		Destination:  f.Header.Get(frame.Destination),
		Subscription: f.Header.Get(frame.Subscription),
		ID:           f.Header.Get(frame.MessageId),
		ContentType:  f.Header.Get(frame.ContentType),
		Headers:      headers,
		Body:         f.Body,
		Timestamp:    time.Now(),
	}
}
