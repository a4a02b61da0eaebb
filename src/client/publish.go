package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gudfood/realtime/src/stomp"
)

// SendMessage JSON-encodes payload and publishes it to destination without
// waiting for acknowledgment. When not connected the message is logged and
// dropped; there is no outbound queue.
func (c *Client) SendMessage(destination string, payload any) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.state == Connected && conn != nil
	c.mu.RUnlock()

	if !connected {
		c.logger.Error().Str("destination", destination).Msg("send while not connected, dropped")
		return ErrNotConnected
	}
	body, err := encode(payload)
	if err != nil {
		return err
	}
	if err := conn.WriteFrame(stomp.Send(destination, body)); err != nil {
		c.logger.Error().Err(err).Str("destination", destination).Msg("send failed")
		return fmt.Errorf("send %s: %w", destination, err)
	}
	return nil
}

// Publish sends payload with a receipt request and waits for the broker's
// RECEIPT, bounded by ctx and the configured receipt timeout. It does not
// retry.
func (c *Client) Publish(ctx context.Context, destination string, payload any) error {
	body, err := encode(payload)
	if err != nil {
		return err
	}

	receipt := uuid.NewString()
	ack := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	if c.state != Connected || conn == nil {
		c.mu.Unlock()
		c.logger.Error().Str("destination", destination).Msg("publish while not connected, dropped")
		return ErrNotConnected
	}
	c.receipts[receipt] = ack
	c.mu.Unlock()

	f := stomp.Send(destination, body)
	f.Header.Set(frame.Receipt, receipt)
	if err := conn.WriteFrame(f); err != nil {
		c.dropReceipt(receipt)
		c.logger.Error().Err(err).Str("destination", destination).Msg("publish failed")
		return fmt.Errorf("publish %s: %w", destination, err)
	}

	timer := time.NewTimer(c.cfg.ReceiptTimeout)
	defer timer.Stop()
	select {
	case err := <-ack:
		return err
	case <-timer.C:
		c.dropReceipt(receipt)
		c.logger.Warn().Str("destination", destination).Str("receipt", receipt).Msg("receipt timeout")
		return ErrReceiptTimeout
	case <-ctx.Done():
		c.dropReceipt(receipt)
		return ctx.Err()
	}
}

func (c *Client) resolveReceipt(id string) {
	c.mu.Lock()
	ack, ok := c.receipts[id]
	delete(c.receipts, id)
	c.mu.Unlock()
	if ok {
		ack <- nil
	}
}

func (c *Client) dropReceipt(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.receipts, id)
}

func (c *Client) failReceiptsLocked(err error) {
	for id, ack := range c.receipts {
		ack <- err
		delete(c.receipts, id)
	}
}

func encode(payload any) ([]byte, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return body, nil
}
