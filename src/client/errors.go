package client

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected    = errors.New("client is not connected")
	ErrClientClosed    = errors.New("client disconnected")
	ErrConnectionLost  = errors.New("connection lost")
	ErrReceiptTimeout  = errors.New("receipt not received before timeout")
	ErrUnexpectedFrame = errors.New("unexpected frame during handshake")
)

// BrokerError is a protocol-level error reported by the broker in an
// ERROR frame.
type BrokerError struct {
	Message string
	Body    string
}

func (e *BrokerError) Error() string {
	if e.Body == "" {
		return "broker error: " + e.Message
	}
	return fmt.Sprintf("broker error: %s: %s", e.Message, e.Body)
}
