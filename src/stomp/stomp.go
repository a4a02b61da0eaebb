// Package stomp encodes STOMP 1.2 frames carried one per WebSocket text message.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

const (
	Version         = "1.2"
	ContentTypeJSON = "application/json"
	Subprotocol     = "v12.stomp"
)

var ErrInvalidHeartBeat = errors.New("invalid heart-beat header")

// Encode serializes a frame. A nil frame encodes as a heart-beat newline.
func Encode(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses the first frame in data. Payloads holding only
// heart-beats decode to nil, nil.
func Decode(data []byte) (*frame.Frame, error) {
	r := frame.NewReader(bytes.NewReader(data))
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
	}
}

// Connect builds a CONNECT frame. Extra headers are key/value pairs.
func Connect(host string, heartBeat time.Duration, headers ...string) *frame.Frame {
	f := frame.New(frame.CONNECT,
		frame.AcceptVersion, Version,
		frame.Host, host,
		frame.HeartBeat, FormatHeartBeat(heartBeat, 0),
	)
	addPairs(f, headers)
	return f
}

// Connected builds the broker's CONNECTED reply. The broker never sends
// heart-beats and asks for one from the client every want.
func Connected(session, server string, want time.Duration) *frame.Frame {
	return frame.New(frame.CONNECTED,
		frame.Version, Version,
		frame.HeartBeat, FormatHeartBeat(0, want),
		frame.Session, session,
		frame.Server, server,
	)
}

func Subscribe(id, destination string) *frame.Frame {
	return frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, destination,
		frame.Ack, "auto",
	)
}

func Unsubscribe(id string) *frame.Frame {
	return frame.New(frame.UNSUBSCRIBE, frame.Id, id)
}

// Send builds a SEND frame with a JSON body.
func Send(destination string, body []byte) *frame.Frame {
	f := frame.New(frame.SEND,
		frame.Destination, destination,
		frame.ContentType, ContentTypeJSON,
	)
	f.Body = body
	return f
}

func Disconnect(receipt string) *frame.Frame {
	return frame.New(frame.DISCONNECT, frame.Receipt, receipt)
}

// Message builds a MESSAGE frame for one subscriber. Extra headers are
// key/value pairs.
func Message(subscription, messageID, destination, contentType string, body []byte, headers ...string) *frame.Frame {
	f := frame.New(frame.MESSAGE,
		frame.Subscription, subscription,
		frame.MessageId, messageID,
		frame.Destination, destination,
	)
	if contentType != "" {
		f.Header.Set(frame.ContentType, contentType)
	}
	addPairs(f, headers)
	f.Body = body
	return f
}

func Receipt(id string) *frame.Frame {
	return frame.New(frame.RECEIPT, frame.ReceiptId, id)
}

// Error builds an ERROR frame with a short message header and a detail body.
func Error(message, detail string) *frame.Frame {
	f := frame.New(frame.ERROR,
		frame.Message, message,
		frame.ContentType, "text/plain",
	)
	f.Body = []byte(detail)
	return f
}

// FormatHeartBeat renders a heart-beat header value in milliseconds.
func FormatHeartBeat(cx, cy time.Duration) string {
	return strconv.FormatInt(cx.Milliseconds(), 10) + "," + strconv.FormatInt(cy.Milliseconds(), 10)
}

// ParseHeartBeat parses a "cx,cy" heart-beat header value.
func ParseHeartBeat(value string) (cx, cy time.Duration, err error) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidHeartBeat, value)
	}
	x, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || x < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidHeartBeat, value)
	}
	y, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || y < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidHeartBeat, value)
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond, nil
}

// NegotiateHeartBeat returns how often the client sends heart-beats given
// what it offers and what the server asked for: zero when either side is
// zero, otherwise the larger of the two.
func NegotiateHeartBeat(offer, want time.Duration) time.Duration {
	if offer <= 0 || want <= 0 {
		return 0
	}
	return max(offer, want)
}

func addPairs(f *frame.Frame, headers []string) {
	for i := 0; i+1 < len(headers); i += 2 {
		if headers[i+1] == "" {
			continue
		}
		f.Header.Set(headers[i], headers[i+1])
	}
}
