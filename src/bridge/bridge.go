// Package bridge shares routed STOMP messages between broker instances.
package bridge

import "github.com/gudfood/realtime/src/types"

// Relay forwards messages routed by this broker to its peers and hands
// theirs back to the local hub.
type Relay interface {
	Publish(msg types.Message) error
	Start() error
	Stop() error
	Available() bool
	Stats() Stats
}

// LocalTarget receives relayed messages. It must not publish them back to
// the relay.
type LocalTarget interface {
	BroadcastToLocal(msg types.Message)
}

// Stats counts relay traffic for the admin API.
type Stats struct {
	Published int64 `json:"published"`
	Relayed   int64 `json:"relayed"`
	Dropped   int64 `json:"dropped"`
}

// envelope tags a relayed message with the broker instance that sent it.
type envelope struct {
	Origin  string        `json:"origin"`
	Message types.Message `json:"message"`
}
