// Package transport owns the peer connection and its control channel. Two
// implementations carry the same control-event stream: a WebRTC peer
// connection with an SDP offer/answer handshake (the default) and a plain
// WebSocket connection.
package transport

import (
	"context"
)

// Handlers receive control-channel lifecycle callbacks. All callbacks fire
// from transport-owned goroutines, never from inside Open.
type Handlers struct {
	// OnOpen fires once when the control channel reports ready. This is the
	// only point after which Send is accepted.
	OnOpen func()

	// OnMessage fires once per inbound frame, strictly in arrival order.
	OnMessage func(raw []byte)

	// OnClose fires once when the underlying transport reports terminal
	// disconnect. err is nil for an orderly shutdown.
	OnClose func(err error)
}

// Negotiator trades the local session description for the remote one. The
// production implementation is signal.Exchange.
type Negotiator interface {
	Negotiate(ctx context.Context, localDescription, token string) (string, error)
}

// Transport establishes and owns the control channel of one session.
type Transport interface {
	// Open performs connection establishment up to the point where the
	// control channel will report ready via h.OnOpen. A returned error is
	// fatal for the connection attempt; there is no automatic retry.
	Open(ctx context.Context, token string, h Handlers) error

	// Send writes one frame to the control channel. Each write is atomic.
	// Sending on a channel that is not open returns a *core.Error of type
	// ErrChannel.
	Send(payload []byte) error

	// Close releases all held resources. Idempotent; in-flight callbacks
	// may still complete.
	Close() error
}
