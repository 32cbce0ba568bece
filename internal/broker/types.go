// Package broker defines the transport-neutral contract between a broker
// connection and the recovery state machine that consumes its events.
package broker

import (
	"context"
)

// GrantFailure is the granted-QoS value a broker returns for a rejected
// subscription (MQTT SUBACK failure code).
const GrantFailure byte = 0x80

// Subscription is a requested topic subscription.
type Subscription struct {
	Topic string
	QoS   byte
}

// Grant is the broker's acknowledgement of a single subscription. The
// granted QoS is set at most once per (re)subscribe attempt.
type Grant struct {
	Topic string
	QoS   byte
}

// Rejected reports whether the broker refused the subscription.
func (g Grant) Rejected() bool {
	return g.QoS == GrantFailure
}

// State represents the connection state as observed by the recovery
// coordinator.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateInterrupted  State = "interrupted"
	StateResuming     State = "resuming"
)

// Event is a connection-lifecycle or delivery notification. All events for
// a connection are consumed one at a time, in the order the transport
// surfaced them.
type Event interface {
	event()
}

// Interrupted reports an unplanned connection loss. The transport keeps
// retrying on its own; this notification is informational.
type Interrupted struct {
	Err error
}

// Resumed reports the outcome of a reconnection attempt. A nil Err means
// the broker accepted the session; SessionPresent tells whether it retained
// the prior subscription state.
type Resumed struct {
	SessionPresent bool
	Err            error
}

// Accepted reports whether the broker accepted the resumed session.
func (r Resumed) Accepted() bool {
	return r.Err == nil
}

// ResubscribeDone carries the outcome of a resubscribe-all request.
type ResubscribeDone struct {
	Grants []Grant
	Err    error
}

// Message is an inbound message on a subscribed topic.
type Message struct {
	Topic   string
	Payload []byte
}

func (Interrupted) event()     {}
func (Resumed) event()         {}
func (ResubscribeDone) event() {}
func (Message) event()         {}

// Connection is a persistent publish/subscribe session with a broker.
type Connection interface {
	// Connect establishes the session, blocking until the broker accepts
	// or rejects. A rejection is fatal; there is no local recovery.
	Connect(ctx context.Context) error

	// Subscribe registers the given subscriptions in order, blocking until
	// the broker acknowledges each one. A rejected grant is an error.
	Subscribe(subs []Subscription) ([]Grant, error)

	// ResubscribeAll re-issues every previously registered subscription
	// and returns the raw grants. Must not be called from the goroutine
	// that drains Events.
	ResubscribeAll() ([]Grant, error)

	// Disconnect performs an orderly teardown, blocking until complete.
	Disconnect(ctx context.Context) error

	// Events returns the serialized per-connection event queue.
	Events() <-chan Event
}
