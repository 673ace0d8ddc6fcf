package baton

import (
	"time"

	"github.com/xraph/baton/id"
)

// Kind classifies an envelope for dispatch. It is resolved once at
// dispatch entry instead of repeated type tests along the way.
type Kind int

const (
	// KindPlain is an ordinary message with no saga correlation of its own.
	KindPlain Kind = iota
	// KindCorrelated is a message carrying an explicit saga correlation
	// identifier. Correlated messages are always saga-relevant.
	KindCorrelated
	// KindTimeout is a timeout notification: the expiry of a delay a saga
	// previously scheduled, routed back to that saga.
	KindTimeout
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCorrelated:
		return "correlated"
	case KindTimeout:
		return "timeout"
	default:
		return "plain"
	}
}

// Timeout is the payload of a timeout notification. State is the opaque
// value the saga attached when scheduling the delay; At is when the
// timeout becomes due.
type Timeout struct {
	State any
	At    time.Time
}

// Expired reports whether the timeout is due at the given instant.
func (t *Timeout) Expired(now time.Time) bool {
	return !t.At.After(now)
}

// Envelope is an in-process message as seen by the saga dispatch core.
// Wire serialization is the transport's concern; by the time an envelope
// reaches the dispatcher its body is a decoded Go value.
type Envelope struct {
	// ID is the message identity, also captured as OriginatingMessageID
	// on entities this message creates.
	ID id.MessageID

	// Name is the message type name used for capability resolution.
	Name string

	// Body is the decoded message payload. Nil for pure timeout
	// notifications.
	Body any

	// CorrelationID links the message to a saga entity's ID.
	// Nil (id.Nil) when the message carries no explicit correlation.
	CorrelationID id.SagaID

	// Timeout is non-nil for timeout notifications.
	Timeout *Timeout

	// Attempt counts prior deliveries of this envelope. The transport
	// increments it on re-delivery; the dispatcher uses it to compute
	// defer delays for unexpired timeouts.
	Attempt int
}

// Kind resolves the envelope's dispatch classification. Timeout wins over
// correlation: a timeout notification is routed through the timeout path
// even when it also carries a correlation identifier.
func (e *Envelope) Kind() Kind {
	switch {
	case e.Timeout != nil:
		return KindTimeout
	case !e.CorrelationID.IsNil():
		return KindCorrelated
	default:
		return KindPlain
	}
}
