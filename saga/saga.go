// Package saga defines the durable correlation state of a saga run
// (Entity/Data), the transient per-dispatch behavior object (Instance),
// and the Finder capability that maps messages to existing entities.
package saga

import (
	"context"
	"time"

	"github.com/xraph/baton"
	"github.com/xraph/baton/id"
)

// Entity is the durable correlation state shared by every saga run.
// Concrete saga entities embed it alongside their business fields:
//
//	type OrderEntity struct {
//	    saga.Entity
//	    OrderID string `json:"order_id"`
//	    Total   int    `json:"total"`
//	}
//
// ID is generated once at creation and never changes; all future
// correlation and timeout cancellation key on it.
type Entity struct {
	ID                   id.SagaID    `json:"id"`
	Originator           string       `json:"originator,omitempty"`
	OriginatingMessageID id.MessageID `json:"originating_message_id,omitempty"`

	// CorrelationKey is an optional business key indexed by the store
	// for FindEntityByKey lookups. Empty means not indexed.
	CorrelationKey string `json:"correlation_key,omitempty"`

	// Version supports optimistic concurrency in store backends.
	// Incremented on every successful update.
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Meta returns the embedded correlation state. Embedding Entity gives
// every concrete entity this method, which is all the Data interface
// requires.
func (e *Entity) Meta() *Entity { return e }

// Data is the interface satisfied by any struct embedding Entity.
// The core treats business fields as opaque; it only touches Meta().
type Data interface {
	Meta() *Entity
}

// Instance is the transient behavior object for one dispatch. It holds an
// exclusive reference to exactly one entity and a completion flag that
// moves false→true at most once and never reverts. Instances are built
// per message dispatch and discarded afterwards.
type Instance interface {
	// Entity returns the bound entity, nil before Bind.
	Entity() Data

	// Bind attaches the entity this instance acts on.
	Bind(Data)

	// Completed reports whether the saga run has reached its terminal
	// state during this dispatch.
	Completed() bool
}

// Base is the canonical Instance implementation. Concrete sagas embed it:
//
//	type OrderSaga struct {
//	    saga.Base
//	}
//
// Handlers call MarkCompleted() to finish the saga run; the dispatcher
// then finalizes the entity and cancels its outstanding timeouts.
type Base struct {
	data      Data
	completed bool
}

// Entity returns the bound entity.
func (b *Base) Entity() Data { return b.data }

// Bind attaches the entity.
func (b *Base) Bind(d Data) { b.data = d }

// Completed reports the completion flag.
func (b *Base) Completed() bool { return b.completed }

// MarkCompleted sets the completion flag. The transition is monotonic;
// calling it more than once is harmless.
func (b *Base) MarkCompleted() { b.completed = true }

// Finder maps an incoming message to an existing saga entity.
// Find returns baton.ErrEntityNotFound (possibly wrapped) when no entity
// matches; any other error aborts the dispatch. Multiple finders may
// apply to one message, each tried independently.
type Finder interface {
	Find(ctx context.Context, env *baton.Envelope) (Data, error)
}

// FinderFunc adapts a function to the Finder interface.
type FinderFunc func(ctx context.Context, env *baton.Envelope) (Data, error)

// Find calls f.
func (f FinderFunc) Find(ctx context.Context, env *baton.Envelope) (Data, error) {
	return f(ctx, env)
}
