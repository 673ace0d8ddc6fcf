// Package baton provides the saga dispatch core of a message-bus runtime:
// it routes an inbound message to zero, one, or many stateful, long-running
// correlated workflows (sagas), creating new saga entities when needed,
// persisting their state transitions, and notifying completion.
//
// Baton is designed as a library, not a service. The surrounding transport
// delivers messages and calls dispatcher.Dispatch; Baton decides which sagas
// the message belongs to, correlates or creates their durable entities, and
// drives the persistence lifecycle.
//
// # Quick Start
//
//	b := registry.NewBuilder()
//	registry.AddSaga(b, "order", newOrderSaga, newOrderEntity)
//	registry.OnMessage(b, "order", "order.placed", handleOrderPlaced)
//	b.AddFinder("order.placed", store.ByID(st, newOrderEntity), registry.StartsSaga("order"))
//	reg, err := b.Build()
//
//	d := dispatcher.New(reg, st, bus)
//	err = d.Dispatch(ctx, env)
//
// # Architecture
//
// Baton follows a composable store pattern: the persistence port is the
// store.Store interface, implemented by memory, Redis, and PostgreSQL
// backends. Capability resolution (which handler runs for which message)
// is an immutable registry built once at startup, not runtime reflection.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package baton
