// Package dispatcher implements the saga orchestration core: the Dispatch
// algorithm that routes one inbound message to zero, one, or many sagas.
//
// For each message the dispatcher consults the registry's finders in
// registration order, locating existing entities or synthesizing new ones
// when a finder misses and a start saga is configured. Each located or
// created entity gets a fresh saga instance bound to it for the duration
// of the dispatch; the instance's completion flag decides whether the
// entity is persisted (create or update) or finalized with its timeouts
// cancelled.
//
// Two guards are kept per Dispatch call and discarded on return: an entity
// is handled at most once even if several finders locate it, and a saga
// type is started at most once even if several finders would trigger its
// creation.
//
// Timeout notifications take a separate path: an unexpired timeout is
// deferred back to the transport with a backoff-computed delay, and an
// expired one is routed to the handler registered for the runtime type of
// its state payload. A saga with no handler for a timeout payload it
// scheduled is a fatal configuration error.
//
// Messages no saga claims are handed to the registry's not-found fallback
// handlers; their errors are logged and never propagate.
package dispatcher
