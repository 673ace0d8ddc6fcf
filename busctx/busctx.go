// Package busctx carries ambient delivery metadata on context.Context:
// the reply address of the message currently being dispatched and its
// delivery attempt count. The transport attaches the metadata before
// calling Dispatch; the dispatcher captures it when creating entities
// and when computing defer delays.
package busctx

import "context"

type ctxKey struct{}

// Delivery is the per-message delivery metadata supplied by the transport.
type Delivery struct {
	// ReplyTo is the address replies to the current message should go
	// to. Captured as Originator on entities created by this dispatch.
	ReplyTo string

	// Attempt counts prior deliveries of the current message.
	Attempt int
}

// With attaches delivery metadata to the context.
func With(ctx context.Context, d Delivery) context.Context {
	return context.WithValue(ctx, ctxKey{}, d)
}

// Capture extracts the delivery metadata from the context.
// Returns the zero Delivery if none is present.
func Capture(ctx context.Context) Delivery {
	d, _ := ctx.Value(ctxKey{}).(Delivery)
	return d
}
