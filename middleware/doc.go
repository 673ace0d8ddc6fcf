// Package middleware provides composable middleware for message dispatch.
//
// A [Middleware] is a function that wraps a dispatch call. Middleware are
// composed into a chain using [Chain] and applied around each Dispatch.
// They are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → recover → dispatch
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs message name, kind, duration, and outcome
//   - [Recover] — catches panics in saga handlers and converts them to errors
//   - [Tracing] — wraps dispatch in an OpenTelemetry span
//   - [Metrics] — records per-message duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, env *baton.Envelope, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware
