package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/xraph/baton"
	"github.com/xraph/baton/backoff"
	"github.com/xraph/baton/busctx"
	"github.com/xraph/baton/id"
	"github.com/xraph/baton/middleware"
	"github.com/xraph/baton/registry"
	"github.com/xraph/baton/saga"
	"github.com/xraph/baton/store"
)

// Bus is the transport-side port the dispatcher calls back into: deferring
// re-delivery of the current message and cancelling scheduled timeouts for
// a completed saga.
type Bus interface {
	// DeferMessage asks the transport to re-deliver the message currently
	// being dispatched after the given delay.
	DeferMessage(ctx context.Context, delay time.Duration) error

	// CancelTimeouts cancels all scheduled timeouts keyed by the saga
	// entity's ID. Must be idempotent.
	CancelTimeouts(ctx context.Context, sagaID id.SagaID) error
}

// Dispatcher routes inbound messages to saga instances. It is stateless
// between calls: all duplicate-handling bookkeeping lives on the stack of
// one Dispatch invocation, so concurrent Dispatch calls are safe and any
// cross-dispatch safety for the same saga is the store's concern.
type Dispatcher struct {
	reg    *registry.Registry
	store  store.Store
	bus    Bus
	logger *slog.Logger
	mws    []middleware.Middleware
	chain  middleware.Middleware
	bo     backoff.Strategy
	now    func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMiddleware appends middleware to the dispatch chain. Middleware run
// in the order given, outermost first.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(d *Dispatcher) {
		d.mws = append(d.mws, mws...)
	}
}

// WithDeferBackoff sets the strategy used to compute the re-delivery delay
// for unexpired timeout notifications. Defaults to
// backoff.DefaultStrategy().
func WithDeferBackoff(b backoff.Strategy) Option {
	return func(d *Dispatcher) {
		d.bo = b
	}
}

// WithClock overrides the time source used for timeout-expiry checks.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// New creates a Dispatcher. The registry, store, and bus are required
// collaborators; registry must already be built and is never mutated.
func New(reg *registry.Registry, st store.Store, bus Bus, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:    reg,
		store:  st,
		bus:    bus,
		logger: slog.Default(),
		bo:     backoff.DefaultStrategy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.chain = middleware.Chain(d.mws...)
	return d
}

// Dispatch is the sole entry point: route one message through every
// applicable saga. A message no saga claims is not an error; registration
// mistakes and store failures are.
func (d *Dispatcher) Dispatch(ctx context.Context, env *baton.Envelope) error {
	return d.chain(ctx, env, func(ctx context.Context) error {
		return d.dispatch(ctx, env)
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, env *baton.Envelope) error {
	switch env.Kind() {
	case baton.KindTimeout:
		if !env.Timeout.Expired(d.now()) {
			return d.deferEnvelope(ctx, env)
		}
	case baton.KindCorrelated:
		// Explicit correlation is always saga-relevant.
	default:
		if !d.reg.Relevant(env.Name) {
			return nil
		}
	}

	// Per-dispatch guards: each entity handled at most once, each saga
	// type started at most once. Scoped to this call only.
	handled := make(map[string]struct{})
	started := make(map[string]struct{})

	for _, binding := range d.reg.FindersFor(env.Name) {
		entity, err := binding.Finder.Find(ctx, env)
		switch {
		case err == nil:
			eid := entity.Meta().ID.String()
			if _, dup := handled[eid]; dup {
				continue
			}
			sagaName, ok := d.reg.SagaForEntity(entity)
			if !ok {
				return fmt.Errorf("%w: no saga owns entity type %s", baton.ErrSagaNotRegistered, store.EntityType(entity))
			}
			if err := d.runSaga(ctx, sagaName, entity, env, false); err != nil {
				return err
			}
			handled[eid] = struct{}{}
			started[sagaName] = struct{}{}

		case errors.Is(err, baton.ErrEntityNotFound):
			sagaName, ok := binding.StartSaga()
			if !ok {
				continue
			}
			if _, dup := started[sagaName]; dup {
				continue
			}
			fresh, err := d.newEntity(ctx, sagaName, env)
			if err != nil {
				return err
			}
			if err := d.runSaga(ctx, sagaName, fresh, env, true); err != nil {
				return err
			}
			handled[fresh.Meta().ID.String()] = struct{}{}
			started[sagaName] = struct{}{}

		default:
			return fmt.Errorf("dispatcher: finder for %q: %w", env.Name, err)
		}
	}

	if len(handled) == 0 {
		d.handleNotFound(ctx, env)
	}
	return nil
}

// deferEnvelope requests re-delivery of an unexpired timeout notification.
// A defer failure terminates the dispatch and propagates.
func (d *Dispatcher) deferEnvelope(ctx context.Context, env *baton.Envelope) error {
	delay := d.bo.Delay(env.Attempt + 1)
	if err := d.bus.DeferMessage(ctx, delay); err != nil {
		return fmt.Errorf("dispatcher: defer unexpired timeout %s: %w", env.ID, err)
	}
	d.logger.Debug("deferred unexpired timeout",
		slog.String("message_id", env.ID.String()),
		slog.Duration("delay", delay),
	)
	return nil
}

// newEntity synthesizes a fresh entity for a saga being auto-started.
// Its ID is the message's explicit correlation identifier when present,
// else freshly generated; originator metadata comes from the delivery
// context.
func (d *Dispatcher) newEntity(ctx context.Context, sagaName string, env *baton.Envelope) (saga.Data, error) {
	entity, err := d.reg.NewEntity(sagaName)
	if err != nil {
		return nil, err
	}

	meta := entity.Meta()
	if !env.CorrelationID.IsNil() {
		meta.ID = env.CorrelationID
	} else {
		meta.ID = id.NewSagaID()
	}
	meta.Originator = busctx.Capture(ctx).ReplyTo
	meta.OriginatingMessageID = env.ID
	return entity, nil
}

// runSaga performs the inner dispatch for one (saga, entity) pair: build
// and bind the instance, invoke the handler, then persist or finalize per
// the completion state. fresh marks an entity synthesized this dispatch
// and not yet persisted.
func (d *Dispatcher) runSaga(ctx context.Context, sagaName string, entity saga.Data, env *baton.Envelope, fresh bool) error {
	inst, err := d.reg.NewInstance(sagaName)
	if err != nil {
		return err
	}
	inst.Bind(entity)

	if env.Kind() == baton.KindTimeout {
		err = d.dispatchTimeout(ctx, sagaName, inst, env)
	} else if h, ok := d.reg.HandlerFor(sagaName, env.Name); ok {
		err = h(ctx, inst, env.Body)
	}
	// No handler for (saga, message) is a silent no-op: the saga ignores
	// the message but the entity still counts as handled.
	if err != nil {
		return err
	}

	sagaID := entity.Meta().ID

	if !inst.Completed() {
		if fresh {
			return d.store.CreateEntity(ctx, entity)
		}
		return d.store.UpdateEntity(ctx, entity)
	}

	if !fresh {
		if err := d.store.FinalizeEntity(ctx, sagaID); err != nil {
			return err
		}
	}
	if err := d.bus.CancelTimeouts(ctx, sagaID); err != nil {
		return err
	}
	d.logger.Info("saga completed",
		slog.String("saga", sagaName),
		slog.String("saga_id", sagaID.String()),
		slog.String("message", env.Name),
	)
	return nil
}

// dispatchTimeout resolves the timeout handler by the runtime type of the
// state payload. A saga schedules its own timeouts, so a missing handler
// is a fatal contract violation, not a no-op.
func (d *Dispatcher) dispatchTimeout(ctx context.Context, sagaName string, inst saga.Instance, env *baton.Envelope) error {
	payloadType := reflect.TypeOf(env.Timeout.State)
	payloadName := "<nil>"
	if payloadType != nil {
		payloadName = payloadType.String()
	}

	h, ok := d.reg.TimeoutHandlerFor(sagaName, payloadType)
	if !ok {
		return &baton.MissingTimeoutHandlerError{
			SagaName:    sagaName,
			PayloadType: payloadName,
		}
	}
	return h(ctx, inst, env.Timeout.State)
}

// handleNotFound runs the registered fallback handlers for a message no
// saga claimed. Fallback outcomes are logged but never fed back into the
// dispatch result.
func (d *Dispatcher) handleNotFound(ctx context.Context, env *baton.Envelope) {
	d.logger.Info("no saga claimed message",
		slog.String("message", env.Name),
		slog.String("message_id", env.ID.String()),
	)
	for _, fb := range d.reg.Fallbacks() {
		if err := fb(ctx, env); err != nil {
			d.logger.Error("not-found fallback failed",
				slog.String("message", env.Name),
				slog.String("error", err.Error()),
			)
		}
	}
}
