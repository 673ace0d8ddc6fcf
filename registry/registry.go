// Package registry provides the immutable capability registry consulted by
// the dispatcher: which finders apply to a message, which saga starts when
// nothing is found, and which handler runs for a (saga, message) or
// (saga, timeout payload) pair.
//
// The registry is built once at startup through a Builder and passed into
// the dispatcher by constructor. There is no global lookup and no runtime
// reflection over methods; capabilities are explicit table entries, with
// cross-references validated at Build time.
package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/xraph/baton"
	"github.com/xraph/baton/saga"
)

// HandlerFunc is a type-erased saga message handler. Typed handlers
// registered via OnMessage/OnTimeout are converted to HandlerFuncs at
// registration time by closing over the type assertions.
type HandlerFunc func(ctx context.Context, inst saga.Instance, body any) error

// FallbackFunc handles messages no saga claimed.
type FallbackFunc func(ctx context.Context, env *baton.Envelope) error

// FinderBinding pairs a finder with the saga that should be started when
// the finder reports no match. A binding without a start saga only ever
// locates existing entities.
type FinderBinding struct {
	Finder    saga.Finder
	startSaga string
}

// StartSaga returns the name of the saga to auto-start when this finder
// finds nothing, and whether one is configured.
func (fb FinderBinding) StartSaga() (string, bool) {
	return fb.startSaga, fb.startSaga != ""
}

// spec holds the registered capabilities of one saga type.
type spec struct {
	name        string
	newInstance func() saga.Instance
	newEntity   func() saga.Data
	entityType  reflect.Type
	handlers    map[string]HandlerFunc
	timeouts    map[reflect.Type]HandlerFunc
}

// Registry is the immutable capability table. Safe for concurrent use:
// it is never mutated after Build.
type Registry struct {
	sagas     map[string]*spec
	byEntity  map[reflect.Type]string
	finders   map[string][]FinderBinding
	relevant  map[string]struct{}
	fallbacks []FallbackFunc
}

// FindersFor returns the finder bindings for a message name in
// registration order. The order is preserved across calls.
func (r *Registry) FindersFor(messageName string) []FinderBinding {
	return r.finders[messageName]
}

// Relevant reports whether the message name is associated with any saga:
// it has finder bindings or at least one saga handles it.
func (r *Registry) Relevant(messageName string) bool {
	_, ok := r.relevant[messageName]
	return ok
}

// SagaForEntity resolves the saga name owning the given entity's runtime
// type.
func (r *Registry) SagaForEntity(d saga.Data) (string, bool) {
	name, ok := r.byEntity[reflect.TypeOf(d)]
	return name, ok
}

// NewInstance builds a fresh saga instance of the named type. Implements
// the instance builder consumed by the dispatcher.
func (r *Registry) NewInstance(sagaName string) (saga.Instance, error) {
	s, ok := r.sagas[sagaName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", baton.ErrSagaNotRegistered, sagaName)
	}
	return s.newInstance(), nil
}

// NewEntity builds an empty entity of the named saga's entity type.
func (r *Registry) NewEntity(sagaName string) (saga.Data, error) {
	s, ok := r.sagas[sagaName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", baton.ErrSagaNotRegistered, sagaName)
	}
	return s.newEntity(), nil
}

// HandlerFor resolves the handler for a (saga, message) pair.
// A missing handler is not an error; the dispatcher treats it as a
// silent no-op.
func (r *Registry) HandlerFor(sagaName, messageName string) (HandlerFunc, bool) {
	s, ok := r.sagas[sagaName]
	if !ok {
		return nil, false
	}
	h, ok := s.handlers[messageName]
	return h, ok
}

// TimeoutHandlerFor resolves the timeout handler for a saga by the
// runtime type of the timeout state payload.
func (r *Registry) TimeoutHandlerFor(sagaName string, payloadType reflect.Type) (HandlerFunc, bool) {
	s, ok := r.sagas[sagaName]
	if !ok {
		return nil, false
	}
	h, ok := s.timeouts[payloadType]
	return h, ok
}

// Fallbacks returns the registered not-found fallback handlers in
// registration order.
func (r *Registry) Fallbacks() []FallbackFunc {
	return r.fallbacks
}

// SagaNames returns all registered saga names.
func (r *Registry) SagaNames() []string {
	names := make([]string, 0, len(r.sagas))
	for name := range r.sagas {
		names = append(names, name)
	}
	return names
}

// pendingHandler defers cross-reference checks to Build.
type pendingHandler struct {
	sagaName    string
	messageName string // empty for timeout handlers
	payloadType reflect.Type
	handler     HandlerFunc
}

type pendingFinder struct {
	messageName string
	binding     FinderBinding
}

// Builder accumulates registrations and produces an immutable Registry.
// Safe for concurrent use during startup, though registration is
// typically sequential.
type Builder struct {
	mu        sync.Mutex
	sagas     map[string]*spec
	handlers  []pendingHandler
	finders   []pendingFinder
	fallbacks []FallbackFunc
	errs      []error
}

// NewBuilder creates an empty registry builder.
func NewBuilder() *Builder {
	return &Builder{sagas: make(map[string]*spec)}
}

// AddSaga registers a saga type with its instance and entity factories.
// S is the concrete instance type, E the concrete entity type; the
// entity's runtime type becomes the key for entity→saga resolution.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func AddSaga[S saga.Instance, E saga.Data](b *Builder, name string, newInstance func() S, newEntity func() E) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.sagas[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("registry: saga %q registered twice", name))
		return
	}

	b.sagas[name] = &spec{
		name:        name,
		newInstance: func() saga.Instance { return newInstance() },
		newEntity:   func() saga.Data { return newEntity() },
		entityType:  reflect.TypeOf(newEntity()),
		handlers:    make(map[string]HandlerFunc),
		timeouts:    make(map[reflect.Type]HandlerFunc),
	}
}

// OnMessage registers a typed handler for a (saga, message) pair. The
// typed function is wrapped in a closure that asserts the instance and
// body types before calling it.
func OnMessage[S saga.Instance, M any](b *Builder, sagaName, messageName string, handler func(ctx context.Context, s S, m M) error) {
	wrapped := func(ctx context.Context, inst saga.Instance, body any) error {
		s, ok := inst.(S)
		if !ok {
			return fmt.Errorf("registry: handler for %q/%q: instance is %T", sagaName, messageName, inst)
		}
		m, ok := body.(M)
		if !ok {
			return fmt.Errorf("registry: handler for %q/%q: body is %T", sagaName, messageName, body)
		}
		return handler(ctx, s, m)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, pendingHandler{
		sagaName:    sagaName,
		messageName: messageName,
		handler:     wrapped,
	})
}

// OnTimeout registers a typed timeout handler for a saga, keyed by the
// payload type P. The dispatcher resolves timeout notifications by the
// runtime type of their state payload.
func OnTimeout[S saga.Instance, P any](b *Builder, sagaName string, handler func(ctx context.Context, s S, p P) error) {
	payloadType := reflect.TypeOf((*P)(nil)).Elem()

	wrapped := func(ctx context.Context, inst saga.Instance, body any) error {
		s, ok := inst.(S)
		if !ok {
			return fmt.Errorf("registry: timeout handler for %q: instance is %T", sagaName, inst)
		}
		p, ok := body.(P)
		if !ok {
			return fmt.Errorf("registry: timeout handler for %q: payload is %T", sagaName, body)
		}
		return handler(ctx, s, p)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, pendingHandler{
		sagaName:    sagaName,
		payloadType: payloadType,
		handler:     wrapped,
	})
}

// FinderOption configures a finder binding.
type FinderOption func(*FinderBinding)

// StartsSaga configures the binding to auto-start the named saga when the
// finder reports no match.
func StartsSaga(sagaName string) FinderOption {
	return func(fb *FinderBinding) {
		fb.startSaga = sagaName
	}
}

// AddFinder binds a finder to a message name. Finders for the same
// message run in registration order.
func (b *Builder) AddFinder(messageName string, f saga.Finder, opts ...FinderOption) {
	binding := FinderBinding{Finder: f}
	for _, opt := range opts {
		opt(&binding)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.finders = append(b.finders, pendingFinder{messageName: messageName, binding: binding})
}

// OnNotFound registers a fallback handler invoked when no saga claims a
// message. Fallbacks run in registration order; their errors are logged
// by the dispatcher but never fed back into dispatch.
func (b *Builder) OnNotFound(fn FallbackFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fallbacks = append(b.fallbacks, fn)
}

// Build validates all cross-references and returns the immutable
// Registry. Registration mistakes (unknown saga names, duplicate
// handlers, ambiguous entity types) surface here instead of mid-dispatch.
func (b *Builder) Build() (*Registry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	errs := append([]error(nil), b.errs...)

	r := &Registry{
		sagas:     make(map[string]*spec, len(b.sagas)),
		byEntity:  make(map[reflect.Type]string, len(b.sagas)),
		finders:   make(map[string][]FinderBinding),
		relevant:  make(map[string]struct{}),
		fallbacks: append([]FallbackFunc(nil), b.fallbacks...),
	}

	for name, s := range b.sagas {
		if owner, dup := r.byEntity[s.entityType]; dup {
			errs = append(errs, fmt.Errorf("registry: entity type %s claimed by sagas %q and %q", s.entityType, owner, name))
			continue
		}
		r.sagas[name] = s
		r.byEntity[s.entityType] = name
	}

	for _, ph := range b.handlers {
		s, ok := r.sagas[ph.sagaName]
		if !ok {
			errs = append(errs, fmt.Errorf("registry: handler references unregistered saga %q", ph.sagaName))
			continue
		}
		if ph.payloadType != nil {
			if _, dup := s.timeouts[ph.payloadType]; dup {
				errs = append(errs, fmt.Errorf("registry: saga %q has two timeout handlers for %s", ph.sagaName, ph.payloadType))
				continue
			}
			s.timeouts[ph.payloadType] = ph.handler
			continue
		}
		if _, dup := s.handlers[ph.messageName]; dup {
			errs = append(errs, fmt.Errorf("registry: saga %q has two handlers for message %q", ph.sagaName, ph.messageName))
			continue
		}
		s.handlers[ph.messageName] = ph.handler
		r.relevant[ph.messageName] = struct{}{}
	}

	for _, pf := range b.finders {
		if start, ok := pf.binding.StartSaga(); ok {
			if _, registered := r.sagas[start]; !registered {
				errs = append(errs, fmt.Errorf("registry: finder for %q starts unregistered saga %q", pf.messageName, start))
				continue
			}
		}
		r.finders[pf.messageName] = append(r.finders[pf.messageName], pf.binding)
		r.relevant[pf.messageName] = struct{}{}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("registry: build failed: %w", errors.Join(errs...))
	}
	return r, nil
}

// MustBuild is like Build but panics on error. Use in wiring code where a
// registration mistake is unrecoverable.
func (b *Builder) MustBuild() *Registry {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}
