package store

import (
	"context"
	"reflect"

	"github.com/xraph/baton"
	"github.com/xraph/baton/id"
	"github.com/xraph/baton/saga"
)

// Store is the persistence port consumed by the dispatcher and by
// store-backed finders.
type Store interface {
	// CreateEntity persists a new entity. Returns baton.ErrEntityExists
	// if an entity with the same ID already exists; the check and insert
	// are atomic so two concurrent dispatches cannot both create an
	// entity for the same correlation identifier.
	CreateEntity(ctx context.Context, d saga.Data) error

	// UpdateEntity persists changes to an existing, non-finalized entity.
	// Returns baton.ErrEntityNotFound if the entity does not exist or was
	// finalized, and baton.ErrUpdateConflict if the entity was modified
	// since it was read (version check).
	UpdateEntity(ctx context.Context, d saga.Data) error

	// FinalizeEntity marks a completed entity as terminal. Afterwards the
	// entity is unreachable to GetEntity and FindEntityByKey.
	FinalizeEntity(ctx context.Context, sagaID id.SagaID) error

	// GetEntity loads the entity with the given ID into the provided
	// value, which must be a pointer to the entity's concrete type.
	// Returns baton.ErrEntityNotFound for unknown or finalized entities.
	GetEntity(ctx context.Context, sagaID id.SagaID, into saga.Data) error

	// FindEntityByKey loads the entity whose CorrelationKey equals key
	// into the provided value. The lookup is scoped to the concrete
	// entity type of into, so the same business key may exist in
	// different saga types. Returns baton.ErrEntityNotFound when no live
	// entity matches.
	FindEntityByKey(ctx context.Context, key string, into saga.Data) error

	// Migrate prepares backend schema or structures.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// ByID returns a finder that locates the entity whose ID equals the
// envelope's explicit correlation identifier. Envelopes without a
// correlation identifier never match.
func ByID[E saga.Data](st Store, newEntity func() E) saga.Finder {
	return saga.FinderFunc(func(ctx context.Context, env *baton.Envelope) (saga.Data, error) {
		if env.CorrelationID.IsNil() {
			return nil, baton.ErrEntityNotFound
		}
		e := newEntity()
		if err := st.GetEntity(ctx, env.CorrelationID, e); err != nil {
			return nil, err
		}
		return e, nil
	})
}

// ByKey returns a finder that locates an entity by a business correlation
// key extracted from the envelope. An empty key never matches.
func ByKey[E saga.Data](st Store, newEntity func() E, keyFn func(*baton.Envelope) string) saga.Finder {
	return saga.FinderFunc(func(ctx context.Context, env *baton.Envelope) (saga.Data, error) {
		key := keyFn(env)
		if key == "" {
			return nil, baton.ErrEntityNotFound
		}
		e := newEntity()
		if err := st.FindEntityByKey(ctx, key, e); err != nil {
			return nil, err
		}
		return e, nil
	})
}

// EntityType returns the canonical type name used by backends to scope
// correlation-key lookups, e.g. "shipping.OrderEntity".
func EntityType(d saga.Data) string {
	t := reflect.TypeOf(d)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}
