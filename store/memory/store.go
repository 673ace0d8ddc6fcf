// Package memory implements store.Store entirely in memory. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/baton"
	"github.com/xraph/baton/id"
	"github.com/xraph/baton/saga"
	"github.com/xraph/baton/store"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// record is a detached snapshot of one entity. Entities are stored as
// JSON so callers can mutate their values without racing with the store.
type record struct {
	entityType string
	key        string
	version    int
	body       []byte
}

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	entities map[string]*record // key: saga ID string
	byKey    map[string]string  // key: entityType + "\x00" + correlation key → saga ID

	// finalized remembers terminal entity IDs so updates against them
	// report not-found rather than conflict.
	finalized map[string]struct{}
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		entities:  make(map[string]*record),
		byKey:     make(map[string]string),
		finalized: make(map[string]struct{}),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// CreateEntity persists a new entity. The existence check and insert hold
// the store lock, so two racing creates for the same ID cannot both win.
func (m *Store) CreateEntity(_ context.Context, d saga.Data) error {
	meta := d.Meta()
	if meta.ID.IsNil() {
		return fmt.Errorf("memory: create entity: %w", baton.ErrEntityNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sid := meta.ID.String()
	if _, exists := m.entities[sid]; exists {
		return baton.ErrEntityExists
	}
	if _, gone := m.finalized[sid]; gone {
		return baton.ErrEntityExists
	}

	now := time.Now().UTC()
	meta.Version = 1
	meta.CreatedAt = now
	meta.UpdatedAt = now

	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("memory: marshal entity %s: %w", sid, err)
	}

	rec := &record{
		entityType: store.EntityType(d),
		key:        meta.CorrelationKey,
		version:    meta.Version,
		body:       body,
	}
	m.entities[sid] = rec
	if rec.key != "" {
		m.byKey[indexKey(rec.entityType, rec.key)] = sid
	}
	return nil
}

// UpdateEntity persists changes to an existing entity with an optimistic
// version check.
func (m *Store) UpdateEntity(_ context.Context, d saga.Data) error {
	meta := d.Meta()

	m.mu.Lock()
	defer m.mu.Unlock()

	sid := meta.ID.String()
	rec, ok := m.entities[sid]
	if !ok {
		return baton.ErrEntityNotFound
	}
	if rec.version != meta.Version {
		return baton.ErrUpdateConflict
	}

	// Re-index if the correlation key changed.
	if rec.key != meta.CorrelationKey {
		if rec.key != "" {
			delete(m.byKey, indexKey(rec.entityType, rec.key))
		}
		if meta.CorrelationKey != "" {
			m.byKey[indexKey(rec.entityType, meta.CorrelationKey)] = sid
		}
	}

	meta.Version++
	meta.UpdatedAt = time.Now().UTC()

	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("memory: marshal entity %s: %w", sid, err)
	}
	rec.key = meta.CorrelationKey
	rec.version = meta.Version
	rec.body = body
	return nil
}

// FinalizeEntity removes the entity from active search scope. The ID is
// remembered so a late create against it is rejected.
func (m *Store) FinalizeEntity(_ context.Context, sagaID id.SagaID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sid := sagaID.String()
	rec, ok := m.entities[sid]
	if !ok {
		return baton.ErrEntityNotFound
	}
	if rec.key != "" {
		delete(m.byKey, indexKey(rec.entityType, rec.key))
	}
	delete(m.entities, sid)
	m.finalized[sid] = struct{}{}
	return nil
}

// GetEntity loads the entity with the given ID.
func (m *Store) GetEntity(_ context.Context, sagaID id.SagaID, into saga.Data) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.entities[sagaID.String()]
	if !ok {
		return baton.ErrEntityNotFound
	}
	return decode(rec, into)
}

// FindEntityByKey loads the live entity of into's type whose correlation
// key equals key.
func (m *Store) FindEntityByKey(_ context.Context, key string, into saga.Data) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sid, ok := m.byKey[indexKey(store.EntityType(into), key)]
	if !ok {
		return baton.ErrEntityNotFound
	}
	rec, ok := m.entities[sid]
	if !ok {
		return baton.ErrEntityNotFound
	}
	return decode(rec, into)
}

func decode(rec *record, into saga.Data) error {
	if err := json.Unmarshal(rec.body, into); err != nil {
		return fmt.Errorf("memory: decode entity: %w", err)
	}
	return nil
}

func indexKey(entityType, key string) string {
	return entityType + "\x00" + key
}
