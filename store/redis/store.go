// Package redis implements store.Store using Redis for high-throughput
// saga workloads. Each entity is a Redis Hash; correlation keys are
// indexed in a per-entity-type Hash. Create and update run as Lua scripts
// so the existence check and write are atomic under concurrent dispatch.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/baton"
	"github.com/xraph/baton/id"
	"github.com/xraph/baton/saga"
	"github.com/xraph/baton/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// createScript atomically claims the entity key. Rejects IDs that exist
// or were finalized, and indexes the correlation key in the same step.
//
// KEYS[1] entity hash, KEYS[2] finalized set, KEYS[3] key index hash
// ARGV: id, correlation key, version, body, timestamp, entity type
var createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'key', ARGV[2], 'version', ARGV[3], 'body', ARGV[4], 'created_at', ARGV[5], 'updated_at', ARGV[5], 'entity_type', ARGV[6])
if ARGV[2] ~= '' then redis.call('HSET', KEYS[3], ARGV[2], ARGV[1]) end
return 1
`)

// updateScript writes the entity only if the stored version matches,
// re-indexing the correlation key when it changed.
//
// KEYS[1] entity hash, KEYS[2] key index hash
// ARGV: expected version, new version, new correlation key, body, timestamp
// Returns -1 when missing, 0 on version conflict, 1 on success.
var updateScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'version') ~= ARGV[1] then return 0 end
local oldkey = redis.call('HGET', KEYS[1], 'key')
if oldkey ~= ARGV[3] then
  if oldkey ~= '' then redis.call('HDEL', KEYS[2], oldkey) end
  if ARGV[3] ~= '' then redis.call('HSET', KEYS[2], ARGV[3], redis.call('HGET', KEYS[1], 'id')) end
end
redis.call('HSET', KEYS[1], 'key', ARGV[3], 'version', ARGV[2], 'body', ARGV[4], 'updated_at', ARGV[5])
return 1
`)

// finalizeScript removes the entity and its key index entry, remembering
// the ID as finalized.
//
// KEYS[1] entity hash, KEYS[2] finalized set, KEYS[3] key index hash
// ARGV: id
var finalizeScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
local key = redis.call('HGET', KEYS[1], 'key')
if key ~= '' then redis.call('HDEL', KEYS[3], key) end
redis.call('DEL', KEYS[1])
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements store.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// CreateEntity persists a new entity. The existence check and insert run
// in one Lua script, so two racing creates for the same correlation
// identifier cannot both succeed.
func (s *Store) CreateEntity(ctx context.Context, d saga.Data) error {
	meta := d.Meta()
	if meta.ID.IsNil() {
		return fmt.Errorf("baton/redis: create entity: %w", baton.ErrEntityNotFound)
	}
	sid := meta.ID.String()

	now := time.Now().UTC()
	meta.Version = 1
	meta.CreatedAt = now
	meta.UpdatedAt = now

	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("baton/redis: marshal entity %s: %w", sid, err)
	}

	entityType := store.EntityType(d)
	keys := []string{sagaKey(sid), finalizedKey, keyIndexKey(entityType)}
	res, err := createScript.Run(ctx, s.client, keys,
		sid, meta.CorrelationKey, strconv.Itoa(meta.Version), string(body), now.Format(time.RFC3339Nano), entityType,
	).Int()
	if err != nil {
		return fmt.Errorf("baton/redis: create entity %s: %w", sid, err)
	}
	if res == 0 {
		return baton.ErrEntityExists
	}
	return nil
}

// UpdateEntity persists changes to an existing entity with an optimistic
// version check performed inside the script.
func (s *Store) UpdateEntity(ctx context.Context, d saga.Data) error {
	meta := d.Meta()
	sid := meta.ID.String()

	expected := meta.Version
	now := time.Now().UTC()
	meta.Version++
	meta.UpdatedAt = now

	body, err := json.Marshal(d)
	if err != nil {
		meta.Version = expected
		return fmt.Errorf("baton/redis: marshal entity %s: %w", sid, err)
	}

	keys := []string{sagaKey(sid), keyIndexKey(store.EntityType(d))}
	res, err := updateScript.Run(ctx, s.client, keys,
		strconv.Itoa(expected), strconv.Itoa(meta.Version), meta.CorrelationKey, string(body), now.Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		meta.Version = expected
		return fmt.Errorf("baton/redis: update entity %s: %w", sid, err)
	}
	switch res {
	case -1:
		meta.Version = expected
		return baton.ErrEntityNotFound
	case 0:
		meta.Version = expected
		return baton.ErrUpdateConflict
	}
	return nil
}

// FinalizeEntity removes the entity from active search scope. The ID is
// remembered so a late create against it is rejected.
func (s *Store) FinalizeEntity(ctx context.Context, sagaID id.SagaID) error {
	sid := sagaID.String()

	// The key index is per entity type, which we cannot derive from the
	// ID alone; load the stored body's index hash via the key field first.
	keys := []string{sagaKey(sid), finalizedKey, keyIndexKey(s.entityTypeOf(ctx, sid))}
	res, err := finalizeScript.Run(ctx, s.client, keys, sid).Int()
	if err != nil {
		return fmt.Errorf("baton/redis: finalize entity %s: %w", sid, err)
	}
	if res == 0 {
		return baton.ErrEntityNotFound
	}
	return nil
}

// entityTypeOf recovers the entity type recorded alongside the body.
// Best effort: a missing hash yields an empty type and the finalize
// script then reports not-found.
func (s *Store) entityTypeOf(ctx context.Context, sid string) string {
	et, err := s.client.HGet(ctx, sagaKey(sid), "entity_type").Result()
	if err != nil {
		return ""
	}
	return et
}

// GetEntity loads the entity with the given ID.
func (s *Store) GetEntity(ctx context.Context, sagaID id.SagaID, into saga.Data) error {
	body, err := s.client.HGet(ctx, sagaKey(sagaID.String()), "body").Result()
	if err != nil {
		if err == goredis.Nil {
			return baton.ErrEntityNotFound
		}
		return fmt.Errorf("baton/redis: get entity %s: %w", sagaID, err)
	}
	return decode(body, into)
}

// FindEntityByKey loads the live entity of into's type whose correlation
// key equals key.
func (s *Store) FindEntityByKey(ctx context.Context, key string, into saga.Data) error {
	sid, err := s.client.HGet(ctx, keyIndexKey(store.EntityType(into)), key).Result()
	if err != nil {
		if err == goredis.Nil {
			return baton.ErrEntityNotFound
		}
		return fmt.Errorf("baton/redis: find entity by key %q: %w", key, err)
	}

	body, err := s.client.HGet(ctx, sagaKey(sid), "body").Result()
	if err != nil {
		if err == goredis.Nil {
			return baton.ErrEntityNotFound
		}
		return fmt.Errorf("baton/redis: find entity by key %q: %w", key, err)
	}
	return decode(body, into)
}

func decode(body string, into saga.Data) error {
	if err := json.Unmarshal([]byte(body), into); err != nil {
		return fmt.Errorf("baton/redis: decode entity: %w", err)
	}
	return nil
}
