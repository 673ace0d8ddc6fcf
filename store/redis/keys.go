package redis

// Redis key naming conventions for saga data.
// All keys are prefixed with "baton:" to avoid collisions.

const keyPrefix = "baton:"

// sagaKey returns the Hash key for a saga entity: baton:saga:{id}
func sagaKey(id string) string { return keyPrefix + "saga:" + id }

// keyIndexKey returns the Hash mapping correlation keys to saga IDs for
// one entity type: baton:saga_keys:{entityType}
func keyIndexKey(entityType string) string { return keyPrefix + "saga_keys:" + entityType }

// finalizedKey is the Set of finalized saga IDs, kept so a late create
// against a completed saga is rejected.
const finalizedKey = keyPrefix + "saga_finalized"
