// Package postgres implements the store using pgx/v5 with raw SQL.
// Entities live in a single baton_sagas table with a JSONB body; creates
// rely on the primary key for atomic create-if-absent, updates carry an
// optimistic version check, and finalized rows stay in the table (marked
// terminal) so they are unreachable to lookups but still block late
// creates. Schema is managed through embedded SQL migrations.
package postgres
