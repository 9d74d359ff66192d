// Package store provides SQLite-backed durable storage for grove's
// collaborative documents and trust state.
//
// On-disk layout: one directory per project under the state root, keyed by
// the project identifier's digest, each holding a grove.db with the
// project's append-only operation logs, document index, and tracking
// table. A root-level index.db carries the cross-project identity and
// alias index used by the resolver.
//
//	<root>/index.db
//	<root>/<project digest>/grove.db
//
// The operation log is append-only: callers pass only new operations, the
// store persists the growing log and invalidates any cached document
// state. Duplicate operation ids are silently ignored (ON CONFLICT DO
// NOTHING), which makes persistence idempotent to match merge semantics.
//
// All queries that feed materialization use ORDER BY seq ASC, id ASC
// COLLATE BINARY so loads are deterministic.
//
// Concurrent local writers to the same document are serialized through the
// per-document lock table (LockDocument / TryLockDocument); writers to
// different documents proceed independently.
//
// Database configuration follows the usual SQLite service settings: WAL
// mode, synchronous=NORMAL, busy_timeout=5000, foreign_keys=ON, and a
// single connection per database file to avoid SQLITE_BUSY.
package store
