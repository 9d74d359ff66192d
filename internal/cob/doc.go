// Package cob implements collaborative objects: the CRDT documents (issues
// and patches) that grove replicates between peers.
//
// A document is an append-only log of immutable operations. Each operation
// carries its author, a Lamport clock, and the set of causal predecessor
// operation ids, and is content-addressed: its id is the hash of its
// canonical encoding. Merging two logs is set union deduplicated by id.
//
// Materialized state is a pure function of the operation set. The
// materializer orders operations topologically by causal parents and breaks
// ties between causally-unordered operations with a deterministic,
// configurable policy, so any two replicas holding the same set of
// operations produce byte-identical state regardless of arrival order.
// Merge is therefore commutative, associative, and idempotent.
//
// Concurrent writes to the same scalar field are resolved last-writer-wins
// under that total order, and additionally surfaced as conflict markers on
// the projected record. Conflicts are data, not errors.
//
// Malformed operations (failing the CUE payload schema, or whose id does
// not match their content) are rejected individually and never abort the
// merge of the remaining log.
package cob
