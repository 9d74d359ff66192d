// Package canon provides the constrained value model and canonical JSON
// serialization used for content-addressed identity throughout grove.
//
// All identifiers (projects, peers, operations) are SHA-256 hashes over
// RFC 8785 canonical JSON with domain separation. Two replicas that encode
// the same logical value must produce byte-identical output, so this
// package is the only serialization allowed on any hashing path.
//
// Key constraints:
//   - NO float types anywhere - use Int (int64) for numbers
//   - NO null values - absent fields are omitted, never null
//   - Object keys sorted by UTF-16 code units (RFC 8785), not UTF-8 bytes
//   - Strings NFC-normalized at the serialization boundary
//
// canon is the foundational layer: every other internal package may import
// it; it imports nothing internal.
package canon
