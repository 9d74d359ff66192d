// Package urn defines the canonical, content-derived identifiers used for
// projects and peers.
//
// An identifier never changes once derived: project ids hash the project's
// founding payload, peer ids hash the peer's ed25519 public key. Equality
// is structural - two identifiers are equal iff their canonical string
// encodings are byte-equal.
package urn

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/grovekit/grove/internal/canon"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainProject = "grove/project/v1"
	DomainPeer    = "grove/peer/v1"
)

// Kind distinguishes the namespaces an identifier can belong to.
type Kind string

const (
	KindProject Kind = "project"
	KindPeer    Kind = "peer"
)

// digestLen is the length of a lowercase hex SHA-256 digest.
const digestLen = 64

// Identifier is a canonical, content-derived identifier.
// The zero value is invalid; construct via Parse, DeriveProject, or
// PeerFromPublicKey. Identifier is comparable and usable as a map key.
type Identifier struct {
	kind   Kind
	digest string // lowercase hex, 64 chars
}

// Parse parses a canonical identifier string of the form
// "grove:<kind>:<64 hex>". It fails on unknown kinds, wrong digest length,
// or non-hex digits. Parsing is purely structural: it does not consult any
// local state.
func Parse(s string) (Identifier, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != "grove" {
		return Identifier{}, fmt.Errorf("invalid identifier %q: want grove:<kind>:<digest>", s)
	}

	kind := Kind(parts[1])
	if kind != KindProject && kind != KindPeer {
		return Identifier{}, fmt.Errorf("invalid identifier %q: unknown kind %q", s, parts[1])
	}

	digest := parts[2]
	if len(digest) != digestLen {
		return Identifier{}, fmt.Errorf("invalid identifier %q: digest must be %d hex chars", s, digestLen)
	}
	for _, c := range digest {
		if !isHexLower(c) {
			return Identifier{}, fmt.Errorf("invalid identifier %q: digest must be lowercase hex", s)
		}
	}

	return Identifier{kind: kind, digest: digest}, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or with known-valid constants.
func MustParse(s string) Identifier {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// DeriveProject derives a project identifier from its founding payload
// (name, default branch, founder peer). The same payload always yields the
// same identifier on every replica.
func DeriveProject(payload canon.Object) (Identifier, error) {
	digest, err := canon.HashValue(DomainProject, payload)
	if err != nil {
		return Identifier{}, fmt.Errorf("derive project id: %w", err)
	}
	return Identifier{kind: KindProject, digest: digest}, nil
}

// PeerFromPublicKey derives a peer identifier from an ed25519 public key.
func PeerFromPublicKey(pub ed25519.PublicKey) Identifier {
	return Identifier{kind: KindPeer, digest: canon.Hash(DomainPeer, pub)}
}

// Kind returns the identifier's namespace.
func (id Identifier) Kind() Kind { return id.kind }

// Digest returns the lowercase hex digest portion.
func (id Identifier) Digest() string { return id.digest }

// String returns the canonical encoding "grove:<kind>:<digest>".
func (id Identifier) String() string {
	return fmt.Sprintf("grove:%s:%s", id.kind, id.digest)
}

// Short returns a truncated digest for human-oriented display.
func (id Identifier) Short() string {
	if len(id.digest) < 8 {
		return id.digest
	}
	return id.digest[:8]
}

// IsZero reports whether the identifier is the invalid zero value.
func (id Identifier) IsZero() bool { return id.digest == "" }

// Equal reports structural equality.
func (id Identifier) Equal(other Identifier) bool { return id == other }

// MarshalText implements encoding.TextMarshaler using the canonical form.
func (id Identifier) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("cannot marshal zero identifier")
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identifier) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func isHexLower(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}
