// Package identity models peers and resolves the human-facing spellings
// of identifiers (canonical urns, aliases, digest prefixes) to exactly one
// canonical identifier.
package identity

import (
	"crypto/ed25519"
	"fmt"

	"github.com/grovekit/grove/internal/urn"
)

// Peer is a public-key-derived identity plus the addressing hints known
// locally. Peers are owned by the trust graph; documents reference peers
// by identifier only and never embed Peer values.
type Peer struct {
	ID        urn.Identifier
	Alias     string
	Addresses []string
}

// Signer holds the local ed25519 keypair. The local peer identifier is
// derived from the public key, so a profile's identity is stable for the
// lifetime of its key.
type Signer struct {
	priv ed25519.PrivateKey
}

// NewSigner generates a fresh keypair.
func NewSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Signer{priv: priv}, nil
}

// SignerFromSeed reconstructs a signer from a stored 32-byte seed.
func SignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Seed returns the private key seed for persistence.
func (s *Signer) Seed() []byte {
	return s.priv.Seed()
}

// Public returns the public key.
func (s *Signer) Public() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

// Peer returns the local peer identifier derived from the public key.
func (s *Signer) Peer() urn.Identifier {
	return urn.PeerFromPublicKey(s.Public())
}

// Sign signs data with the local key.
func (s *Signer) Sign(data []byte) []byte {
	return ed25519.Sign(s.priv, data)
}
