package urn

import (
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/canon"
)

func TestParse_Valid(t *testing.T) {
	digest := strings.Repeat("ab", 32)

	tests := []struct {
		name string
		in   string
		kind Kind
	}{
		{"project", "grove:project:" + digest, KindProject},
		{"peer", "grove:peer:" + digest, KindPeer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, id.Kind())
			assert.Equal(t, digest, id.Digest())
			assert.Equal(t, tt.in, id.String())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	digest := strings.Repeat("ab", 32)

	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"wrong scheme", "rad:project:" + digest},
		{"unknown kind", "grove:widget:" + digest},
		{"short digest", "grove:project:abcdef"},
		{"uppercase digest", "grove:project:" + strings.Repeat("AB", 32)},
		{"non-hex digest", "grove:project:" + strings.Repeat("zz", 32)},
		{"missing digest", "grove:project"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestDeriveProject_Deterministic(t *testing.T) {
	payload := canon.Object{
		"name":           canon.String("heartwood"),
		"default_branch": canon.String("main"),
	}

	a, err := DeriveProject(payload)
	require.NoError(t, err)
	b, err := DeriveProject(payload)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.Equal(t, KindProject, a.Kind())

	// A different payload yields a different identifier.
	payload["name"] = canon.String("sapling")
	c, err := DeriveProject(payload)
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
}

func TestPeerFromPublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	id := PeerFromPublicKey(pub)
	assert.Equal(t, KindPeer, id.Kind())
	assert.False(t, id.IsZero())

	// Same key, same identifier.
	assert.True(t, id.Equal(PeerFromPublicKey(pub)))

	// Round-trips through the canonical encoding.
	back, err := Parse(id.String())
	require.NoError(t, err)
	assert.True(t, id.Equal(back))
}

func TestIdentifier_TextMarshaling(t *testing.T) {
	id := MustParse("grove:peer:" + strings.Repeat("cd", 32))

	text, err := id.MarshalText()
	require.NoError(t, err)

	var back Identifier
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, id, back)

	_, err = Identifier{}.MarshalText()
	assert.Error(t, err, "zero identifier must not marshal")
}

func TestIdentifier_Short(t *testing.T) {
	id := MustParse("grove:project:" + strings.Repeat("ef", 32))
	assert.Equal(t, "efefefef", id.Short())
}
