package trust

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/store"
	"github.com/grovekit/grove/internal/urn"
)

var (
	testProject = urn.MustParse("grove:project:" + strings.Repeat("0", 64))
	localPeer   = urn.MustParse("grove:peer:" + strings.Repeat("a", 64))
	alice       = urn.MustParse("grove:peer:" + strings.Repeat("b", 64))
	bob         = urn.MustParse("grove:peer:" + strings.Repeat("c", 64))
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ps, err := s.Project(testProject)
	require.NoError(t, err)

	g, err := NewGraph(localPeer, ps)
	require.NoError(t, err)
	return g
}

func TestNewGraphRejectsProjectAsLocal(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ps, err := s.Project(testProject)
	require.NoError(t, err)

	_, err = NewGraph(testProject, ps)
	require.Error(t, err)
}

func TestTrackAndUntrack(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	tracked, err := g.IsTracked(ctx, alice)
	require.NoError(t, err)
	assert.False(t, tracked, "peers are untracked by default")

	require.NoError(t, g.Track(ctx, alice, "met at the conference"))

	tracked, err = g.IsTracked(ctx, alice)
	require.NoError(t, err)
	assert.True(t, tracked)

	// Track is idempotent.
	require.NoError(t, g.Track(ctx, alice, "still trusted"))

	entries, err := g.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "still trusted", entries[0].Reason)

	require.NoError(t, g.Untrack(ctx, alice))
	tracked, err = g.IsTracked(ctx, alice)
	require.NoError(t, err)
	assert.False(t, tracked)
}

func TestUntrackUnknownPeer(t *testing.T) {
	g := newTestGraph(t)
	err := g.Untrack(context.Background(), alice)
	require.ErrorIs(t, err, ErrNotTracked)
}

func TestBlockOverridesTrack(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	require.NoError(t, g.Track(ctx, alice, ""))
	require.NoError(t, g.Block(ctx, alice, "spam"))

	tracked, err := g.IsTracked(ctx, alice)
	require.NoError(t, err)
	assert.False(t, tracked)

	blocked, err := g.IsBlocked(ctx, alice)
	require.NoError(t, err)
	assert.True(t, blocked)

	// Re-tracking unblocks.
	require.NoError(t, g.Track(ctx, alice, ""))
	blocked, err = g.IsBlocked(ctx, alice)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestLocalPeerAlwaysTracked(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	tracked, err := g.IsTracked(ctx, localPeer)
	require.NoError(t, err)
	assert.True(t, tracked)

	require.Error(t, g.Block(ctx, localPeer, "nope"))

	// Tracking the local peer is a no-op, not an entry.
	require.NoError(t, g.Track(ctx, localPeer, ""))
	entries, err := g.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTrackedPeersSortedWithLocal(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	require.NoError(t, g.Track(ctx, bob, ""))
	require.NoError(t, g.Track(ctx, alice, ""))
	require.NoError(t, g.Block(ctx, urn.MustParse("grove:peer:"+strings.Repeat("d", 64)), ""))

	peers, err := g.TrackedPeers(ctx)
	require.NoError(t, err)
	require.Equal(t, []urn.Identifier{localPeer, alice, bob}, peers)
}

func TestRejectsProjectIdentifier(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	require.Error(t, g.Track(ctx, testProject, ""))
	require.Error(t, g.Block(ctx, testProject, ""))
	require.Error(t, g.Untrack(ctx, testProject))
}
