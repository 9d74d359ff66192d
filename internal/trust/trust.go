// Package trust maintains the local tracking graph: the closed-world set
// of peers whose contributions are fetched and merged. Untracked peers are
// invisible; blocked peers are refused even when reachable.
package trust

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/grovekit/grove/internal/store"
	"github.com/grovekit/grove/internal/urn"
)

// Policy is the stance taken toward a peer.
type Policy string

const (
	// PolicyTrack includes the peer in sync and merge.
	PolicyTrack Policy = "track"
	// PolicyBlock refuses the peer's contributions.
	PolicyBlock Policy = "block"
)

// ErrNotTracked is returned by Untrack when no entry exists for the peer.
var ErrNotTracked = errors.New("peer not tracked")

// Entry is one peer's position in the graph.
type Entry struct {
	Peer      urn.Identifier
	Policy    Policy
	Reason    string
	UpdatedAt time.Time
}

// Graph is the tracking graph of one project, scoped to a local peer whose
// own contributions are always trusted.
type Graph struct {
	local urn.Identifier
	store *store.ProjectStore
}

// NewGraph returns the graph for a project store.
func NewGraph(local urn.Identifier, ps *store.ProjectStore) (*Graph, error) {
	if local.Kind() != urn.KindPeer {
		return nil, fmt.Errorf("trust graph: local identity %s is not a peer", local)
	}
	return &Graph{local: local, store: ps}, nil
}

// Local returns the local peer identifier.
func (g *Graph) Local() urn.Identifier { return g.local }

// Track marks a peer as tracked. Idempotent; tracking an already tracked
// peer refreshes the reason, and tracking a blocked peer unblocks it.
func (g *Graph) Track(ctx context.Context, peer urn.Identifier, reason string) error {
	if err := g.checkPeer(peer); err != nil {
		return err
	}
	if peer == g.local {
		// The local peer is implicitly tracked; no row needed.
		return nil
	}
	return g.store.UpsertTracking(ctx, peer, string(PolicyTrack), reason)
}

// Block refuses a peer's contributions. Blocking overrides any prior
// track entry.
func (g *Graph) Block(ctx context.Context, peer urn.Identifier, reason string) error {
	if err := g.checkPeer(peer); err != nil {
		return err
	}
	if peer == g.local {
		return fmt.Errorf("cannot block the local peer %s", peer.Short())
	}
	return g.store.UpsertTracking(ctx, peer, string(PolicyBlock), reason)
}

// Untrack removes a peer's entry entirely, returning the peer to the
// default untracked state. Returns ErrNotTracked when no entry exists.
func (g *Graph) Untrack(ctx context.Context, peer urn.Identifier) error {
	if err := g.checkPeer(peer); err != nil {
		return err
	}
	err := g.store.DeleteTracking(ctx, peer)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", peer.Short(), ErrNotTracked)
	}
	return err
}

// IsTracked reports whether a peer's contributions are accepted. The
// local peer is always tracked; every other peer is tracked only with an
// explicit track entry.
func (g *Graph) IsTracked(ctx context.Context, peer urn.Identifier) (bool, error) {
	if peer == g.local {
		return true, nil
	}
	entry, err := g.store.GetTracking(ctx, peer)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return Policy(entry.Policy) == PolicyTrack, nil
}

// IsBlocked reports whether a peer is explicitly blocked.
func (g *Graph) IsBlocked(ctx context.Context, peer urn.Identifier) (bool, error) {
	entry, err := g.store.GetTracking(ctx, peer)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return Policy(entry.Policy) == PolicyBlock, nil
}

// Entries returns every explicit entry in the graph, ordered by peer id.
func (g *Graph) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := g.store.ListTracking(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			Peer:      row.Peer,
			Policy:    Policy(row.Policy),
			Reason:    row.Reason,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return entries, nil
}

// TrackedPeers returns every peer whose contributions are merged,
// including the local peer, sorted by canonical encoding.
func (g *Graph) TrackedPeers(ctx context.Context) ([]urn.Identifier, error) {
	entries, err := g.Entries(ctx)
	if err != nil {
		return nil, err
	}
	peers := []urn.Identifier{g.local}
	for _, entry := range entries {
		if entry.Policy == PolicyTrack && entry.Peer != g.local {
			peers = append(peers, entry.Peer)
		}
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].String() < peers[j].String()
	})
	return peers, nil
}

func (g *Graph) checkPeer(peer urn.Identifier) error {
	if peer.Kind() != urn.KindPeer {
		return fmt.Errorf("%s is not a peer identifier", peer)
	}
	return nil
}
