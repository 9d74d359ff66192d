package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grovekit/grove/internal/urn"
)

// FSTransport exchanges blobs through a shared directory tree, laid out as
// <root>/<peer digest>/<project digest>/<ref>. Each peer publishes its
// own subtree and reads the others', which makes a network mount or a
// synced folder a functioning transport.
//
// Fetch reads from the remote peer's subtree; Push writes into it, where
// the remote merges it under its own trust policy.
type FSTransport struct {
	root string
}

// NewFSTransport returns a transport rooted at dir.
func NewFSTransport(dir string) *FSTransport {
	return &FSTransport{root: dir}
}

func (t *FSTransport) path(peer, project urn.Identifier, ref string) string {
	return filepath.Join(t.root, peer.Digest(), project.Digest(), filepath.FromSlash(ref))
}

// Fetch reads a ref from the peer's subtree.
func (t *FSTransport) Fetch(ctx context.Context, peer, project urn.Identifier, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(t.path(peer, project, ref))
	if err != nil {
		return nil, fmt.Errorf("read ref %q: %w", ref, err)
	}
	return blob, nil
}

// Push writes a ref into the peer's subtree.
func (t *FSTransport) Push(ctx context.Context, peer, project urn.Identifier, ref string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := t.path(peer, project, ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create ref dir: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return fmt.Errorf("write ref %q: %w", ref, err)
	}
	return nil
}

// Publish writes the local replica's own subtree so other peers can fetch
// from it: the index plus one log blob per document.
func (t *FSTransport) Publish(ctx context.Context, local, project urn.Identifier, entries []DocEntry, logs map[string][]byte) error {
	index, err := EncodeIndex(entries)
	if err != nil {
		return err
	}
	if err := t.Push(ctx, local, project, RefIndex, index); err != nil {
		return err
	}
	for id, blob := range logs {
		if err := t.Push(ctx, local, project, DocRef(id), blob); err != nil {
			return err
		}
	}
	return nil
}
