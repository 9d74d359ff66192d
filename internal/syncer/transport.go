package syncer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/grovekit/grove/internal/cob"
	"github.com/grovekit/grove/internal/urn"
)

// RefIndex names the blob listing a peer's documents for a project. Sync
// fetches it first, then the per-document log refs it points at.
const RefIndex = "cobs/index"

// DocRef names the log blob of one document.
func DocRef(docID string) string {
	return "cobs/" + docID
}

// Transport moves blobs between the local replica and one peer. The
// coordinator never interprets addresses; how a peer id maps to a network
// location is entirely the transport's concern.
//
// Implementations must be safe for concurrent use: the coordinator syncs
// peers in parallel.
type Transport interface {
	// Fetch retrieves a ref from the peer's copy of the project.
	Fetch(ctx context.Context, peer, project urn.Identifier, ref string) ([]byte, error)

	// Push offers a ref to the peer. Peers apply their own trust policy to
	// whatever arrives; a push is an offer, not a write.
	Push(ctx context.Context, peer, project urn.Identifier, ref string, blob []byte) error
}

// TransportError reports a failure reaching one peer. It is always scoped
// to a single peer: one unreachable peer never fails a whole sync run.
type TransportError struct {
	Peer urn.Identifier
	Ref  string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: peer %s ref %q: %v", e.Peer.Short(), e.Ref, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DocEntry is one row of the index blob.
type DocEntry struct {
	ID   string   `json:"id"`
	Kind cob.Kind `json:"kind"`
}

// EncodeIndex serializes the document index blob.
func EncodeIndex(entries []DocEntry) ([]byte, error) {
	return json.Marshal(entries)
}

// DecodeIndex parses a fetched index blob.
func DecodeIndex(blob []byte) ([]DocEntry, error) {
	var entries []DocEntry
	if err := json.Unmarshal(blob, &entries); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	for _, e := range entries {
		if e.Kind != cob.KindIssue && e.Kind != cob.KindPatch {
			return nil, fmt.Errorf("decode index: unknown document kind %q", e.Kind)
		}
	}
	return entries, nil
}
