// Package syncer coordinates exchanging document logs with tracked peers.
//
// A sync run fetches each tracked peer's document index and logs, merges
// them under per-document locks, and reports per-peer outcomes. Peer
// failures are isolated: every reachable peer's contributions land even
// when others time out or serve garbage.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/grovekit/grove/internal/cob"
	"github.com/grovekit/grove/internal/store"
	"github.com/grovekit/grove/internal/trust"
	"github.com/grovekit/grove/internal/urn"
)

// State is the lifecycle of one peer's sync within a run.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateMerging  State = "merging"
	StateDone     State = "done"
	StateFailed   State = "failed"
)

// DefaultPeerTimeout bounds the time spent on a single peer.
const DefaultPeerTimeout = 30 * time.Second

// Coordinator runs sync rounds for one project.
type Coordinator struct {
	store       *store.ProjectStore
	graph       *trust.Graph
	transport   Transport
	logger      *slog.Logger
	tokens      TokenGenerator
	peerTimeout time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTokenGenerator overrides the run token source. Tests use
// FixedGenerator for deterministic reports.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(c *Coordinator) {
		if g != nil {
			c.tokens = g
		}
	}
}

// WithPeerTimeout bounds the per-peer fetch+merge time.
func WithPeerTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.peerTimeout = d
		}
	}
}

// New creates a coordinator over a project store, its trust graph, and a
// transport.
func New(ps *store.ProjectStore, graph *trust.Graph, transport Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       ps,
		graph:       graph,
		transport:   transport,
		logger:      slog.Default(),
		tokens:      UUIDv7Generator{},
		peerTimeout: DefaultPeerTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PeerReport is the outcome of syncing one peer.
type PeerReport struct {
	Peer       urn.Identifier
	State      State
	Documents  int
	Accepted   int
	Duplicates int
	Rejected   int
	Err        error
}

// Report is the outcome of one sync run.
type Report struct {
	Token   string
	Project urn.Identifier
	Started time.Time
	Elapsed time.Duration
	Peers   []PeerReport
}

// Failed returns the peer reports that did not complete.
func (r *Report) Failed() []PeerReport {
	var failed []PeerReport
	for _, p := range r.Peers {
		if p.State == StateFailed {
			failed = append(failed, p)
		}
	}
	return failed
}

// Accepted sums the operations newly merged across all peers.
func (r *Report) Accepted() int {
	var n int
	for _, p := range r.Peers {
		n += p.Accepted
	}
	return n
}

// Sync fetches and merges from every tracked peer concurrently. The error
// return covers run-level failures only (listing tracked peers); per-peer
// failures live in the report.
func (c *Coordinator) Sync(ctx context.Context) (*Report, error) {
	report := &Report{
		Token:   c.tokens.Generate(),
		Project: c.store.Project(),
		Started: time.Now(),
	}
	logger := c.logger.With("token", report.Token, "project", report.Project.Short())

	peers, err := c.graph.TrackedPeers(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: tracked peers: %w", err)
	}

	var remotes []urn.Identifier
	for _, peer := range peers {
		if peer != c.graph.Local() {
			remotes = append(remotes, peer)
		}
	}
	logger.Info("sync started", "peers", len(remotes))

	results := make([]PeerReport, len(remotes))
	var wg sync.WaitGroup
	for i, peer := range remotes {
		wg.Add(1)
		go func(i int, peer urn.Identifier) {
			defer wg.Done()
			peerCtx, cancel := context.WithTimeout(ctx, c.peerTimeout)
			defer cancel()
			results[i] = c.syncPeer(peerCtx, logger, peer)
		}(i, peer)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Peer.String() < results[j].Peer.String()
	})
	report.Peers = results
	report.Elapsed = time.Since(report.Started)

	logger.Info("sync finished",
		"accepted", report.Accepted(),
		"failed", len(report.Failed()),
		"elapsed", report.Elapsed)
	return report, nil
}

// syncPeer runs the per-peer state machine: fetching, then merging, ending
// in done or failed. A failure at any step settles the peer as failed with
// whatever was merged so far still counted.
func (c *Coordinator) syncPeer(ctx context.Context, logger *slog.Logger, peer urn.Identifier) PeerReport {
	report := PeerReport{Peer: peer, State: StateFetching}
	logger = logger.With("peer", peer.Short())

	blob, err := c.transport.Fetch(ctx, peer, c.store.Project(), RefIndex)
	if err != nil {
		return c.failPeer(logger, report, &TransportError{Peer: peer, Ref: RefIndex, Err: err})
	}
	entries, err := DecodeIndex(blob)
	if err != nil {
		return c.failPeer(logger, report, err)
	}
	report.Documents = len(entries)

	for _, entry := range entries {
		if err := c.syncDocument(ctx, peer, entry, &report); err != nil {
			return c.failPeer(logger, report, err)
		}
	}

	report.State = StateDone
	logger.Debug("peer synced",
		"documents", report.Documents,
		"accepted", report.Accepted,
		"duplicates", report.Duplicates,
		"rejected", report.Rejected)
	return report
}

func (c *Coordinator) failPeer(logger *slog.Logger, report PeerReport, err error) PeerReport {
	report.State = StateFailed
	report.Err = err
	logger.Warn("peer sync failed", "state", StateFailed, "error", err)
	return report
}

// syncDocument fetches one document's log from the peer and merges it
// under the document lock.
func (c *Coordinator) syncDocument(ctx context.Context, peer urn.Identifier, entry DocEntry, report *PeerReport) error {
	ref := DocRef(entry.ID)
	blob, err := c.transport.Fetch(ctx, peer, c.store.Project(), ref)
	if err != nil {
		return &TransportError{Peer: peer, Ref: ref, Err: err}
	}

	ops, rejected, err := cob.DecodeLog(blob)
	if err != nil {
		return fmt.Errorf("peer %s document %s: %w", peer.Short(), entry.ID, err)
	}
	report.Rejected += len(rejected)

	ops, dropped := c.dropBlocked(ctx, ops)
	report.Rejected += dropped

	report.State = StateMerging
	release, err := c.store.LockDocument(ctx, entry.ID)
	if err != nil {
		return fmt.Errorf("lock document %s: %w", entry.ID, err)
	}
	defer release()

	doc, err := c.store.LoadDocument(ctx, entry.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// First sight of this document; its create operation must be in the
		// fetched log.
		doc, result, err := cob.Load(c.store.Project(), entry.ID, entry.Kind, ops,
			cob.WithTieBreak(c.store.TieBreak()))
		if err != nil {
			return fmt.Errorf("peer %s document %s: %w", peer.Short(), entry.ID, err)
		}
		report.Accepted += doc.Len()
		report.Duplicates += result.Duplicates
		report.Rejected += len(result.Rejected)
		return c.store.AppendOperations(ctx, entry.ID, entry.Kind, doc.Log())
	case err != nil:
		return err
	}

	result := doc.Merge(ops)
	report.Accepted += len(result.Accepted)
	report.Duplicates += result.Duplicates
	report.Rejected += len(result.Rejected)
	if len(result.Accepted) == 0 {
		return nil
	}
	return c.store.AppendOperations(ctx, entry.ID, entry.Kind, result.Accepted)
}

// dropBlocked filters out operations authored by explicitly blocked peers.
// Unknown authors pass: a tracked peer's log legitimately carries history
// from peers this replica has never met.
func (c *Coordinator) dropBlocked(ctx context.Context, ops []cob.Operation) ([]cob.Operation, int) {
	kept := ops[:0]
	dropped := 0
	for _, op := range ops {
		blocked, err := c.graph.IsBlocked(ctx, op.Author)
		if err == nil && blocked {
			dropped++
			continue
		}
		kept = append(kept, op)
	}
	return kept, dropped
}

// Announce pushes a document's canonical log, then the refreshed index, to
// every tracked peer. Per-peer failures are reported, not fatal.
func (c *Coordinator) Announce(ctx context.Context, docID string) (*Report, error) {
	report := &Report{
		Token:   c.tokens.Generate(),
		Project: c.store.Project(),
		Started: time.Now(),
	}
	logger := c.logger.With("token", report.Token, "project", report.Project.Short())

	doc, err := c.store.LoadDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("announce: %w", err)
	}
	logBlob, err := cob.EncodeLog(doc.Log())
	if err != nil {
		return nil, fmt.Errorf("announce: %w", err)
	}
	indexBlob, err := c.encodeLocalIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("announce: %w", err)
	}

	peers, err := c.graph.TrackedPeers(ctx)
	if err != nil {
		return nil, fmt.Errorf("announce: tracked peers: %w", err)
	}

	for _, peer := range peers {
		if peer == c.graph.Local() {
			continue
		}
		pr := PeerReport{Peer: peer, State: StateDone, Documents: 1}
		if err := c.pushTo(ctx, peer, docID, logBlob, indexBlob); err != nil {
			pr.State = StateFailed
			pr.Err = err
			logger.Warn("announce failed", "peer", peer.Short(), "error", err)
		}
		report.Peers = append(report.Peers, pr)
	}

	report.Elapsed = time.Since(report.Started)
	logger.Info("announce finished", "document", docID, "failed", len(report.Failed()))
	return report, nil
}

func (c *Coordinator) pushTo(ctx context.Context, peer urn.Identifier, docID string, logBlob, indexBlob []byte) error {
	peerCtx, cancel := context.WithTimeout(ctx, c.peerTimeout)
	defer cancel()

	ref := DocRef(docID)
	if err := c.transport.Push(peerCtx, peer, c.store.Project(), ref, logBlob); err != nil {
		return &TransportError{Peer: peer, Ref: ref, Err: err}
	}
	if err := c.transport.Push(peerCtx, peer, c.store.Project(), RefIndex, indexBlob); err != nil {
		return &TransportError{Peer: peer, Ref: RefIndex, Err: err}
	}
	return nil
}

// encodeLocalIndex builds the index blob for the local replica's documents.
func (c *Coordinator) encodeLocalIndex(ctx context.Context) ([]byte, error) {
	var entries []DocEntry
	for _, kind := range []cob.Kind{cob.KindIssue, cob.KindPatch} {
		ids, err := c.store.ListDocuments(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			entries = append(entries, DocEntry{ID: id, Kind: kind})
		}
	}
	return EncodeIndex(entries)
}
