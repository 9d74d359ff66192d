package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/grovekit/grove/internal/canon"
	"github.com/grovekit/grove/internal/cob"
	"github.com/grovekit/grove/internal/urn"
)

// ProjectStore provides access to one project's documents and tracking
// table.
type ProjectStore struct {
	project  urn.Identifier
	db       *sql.DB
	tieBreak cob.TieBreak
	locks    *lockTable

	// cache holds loaded documents, invalidated on every append. Mutating
	// flows (append after merge) must run under the document lock.
	mu    sync.Mutex
	cache map[string]*cob.Document
}

// Project returns the project this store belongs to.
func (p *ProjectStore) Project() urn.Identifier { return p.project }

// TieBreak returns the ordering policy documents are materialized with.
func (p *ProjectStore) TieBreak() cob.TieBreak { return p.tieBreak }

// LoadDocument loads a document with its full operation log.
// Returns ErrNotFound if the document does not exist. Malformed rows in a
// persisted log are skipped the same way a merge would skip them.
func (p *ProjectStore) LoadDocument(ctx context.Context, docID string) (*cob.Document, error) {
	p.mu.Lock()
	if d, ok := p.cache[docID]; ok {
		p.mu.Unlock()
		return d, nil
	}
	p.mu.Unlock()

	var kind string
	err := p.db.QueryRowContext(ctx, `SELECT kind FROM documents WHERE id = ?`, docID).Scan(&kind)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("load document %s: %w", docID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", docID, err)
	}

	ops, err := p.readOperations(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", docID, err)
	}

	doc, _, err := cob.Load(p.project, docID, cob.Kind(kind), ops, cob.WithTieBreak(p.tieBreak))
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[docID] = doc
	p.mu.Unlock()
	return doc, nil
}

// AppendOperations persists new operations for a document, creating the
// document row on first append. Append-only: nothing is ever rewritten,
// and duplicate operation ids are silently skipped so persistence is
// idempotent. Any cached document state is invalidated, on failure as
// well as on commit.
func (p *ProjectStore) AppendOperations(ctx context.Context, docID string, kind cob.Kind, ops []cob.Operation) error {
	// Callers merge into the loaded document before persisting, so after a
	// failed append the cached document is ahead of disk. Drop it on every
	// exit path; the next load rebuilds it from persisted rows.
	defer func() {
		p.mu.Lock()
		delete(p.cache, docID)
		p.mu.Unlock()
	}()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append operations: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, kind) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, docID, string(kind))
	if err != nil {
		return fmt.Errorf("append operations: upsert document: %w", err)
	}

	for _, op := range ops {
		parents, payload, err := marshalOperation(op)
		if err != nil {
			return fmt.Errorf("append operations: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO operations (id, doc_id, author, clock, parents, kind, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, op.ID, docID, op.Author.String(), op.Clock, parents, string(op.Kind), payload)
		if err != nil {
			return fmt.Errorf("append operations: insert %s: %w", op.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append operations: %w", err)
	}
	return nil
}

// ListDocuments returns the ids of this project's documents of the given
// kind, in creation order.
func (p *ProjectStore) ListDocuments(ctx context.Context, kind cob.Kind) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id FROM documents
		WHERE kind = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LockDocument acquires the exclusive per-document lock, blocking until it
// is free or ctx is done. The returned release function must be called on
// every exit path.
func (p *ProjectStore) LockDocument(ctx context.Context, docID string) (func(), error) {
	return p.locks.acquire(ctx, p.lockKey(docID))
}

// TryLockDocument acquires the per-document lock without blocking,
// returning ErrLockHeld when a concurrent merge owns the document.
func (p *ProjectStore) TryLockDocument(docID string) (func(), error) {
	return p.locks.tryAcquire(p.lockKey(docID))
}

func (p *ProjectStore) lockKey(docID string) string {
	return p.project.Digest() + "/" + docID
}

// readOperations returns a document's log in deterministic order.
func (p *ProjectStore) readOperations(ctx context.Context, docID string) ([]cob.Operation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, author, clock, parents, kind, payload
		FROM operations
		WHERE doc_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("read operations: %w", err)
	}
	defer rows.Close()

	var ops []cob.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// Tracking persistence. The trust package owns the policy semantics; the
// store only records rows.

// TrackingEntry is one row of the tracking table.
type TrackingEntry struct {
	Peer      urn.Identifier
	Policy    string
	Reason    string
	UpdatedAt time.Time
}

// UpsertTracking inserts or updates the tracking entry for a peer.
func (p *ProjectStore) UpsertTracking(ctx context.Context, peer urn.Identifier, policy, reason string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tracking (peer, policy, reason, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(peer) DO UPDATE SET policy = excluded.policy,
			reason = excluded.reason, updated_at = excluded.updated_at
	`, peer.String(), policy, reason, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert tracking: %w", err)
	}
	return nil
}

// DeleteTracking removes a peer's tracking entry.
// Returns ErrNotFound when no entry exists.
func (p *ProjectStore) DeleteTracking(ctx context.Context, peer urn.Identifier) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM tracking WHERE peer = ?`, peer.String())
	if err != nil {
		return fmt.Errorf("delete tracking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete tracking: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete tracking %s: %w", peer, ErrNotFound)
	}
	return nil
}

// GetTracking returns the tracking entry for a peer, or ErrNotFound.
func (p *ProjectStore) GetTracking(ctx context.Context, peer urn.Identifier) (TrackingEntry, error) {
	var (
		entry     TrackingEntry
		peerStr   string
		updatedAt int64
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT peer, policy, reason, updated_at FROM tracking WHERE peer = ?
	`, peer.String()).Scan(&peerStr, &entry.Policy, &entry.Reason, &updatedAt)
	if err == sql.ErrNoRows {
		return TrackingEntry{}, fmt.Errorf("tracking %s: %w", peer, ErrNotFound)
	}
	if err != nil {
		return TrackingEntry{}, fmt.Errorf("get tracking: %w", err)
	}
	entry.Peer = peer
	entry.UpdatedAt = time.Unix(updatedAt, 0)
	return entry, nil
}

// ListTracking returns every tracking entry, ordered by peer id for
// deterministic iteration.
func (p *ProjectStore) ListTracking(ctx context.Context) ([]TrackingEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT peer, policy, reason, updated_at FROM tracking
		ORDER BY peer COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tracking: %w", err)
	}
	defer rows.Close()

	var entries []TrackingEntry
	for rows.Next() {
		var (
			entry     TrackingEntry
			peerStr   string
			updatedAt int64
		)
		if err := rows.Scan(&peerStr, &entry.Policy, &entry.Reason, &updatedAt); err != nil {
			return nil, fmt.Errorf("list tracking: %w", err)
		}
		peer, err := urn.Parse(peerStr)
		if err != nil {
			return nil, fmt.Errorf("list tracking: corrupt peer %q: %w", peerStr, err)
		}
		entry.Peer = peer
		entry.UpdatedAt = time.Unix(updatedAt, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// marshalOperation serializes an operation's parents and payload to
// canonical JSON TEXT for storage.
func marshalOperation(op cob.Operation) (parents, payload string, err error) {
	parentArr := make(canon.Array, len(op.Parents))
	for i, parent := range op.Parents {
		parentArr[i] = canon.String(parent)
	}
	parentBytes, err := canon.MarshalCanonical(parentArr)
	if err != nil {
		return "", "", fmt.Errorf("marshal parents: %w", err)
	}

	payloadBytes, err := canon.MarshalCanonical(op.Payload)
	if err != nil {
		return "", "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(parentBytes), string(payloadBytes), nil
}

// scanOperation reads one operation row.
func scanOperation(rows *sql.Rows) (cob.Operation, error) {
	var (
		op         cob.Operation
		author     string
		parentsRaw string
		kind       string
		payloadRaw string
	)
	if err := rows.Scan(&op.ID, &author, &op.Clock, &parentsRaw, &kind, &payloadRaw); err != nil {
		return cob.Operation{}, fmt.Errorf("scan operation: %w", err)
	}

	authorID, err := urn.Parse(author)
	if err != nil {
		return cob.Operation{}, fmt.Errorf("scan operation %s: author: %w", op.ID, err)
	}
	op.Author = authorID
	op.Kind = cob.OpKind(kind)

	if err := json.Unmarshal([]byte(parentsRaw), &op.Parents); err != nil {
		return cob.Operation{}, fmt.Errorf("scan operation %s: parents: %w", op.ID, err)
	}
	payload, err := canon.DecodeObject([]byte(payloadRaw))
	if err != nil {
		return cob.Operation{}, fmt.Errorf("scan operation %s: payload: %w", op.ID, err)
	}
	op.Payload = payload
	return op, nil
}
