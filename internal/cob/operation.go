package cob

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/grovekit/grove/internal/canon"
	"github.com/grovekit/grove/internal/urn"
)

// DomainOperation is the hash domain for operation ids.
const DomainOperation = "grove/op/v1"

// Kind distinguishes the document types grove replicates.
type Kind string

const (
	KindIssue Kind = "issue"
	KindPatch Kind = "patch"
)

// OpKind identifies what an operation does to its document.
type OpKind string

const (
	// OpCreate is the root operation of every document. The document id is
	// the id of its create operation.
	OpCreate OpKind = "create"

	// OpEditTitle replaces the title (last-writer-wins scalar).
	OpEditTitle OpKind = "edit.title"

	// OpEditStatus replaces the status (last-writer-wins scalar).
	OpEditStatus OpKind = "edit.status"

	// OpComment appends to the discussion thread.
	OpComment OpKind = "comment"

	// OpLabel adds and removes labels.
	OpLabel OpKind = "label"

	// OpRevision appends a new patch revision.
	OpRevision OpKind = "revision"

	// OpReview records a review verdict on a patch revision.
	OpReview OpKind = "review"

	// OpMerge records that a patch revision was merged somewhere.
	OpMerge OpKind = "merge"
)

// Operation is an atomic, immutable CRDT edit.
//
// The id is content-derived: hashing the canonical encoding of the other
// five fields. Operations are never mutated or deleted once created; the
// materialized view is the only place an operation can be superseded.
type Operation struct {
	ID      string
	Author  urn.Identifier
	Clock   int64
	Parents []string
	Kind    OpKind
	Payload canon.Object
}

// NewOperation builds an operation and computes its content-addressed id.
// Parents are sorted so that logically identical operations hash
// identically regardless of how the caller assembled the slice.
func NewOperation(author urn.Identifier, clock int64, parents []string, kind OpKind, payload canon.Object) (Operation, error) {
	if author.IsZero() {
		return Operation{}, fmt.Errorf("new operation: author is required")
	}
	if author.Kind() != urn.KindPeer {
		return Operation{}, fmt.Errorf("new operation: author must be a peer identifier, got %s", author.Kind())
	}
	if payload == nil {
		payload = canon.Object{}
	}

	sorted := append([]string(nil), parents...)
	sort.Strings(sorted)

	op := Operation{
		Author:  author,
		Clock:   clock,
		Parents: sorted,
		Kind:    kind,
		Payload: payload,
	}

	id, err := op.computeID()
	if err != nil {
		return Operation{}, err
	}
	op.ID = id
	return op, nil
}

// computeID hashes the operation's canonical encoding under DomainOperation.
func (op Operation) computeID() (string, error) {
	parents := make(canon.Array, len(op.Parents))
	for i, p := range op.Parents {
		parents[i] = canon.String(p)
	}

	body := canon.Object{
		"author":  canon.String(op.Author.String()),
		"clock":   canon.Int(op.Clock),
		"parents": parents,
		"kind":    canon.String(string(op.Kind)),
		"payload": op.Payload,
	}

	id, err := canon.HashValue(DomainOperation, body)
	if err != nil {
		return "", fmt.Errorf("operation id: %w", err)
	}
	return id, nil
}

// Verify recomputes the content-addressed id and checks it against op.ID.
// Fetched operations whose id does not match their content are malformed.
func (op Operation) Verify() error {
	id, err := op.computeID()
	if err != nil {
		return err
	}
	if id != op.ID {
		return fmt.Errorf("operation id mismatch: have %s, computed %s", op.ID, id)
	}
	return nil
}

// wireOperation is the transport encoding of an operation. Kept separate
// from Operation so the wire format stays stable under refactors.
type wireOperation struct {
	ID      string       `json:"id"`
	Author  string       `json:"author"`
	Clock   int64        `json:"clock"`
	Parents []string     `json:"parents"`
	Kind    string       `json:"kind"`
	Payload canon.Object `json:"payload"`
}

// EncodeLog serializes operations as a JSON log fragment for transport or
// on-disk storage. The encoding is deterministic (canonical payloads,
// preserved operation order).
func EncodeLog(ops []Operation) ([]byte, error) {
	wire := make([]wireOperation, len(ops))
	for i, op := range ops {
		wire[i] = wireOperation{
			ID:      op.ID,
			Author:  op.Author.String(),
			Clock:   op.Clock,
			Parents: op.Parents,
			Kind:    string(op.Kind),
			Payload: op.Payload,
		}
	}
	return json.Marshal(wire)
}

// DecodeLog parses a fetched log fragment. Individually malformed entries
// (bad author urn, id mismatch, undecodable payload) are returned as
// rejections, never as a fragment-level failure: one bad operation must not
// discard the rest of a peer's log. Only an unparseable envelope fails.
func DecodeLog(blob []byte) ([]Operation, []*MalformedOperationError, error) {
	var wire []json.RawMessage
	if err := json.Unmarshal(blob, &wire); err != nil {
		return nil, nil, fmt.Errorf("decode log: %w", err)
	}

	var (
		ops      []Operation
		rejected []*MalformedOperationError
	)
	for i, raw := range wire {
		op, err := decodeOperation(raw)
		if err != nil {
			rejected = append(rejected, newMalformed(op.ID, fmt.Sprintf("entry %d", i), err))
			continue
		}
		ops = append(ops, op)
	}
	return ops, rejected, nil
}

func decodeOperation(raw []byte) (Operation, error) {
	var w wireOperation
	if err := json.Unmarshal(raw, &w); err != nil {
		return Operation{}, err
	}

	author, err := urn.Parse(w.Author)
	if err != nil {
		return Operation{ID: w.ID}, fmt.Errorf("author: %w", err)
	}
	if author.Kind() != urn.KindPeer {
		return Operation{ID: w.ID}, fmt.Errorf("author %s is not a peer identifier", w.Author)
	}

	op := Operation{
		ID:      w.ID,
		Author:  author,
		Clock:   w.Clock,
		Parents: w.Parents,
		Kind:    OpKind(w.Kind),
		Payload: w.Payload,
	}
	if op.Payload == nil {
		op.Payload = canon.Object{}
	}
	if err := op.Verify(); err != nil {
		return op, err
	}
	return op, nil
}
