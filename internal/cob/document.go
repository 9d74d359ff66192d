package cob

import (
	"fmt"
	"sort"

	"github.com/grovekit/grove/internal/canon"
	"github.com/grovekit/grove/internal/urn"
)

// Document is a CRDT-backed collaborative record: an append-only set of
// operations plus the configuration needed to materialize them.
//
// Documents are mutated only by Merge; there is no other write path.
// History is never truncated. The zero value is unusable; construct with
// New or Load.
type Document struct {
	Project urn.Identifier
	ID      string
	Kind    Kind

	tieBreak TieBreak
	ops      map[string]Operation
	clock    *LamportClock
}

// Option configures a document.
type Option func(*Document)

// WithTieBreak overrides the default concurrent-edit ordering policy.
func WithTieBreak(tb TieBreak) Option {
	return func(d *Document) {
		if tb != nil {
			d.tieBreak = tb
		}
	}
}

// New creates a document from its root create operation. The document id
// is the create operation's content-addressed id.
func New(project urn.Identifier, kind Kind, create Operation, opts ...Option) (*Document, error) {
	if project.Kind() != urn.KindProject {
		return nil, fmt.Errorf("new document: %s is not a project identifier", project)
	}
	if create.Kind != OpCreate {
		return nil, fmt.Errorf("new document: root operation must be %q, got %q", OpCreate, create.Kind)
	}
	if err := create.Verify(); err != nil {
		return nil, fmt.Errorf("new document: %w", err)
	}
	if err := ValidatePayload(kind, OpCreate, create.Payload); err != nil {
		return nil, fmt.Errorf("new document: %w", err)
	}

	d := &Document{
		Project:  project,
		ID:       create.ID,
		Kind:     kind,
		tieBreak: AuthorThenClock,
		ops:      map[string]Operation{create.ID: create},
		clock:    NewLamportClockAt(create.Clock),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Load reconstructs a document from a persisted operation log. Malformed
// entries are reported in the merge result, exactly as during a remote
// merge; the create operation itself must be present and valid.
func Load(project urn.Identifier, id string, kind Kind, ops []Operation, opts ...Option) (*Document, *MergeResult, error) {
	var create *Operation
	for i := range ops {
		if ops[i].ID == id {
			create = &ops[i]
			break
		}
	}
	if create == nil {
		return nil, nil, fmt.Errorf("load document %s: create operation missing from log", id)
	}

	d, err := New(project, kind, *create, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("load document %s: %w", id, err)
	}

	result := d.Merge(ops)
	return d, result, nil
}

// MergeResult reports the outcome of merging a log fragment.
type MergeResult struct {
	// Accepted holds the operations newly added to the document, in the
	// order they were accepted. Callers persist exactly these.
	Accepted []Operation

	// Duplicates counts operations skipped because they were already
	// present (dedup by content-addressed id).
	Duplicates int

	// Rejected holds the individually malformed operations. Rejection
	// never aborts the rest of the merge.
	Rejected []*MalformedOperationError
}

// Merge folds a log fragment into the document: set union, deduplicated by
// operation id, with per-operation validation. Merge is commutative,
// associative, and idempotent - merging the same fragment twice yields
// Duplicates on the second pass and no state change.
func (d *Document) Merge(ops []Operation) *MergeResult {
	result := &MergeResult{}

	for _, op := range ops {
		if _, seen := d.ops[op.ID]; seen {
			result.Duplicates++
			continue
		}
		if err := op.Verify(); err != nil {
			result.Rejected = append(result.Rejected, newMalformed(op.ID, "merge", err))
			continue
		}
		if err := validateForDocument(d.ID, d.Kind, op); err != nil {
			result.Rejected = append(result.Rejected, newMalformed(op.ID, "merge", err))
			continue
		}

		d.ops[op.ID] = op
		d.clock.Observe(op.Clock)
		result.Accepted = append(result.Accepted, op)
	}

	return result
}

// Edit builds (but does not apply) a new local operation: stamped with the
// next Lamport clock and causally chained onto the current heads. The
// caller applies it with Merge, keeping a single mutation path.
func (d *Document) Edit(author urn.Identifier, kind OpKind, payload canon.Object) (Operation, error) {
	if kind == OpCreate {
		return Operation{}, fmt.Errorf("edit: document already has a create operation")
	}
	return NewOperation(author, d.NextClock(), d.Heads(), kind, payload)
}

// Len returns the number of operations in the log.
func (d *Document) Len() int { return len(d.ops) }

// Contains reports whether the log already holds the given operation id.
func (d *Document) Contains(opID string) bool {
	_, ok := d.ops[opID]
	return ok
}

// Heads returns the ids of operations no other operation in the log names
// as a parent, sorted. New local edits use the heads as their causal
// predecessor set.
func (d *Document) Heads() []string {
	hasChild := make(map[string]bool, len(d.ops))
	for _, op := range d.ops {
		for _, parent := range op.Parents {
			hasChild[parent] = true
		}
	}

	var heads []string
	for id := range d.ops {
		if !hasChild[id] {
			heads = append(heads, id)
		}
	}
	sort.Strings(heads)
	return heads
}

// NextClock returns a Lamport timestamp later than every operation in the
// log. The document's clock observes each accepted merge, so this holds
// for remote operations too.
func (d *Document) NextClock() int64 {
	return d.clock.Current() + 1
}

// Log returns the full operation log in materialization order. The result
// is deterministic for a given operation set, which makes it the canonical
// form for pushing to peers.
func (d *Document) Log() []Operation {
	return orderOperations(d.ops, d.tieBreak)
}
