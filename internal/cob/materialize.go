package cob

import (
	"sort"

	"github.com/grovekit/grove/internal/canon"
	"github.com/grovekit/grove/internal/urn"
)

// Conflict is an observable marker recording that two causally-unordered
// operations wrote the same scalar field. The deterministic tie-break
// decides which value the materialized state carries, but the losing write
// is never silently dropped: it is surfaced here for the record model and
// its callers to render.
type Conflict struct {
	// Field names the contested scalar ("title", "status").
	Field string

	// Winner is the write whose value the materialized state holds.
	Winner ConflictSide

	// Loser is the concurrent write that was superseded.
	Loser ConflictSide
}

// ConflictSide describes one side of a conflicting write.
type ConflictSide struct {
	Op     string
	Author urn.Identifier
	Value  string
}

// scalar tracks a last-writer-wins field during materialization, detecting
// concurrent writes via the causal ancestry of the log.
type scalar struct {
	value string
	op    *Operation
}

// write applies a new value under LWW order. If the previous writer is not
// a causal ancestor of the new one, the two writes were concurrent and a
// conflict marker is recorded.
func (s *scalar) write(field string, op Operation, value string, anc map[string]map[string]bool, conflicts *[]Conflict) {
	if s.op != nil && !anc[op.ID][s.op.ID] {
		*conflicts = append(*conflicts, Conflict{
			Field:  field,
			Winner: ConflictSide{Op: op.ID, Author: op.Author, Value: value},
			Loser:  ConflictSide{Op: s.op.ID, Author: s.op.Author, Value: s.value},
		})
	}
	prev := op
	s.op = &prev
	s.value = value
}

// labelSet tracks label membership (observed add/remove, no conflict
// semantics: labels are a grow-only map where the latest add/remove per
// label wins by materialization order).
type labelSet map[string]bool

func (ls labelSet) apply(op Operation) {
	for _, v := range op.Payload.GetArray("labels") {
		if s, ok := v.(canon.String); ok {
			ls[string(s)] = true
		}
	}
	for _, v := range op.Payload.GetArray("add") {
		if s, ok := v.(canon.String); ok {
			ls[string(s)] = true
		}
	}
	for _, v := range op.Payload.GetArray("remove") {
		if s, ok := v.(canon.String); ok {
			delete(ls, string(s))
		}
	}
}

func (ls labelSet) sorted() []string {
	out := make([]string, 0, len(ls))
	for l, present := range ls {
		if present {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// Comment is one entry of a discussion thread. Threads are append-only:
// merge can only grow them, ordered by the materialization order.
type Comment struct {
	ID      string
	Author  urn.Identifier
	Body    string
	ReplyTo string
	Clock   int64
}

func commentFromOp(op Operation) Comment {
	return Comment{
		ID:      op.ID,
		Author:  op.Author,
		Body:    op.Payload.GetString("body"),
		ReplyTo: op.Payload.GetString("reply_to"),
		Clock:   op.Clock,
	}
}
