package cob

import (
	"cmp"
	"strings"
)

// TieBreak deterministically orders two causally-unordered operations.
// It must be a strict total order over distinct operations; every policy
// falls back to comparing operation ids so that no two distinct operations
// ever compare equal.
//
// The tie-break is policy, not law: it is configured per profile and only
// needs to be identical across the replicas of a project for their
// materialized states to converge.
type TieBreak func(a, b Operation) int

// AuthorThenClock is the default policy: lower author peer id first, then
// lower Lamport clock, then lower operation id.
func AuthorThenClock(a, b Operation) int {
	if c := strings.Compare(a.Author.String(), b.Author.String()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Clock, b.Clock); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// ClockThenAuthor orders by Lamport clock first, then author, then id.
func ClockThenAuthor(a, b Operation) int {
	if c := cmp.Compare(a.Clock, b.Clock); c != 0 {
		return c
	}
	if c := strings.Compare(a.Author.String(), b.Author.String()); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// TieBreakByName resolves a configured policy name. Unknown names fall
// back to the default so a hand-edited profile cannot wedge materialization.
func TieBreakByName(name string) TieBreak {
	switch name {
	case "clock-then-author":
		return ClockThenAuthor
	default:
		return AuthorThenClock
	}
}

// orderOperations produces the total materialization order: a topological
// sort consistent with causal parents, breaking ties between concurrently
// ready operations with the configured policy.
//
// The result is a pure function of the operation SET: two replicas holding
// the same operations order them identically no matter how they arrived.
// Parents missing from the set are treated as already satisfied; with
// content-addressed ids and append-only logs a dangling parent can only
// mean the rest of that history has not been fetched yet.
func orderOperations(ops map[string]Operation, tieBreak TieBreak) []Operation {
	indegree := make(map[string]int, len(ops))
	children := make(map[string][]string, len(ops))

	for id, op := range ops {
		for _, parent := range op.Parents {
			if _, known := ops[parent]; known {
				indegree[id]++
				children[parent] = append(children[parent], id)
			}
		}
	}

	var ready []string
	for id := range ops {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	ordered := make([]Operation, 0, len(ops))
	for len(ready) > 0 {
		// Pick the minimal ready operation under the tie-break. The ready
		// set is small; a linear scan keeps this obviously deterministic.
		minIdx := 0
		for i := 1; i < len(ready); i++ {
			if tieBreak(ops[ready[i]], ops[ready[minIdx]]) < 0 {
				minIdx = i
			}
		}
		next := ready[minIdx]
		ready = append(ready[:minIdx], ready[minIdx+1:]...)

		ordered = append(ordered, ops[next])
		for _, child := range children[next] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	// A causal cycle is impossible for honestly content-addressed ids (a
	// parent hash cannot reference its descendant). If a crafted log smuggles
	// one in, the cycle members simply never become ready and are excluded
	// from materialization.
	return ordered
}

// ancestry maps each operation id to the set of its transitive causal
// predecessors within the log. Used for conflict detection: two writes to
// the same field conflict iff neither is an ancestor of the other.
func ancestry(ordered []Operation, ops map[string]Operation) map[string]map[string]bool {
	anc := make(map[string]map[string]bool, len(ordered))
	for _, op := range ordered {
		set := make(map[string]bool)
		for _, parent := range op.Parents {
			if _, known := ops[parent]; !known {
				continue
			}
			set[parent] = true
			for a := range anc[parent] {
				set[a] = true
			}
		}
		anc[op.ID] = set
	}
	return anc
}
