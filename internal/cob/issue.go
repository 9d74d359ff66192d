package cob

import (
	"fmt"

	"github.com/grovekit/grove/internal/urn"
)

// IssueStatus is the lifecycle state of an issue.
type IssueStatus string

const (
	IssueOpen   IssueStatus = "open"
	IssueClosed IssueStatus = "closed"
)

// Issue is the read-only projection of an issue document. It is
// regenerated from the operation log on every merge; there is no mutation
// path through the record itself.
type Issue struct {
	ID          string
	Project     urn.Identifier
	Author      urn.Identifier
	Title       string
	Status      IssueStatus
	Description string
	Labels      []string
	Comments    []Comment

	// Conflicts holds the markers for causally-unordered concurrent edits
	// detected during materialization.
	Conflicts []Conflict
}

// ProjectIssue materializes an issue document into its record projection.
// Pure: the same document (operation set and tie-break policy) always
// yields the same record.
func ProjectIssue(d *Document) (*Issue, error) {
	if d.Kind != KindIssue {
		return nil, fmt.Errorf("project issue %s: %w", d.ID, ErrWrongKind)
	}

	ordered := orderOperations(d.ops, d.tieBreak)
	anc := ancestry(ordered, d.ops)

	issue := &Issue{
		ID:      d.ID,
		Project: d.Project,
		Status:  IssueOpen,
	}

	var (
		title  scalar
		status scalar
		labels = labelSet{}
	)

	for _, op := range ordered {
		switch op.Kind {
		case OpCreate:
			issue.Author = op.Author
			issue.Description = op.Payload.GetString("description")
			title.write("title", op, op.Payload.GetString("title"), anc, &issue.Conflicts)
			status.write("status", op, string(IssueOpen), anc, &issue.Conflicts)
			labels.apply(op)
		case OpEditTitle:
			title.write("title", op, op.Payload.GetString("title"), anc, &issue.Conflicts)
		case OpEditStatus:
			status.write("status", op, op.Payload.GetString("status"), anc, &issue.Conflicts)
		case OpComment:
			issue.Comments = append(issue.Comments, commentFromOp(op))
		case OpLabel:
			labels.apply(op)
		}
		// Operation kinds that passed validation but mean nothing to an
		// issue cannot occur; anything else was rejected at merge time.
	}

	issue.Title = title.value
	issue.Status = IssueStatus(status.value)
	issue.Labels = labels.sorted()
	return issue, nil
}
