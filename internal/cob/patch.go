package cob

import (
	"fmt"

	"github.com/grovekit/grove/internal/urn"
)

// PatchStatus is the lifecycle state of a patch.
//
// PatchMerged is derived, never written directly: a patch is merged once
// its log contains at least one merge operation, mirroring how merges
// supersede whatever the status scalar says.
type PatchStatus string

const (
	PatchOpen   PatchStatus = "open"
	PatchDraft  PatchStatus = "draft"
	PatchClosed PatchStatus = "closed"
	PatchMerged PatchStatus = "merged"
)

// Verdict is a patch review outcome.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictReject Verdict = "reject"
	VerdictPass   Verdict = "pass"
)

// Revision is one proposed version of a patch's change set. The initial
// change set is revision 0, carried by the create operation.
type Revision struct {
	ID          string
	Version     int64
	Author      urn.Identifier
	Commit      string
	Description string
	Discussion  []Comment
	Reviews     []Review
}

// Review is a verdict on a specific revision.
type Review struct {
	ID       string
	Author   urn.Identifier
	Revision int64
	Verdict  Verdict
	Comment  string
}

// MergeRecord notes that a peer merged a revision into their copy of the
// project.
type MergeRecord struct {
	ID       string
	Author   urn.Identifier
	Revision int64
	Commit   string
}

// Patch is the read-only projection of a patch document: a change set a
// contributor wants maintainers to merge into the project's target branch.
type Patch struct {
	ID        string
	Project   urn.Identifier
	Author    urn.Identifier
	Title     string
	Status    PatchStatus
	Target    string
	Labels    []string
	Revisions []Revision
	Merges    []MergeRecord
	Conflicts []Conflict
}

// Head returns the commit of the latest revision.
func (p *Patch) Head() string {
	if len(p.Revisions) == 0 {
		return ""
	}
	return p.Revisions[len(p.Revisions)-1].Commit
}

// ProjectPatch materializes a patch document into its record projection.
// Pure, like ProjectIssue.
func ProjectPatch(d *Document) (*Patch, error) {
	if d.Kind != KindPatch {
		return nil, fmt.Errorf("project patch %s: %w", d.ID, ErrWrongKind)
	}

	ordered := orderOperations(d.ops, d.tieBreak)
	anc := ancestry(ordered, d.ops)

	patch := &Patch{
		ID:      d.ID,
		Project: d.Project,
		Status:  PatchOpen,
	}

	var (
		title  scalar
		status scalar
		labels = labelSet{}
	)

	for _, op := range ordered {
		switch op.Kind {
		case OpCreate:
			patch.Author = op.Author
			patch.Target = op.Payload.GetString("target")
			title.write("title", op, op.Payload.GetString("title"), anc, &patch.Conflicts)
			status.write("status", op, string(PatchOpen), anc, &patch.Conflicts)
			labels.apply(op)
			patch.Revisions = append(patch.Revisions, Revision{
				ID:          op.ID,
				Version:     0,
				Author:      op.Author,
				Commit:      op.Payload.GetString("commit"),
				Description: op.Payload.GetString("description"),
			})
		case OpEditTitle:
			title.write("title", op, op.Payload.GetString("title"), anc, &patch.Conflicts)
		case OpEditStatus:
			status.write("status", op, op.Payload.GetString("status"), anc, &patch.Conflicts)
		case OpRevision:
			patch.Revisions = append(patch.Revisions, Revision{
				ID:          op.ID,
				Version:     op.Payload.GetInt("version"),
				Author:      op.Author,
				Commit:      op.Payload.GetString("commit"),
				Description: op.Payload.GetString("description"),
			})
		case OpComment:
			rev := revisionAt(patch, op.Payload.GetInt("revision"), op.Payload["revision"] != nil)
			rev.Discussion = append(rev.Discussion, commentFromOp(op))
		case OpReview:
			rev := revisionAt(patch, op.Payload.GetInt("revision"), true)
			rev.Reviews = append(rev.Reviews, Review{
				ID:       op.ID,
				Author:   op.Author,
				Revision: rev.Version,
				Verdict:  Verdict(op.Payload.GetString("verdict")),
				Comment:  op.Payload.GetString("comment"),
			})
		case OpMerge:
			patch.Merges = append(patch.Merges, MergeRecord{
				ID:       op.ID,
				Author:   op.Author,
				Revision: op.Payload.GetInt("revision"),
				Commit:   op.Payload.GetString("commit"),
			})
		case OpLabel:
			labels.apply(op)
		}
	}

	patch.Title = title.value
	patch.Status = PatchStatus(status.value)
	if len(patch.Merges) > 0 {
		patch.Status = PatchMerged
	}
	patch.Labels = labels.sorted()
	return patch, nil
}

// revisionAt locates the revision with the given version for attaching
// discussion or reviews. Comments without an explicit revision, and any
// reference to a version this replica has not seen yet, attach to the
// latest known revision rather than being dropped.
func revisionAt(p *Patch, version int64, explicit bool) *Revision {
	if len(p.Revisions) == 0 {
		// Cannot happen for validated logs: the create operation always
		// precedes everything else in causal order.
		p.Revisions = append(p.Revisions, Revision{})
	}
	if explicit {
		for i := range p.Revisions {
			if p.Revisions[i].Version == version {
				return &p.Revisions[i]
			}
		}
	}
	return &p.Revisions[len(p.Revisions)-1]
}
