package cob

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/canon"
)

// renderIssue writes the record without operation ids so the snapshot is
// stable and readable.
func renderIssue(issue *Issue) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "kind: issue\n")
	fmt.Fprintf(&b, "project: %s\n", issue.Project)
	fmt.Fprintf(&b, "author: %s\n", issue.Author)
	fmt.Fprintf(&b, "title: %s\n", issue.Title)
	fmt.Fprintf(&b, "status: %s\n", issue.Status)
	fmt.Fprintf(&b, "description: %s\n", issue.Description)
	fmt.Fprintf(&b, "labels: %s\n", joinOrNone(issue.Labels))
	fmt.Fprintf(&b, "comments: %d\n", len(issue.Comments))
	for _, c := range issue.Comments {
		fmt.Fprintf(&b, "- author: %s\n", c.Author)
		fmt.Fprintf(&b, "  clock: %d\n", c.Clock)
		fmt.Fprintf(&b, "  body: %s\n", c.Body)
	}
	fmt.Fprintf(&b, "conflicts: %d\n", len(issue.Conflicts))
	return []byte(b.String())
}

func renderPatch(p *Patch) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "kind: patch\n")
	fmt.Fprintf(&b, "project: %s\n", p.Project)
	fmt.Fprintf(&b, "author: %s\n", p.Author)
	fmt.Fprintf(&b, "title: %s\n", p.Title)
	fmt.Fprintf(&b, "status: %s\n", p.Status)
	fmt.Fprintf(&b, "target: %s\n", p.Target)
	fmt.Fprintf(&b, "labels: %s\n", joinOrNone(p.Labels))
	fmt.Fprintf(&b, "revisions: %d\n", len(p.Revisions))
	for _, r := range p.Revisions {
		fmt.Fprintf(&b, "- version: %d\n", r.Version)
		fmt.Fprintf(&b, "  author: %s\n", r.Author)
		fmt.Fprintf(&b, "  commit: %s\n", r.Commit)
		fmt.Fprintf(&b, "  description: %s\n", r.Description)
		fmt.Fprintf(&b, "  discussion: %d\n", len(r.Discussion))
		for _, c := range r.Discussion {
			fmt.Fprintf(&b, "  - author: %s\n", c.Author)
			fmt.Fprintf(&b, "    body: %s\n", c.Body)
		}
		fmt.Fprintf(&b, "  reviews: %d\n", len(r.Reviews))
		for _, rv := range r.Reviews {
			fmt.Fprintf(&b, "  - author: %s\n", rv.Author)
			fmt.Fprintf(&b, "    verdict: %s\n", rv.Verdict)
			fmt.Fprintf(&b, "    comment: %s\n", rv.Comment)
		}
	}
	fmt.Fprintf(&b, "merges: %d\n", len(p.Merges))
	for _, m := range p.Merges {
		fmt.Fprintf(&b, "- author: %s\n", m.Author)
		fmt.Fprintf(&b, "  revision: %d\n", m.Revision)
		fmt.Fprintf(&b, "  commit: %s\n", m.Commit)
	}
	fmt.Fprintf(&b, "conflicts: %d\n", len(p.Conflicts))
	return []byte(b.String())
}

func joinOrNone(labels []string) string {
	if len(labels) == 0 {
		return "none"
	}
	return strings.Join(labels, ", ")
}

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestProjectIssueLifecycle(t *testing.T) {
	create := mustOp(t, alice, 1, nil, OpCreate, canon.Object{
		"title":       canon.String("Flaky test in canonical encoder"),
		"description": canon.String("Fails one run in ten."),
		"labels":      canon.Array{canon.String("bug")},
	})
	comment := mustOp(t, bob, 2, []string{create.ID}, OpComment, canon.Object{
		"body": canon.String("I can reproduce this."),
	})
	label := mustOp(t, alice, 3, []string{comment.ID}, OpLabel, canon.Object{
		"add": canon.Array{canon.String("ci")},
	})
	closed := mustOp(t, alice, 4, []string{label.ID}, OpEditStatus, canon.Object{
		"status": canon.String("closed"),
	})

	d := newIssueDoc(t, create)
	res := d.Merge([]Operation{comment, label, closed})
	require.Empty(t, res.Rejected)

	issue, err := ProjectIssue(d)
	require.NoError(t, err)

	assert.Equal(t, create.ID, issue.ID)
	assert.Equal(t, alice, issue.Author)
	assert.Equal(t, IssueClosed, issue.Status)
	assert.Equal(t, []string{"bug", "ci"}, issue.Labels)
	require.Len(t, issue.Comments, 1)
	assert.Equal(t, bob, issue.Comments[0].Author)

	newGoldie(t).Assert(t, "issue_lifecycle", renderIssue(issue))
}

func TestProjectIssueLabelRemoval(t *testing.T) {
	create := mustOp(t, alice, 1, nil, OpCreate, canon.Object{
		"title":  canon.String("labels come and go"),
		"labels": canon.Array{canon.String("bug"), canon.String("triage")},
	})
	relabel := mustOp(t, bob, 2, []string{create.ID}, OpLabel, canon.Object{
		"add":    canon.Array{canon.String("confirmed")},
		"remove": canon.Array{canon.String("triage")},
	})

	d := newIssueDoc(t, create)
	require.Empty(t, d.Merge([]Operation{relabel}).Rejected)

	issue, err := ProjectIssue(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"bug", "confirmed"}, issue.Labels)
}

func TestProjectIssueWrongKind(t *testing.T) {
	create := mustOp(t, alice, 1, nil, OpCreate, canon.Object{
		"title":  canon.String("fix it"),
		"target": canon.String("main"),
		"commit": canon.String("abc123"),
	})
	d, err := New(testProject, KindPatch, create)
	require.NoError(t, err)

	_, err = ProjectIssue(d)
	require.ErrorIs(t, err, ErrWrongKind)
	_, err = ProjectPatch(d)
	require.NoError(t, err)
}

func TestProjectPatchLifecycle(t *testing.T) {
	create := mustOp(t, alice, 1, nil, OpCreate, canon.Object{
		"title":       canon.String("Rewrite canonical string escaping"),
		"description": canon.String("Hand-rolled escaper."),
		"target":      canon.String("main"),
		"commit":      canon.String("4f1e2d3c"),
	})
	review := mustOp(t, bob, 2, []string{create.ID}, OpReview, canon.Object{
		"revision": canon.Int(0),
		"verdict":  canon.String("accept"),
		"comment":  canon.String("Looks right."),
	})
	revision := mustOp(t, alice, 3, []string{review.ID}, OpRevision, canon.Object{
		"version":     canon.Int(1),
		"commit":      canon.String("5a6b7c8d"),
		"description": canon.String("Address review notes."),
	})
	thanks := mustOp(t, bob, 4, []string{revision.ID}, OpComment, canon.Object{
		"body":     canon.String("Thanks!"),
		"revision": canon.Int(1),
	})
	merged := mustOp(t, bob, 5, []string{thanks.ID}, OpMerge, canon.Object{
		"revision": canon.Int(1),
		"commit":   canon.String("5a6b7c8d"),
	})

	d, err := New(testProject, KindPatch, create)
	require.NoError(t, err)
	res := d.Merge([]Operation{review, revision, thanks, merged})
	require.Empty(t, res.Rejected)

	patch, err := ProjectPatch(d)
	require.NoError(t, err)

	assert.Equal(t, PatchMerged, patch.Status, "a merge record supersedes the status scalar")
	assert.Equal(t, "5a6b7c8d", patch.Head())
	require.Len(t, patch.Revisions, 2)
	assert.Equal(t, int64(0), patch.Revisions[0].Version)
	require.Len(t, patch.Revisions[0].Reviews, 1)
	assert.Equal(t, VerdictAccept, patch.Revisions[0].Reviews[0].Verdict)
	require.Len(t, patch.Revisions[1].Discussion, 1)
	require.Len(t, patch.Merges, 1)
	assert.Equal(t, bob, patch.Merges[0].Author)

	newGoldie(t).Assert(t, "patch_lifecycle", renderPatch(patch))
}

func TestProjectPatchCommentWithoutRevisionAttachesToLatest(t *testing.T) {
	create := mustOp(t, alice, 1, nil, OpCreate, canon.Object{
		"title":  canon.String("fix it"),
		"target": canon.String("main"),
		"commit": canon.String("abc123"),
	})
	revision := mustOp(t, alice, 2, []string{create.ID}, OpRevision, canon.Object{
		"version": canon.Int(1),
		"commit":  canon.String("def456"),
	})
	comment := mustOp(t, bob, 3, []string{revision.ID}, OpComment, canon.Object{
		"body": canon.String("which revision? the latest one"),
	})

	d, err := New(testProject, KindPatch, create)
	require.NoError(t, err)
	require.Empty(t, d.Merge([]Operation{revision, comment}).Rejected)

	patch, err := ProjectPatch(d)
	require.NoError(t, err)
	require.Len(t, patch.Revisions, 2)
	assert.Empty(t, patch.Revisions[0].Discussion)
	require.Len(t, patch.Revisions[1].Discussion, 1)
}
