package cob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/canon"
)

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		op      OpKind
		payload canon.Object
		wantErr bool
	}{
		{
			name: "issue create minimal",
			kind: KindIssue, op: OpCreate,
			payload: canon.Object{"title": canon.String("it breaks")},
		},
		{
			name: "issue create with optionals",
			kind: KindIssue, op: OpCreate,
			payload: canon.Object{
				"title":       canon.String("it breaks"),
				"description": canon.String("often"),
				"labels":      canon.Array{canon.String("bug")},
			},
		},
		{
			name: "issue create missing title",
			kind: KindIssue, op: OpCreate,
			payload: canon.Object{"description": canon.String("often")},
			wantErr: true,
		},
		{
			name: "issue create empty title",
			kind: KindIssue, op: OpCreate,
			payload: canon.Object{"title": canon.String("")},
			wantErr: true,
		},
		{
			name: "issue create unknown field",
			kind: KindIssue, op: OpCreate,
			payload: canon.Object{
				"title":    canon.String("it breaks"),
				"severity": canon.String("high"),
			},
			wantErr: true,
		},
		{
			name: "issue status valid",
			kind: KindIssue, op: OpEditStatus,
			payload: canon.Object{"status": canon.String("closed")},
		},
		{
			name: "issue status outside enum",
			kind: KindIssue, op: OpEditStatus,
			payload: canon.Object{"status": canon.String("reopened")},
			wantErr: true,
		},
		{
			name: "issue comment",
			kind: KindIssue, op: OpComment,
			payload: canon.Object{"body": canon.String("same here")},
		},
		{
			name: "issue comment empty body",
			kind: KindIssue, op: OpComment,
			payload: canon.Object{"body": canon.String("")},
			wantErr: true,
		},
		{
			name: "issue has no revisions",
			kind: KindIssue, op: OpRevision,
			payload: canon.Object{
				"version": canon.Int(1),
				"commit":  canon.String("abc123"),
			},
			wantErr: true,
		},
		{
			name: "patch create",
			kind: KindPatch, op: OpCreate,
			payload: canon.Object{
				"title":  canon.String("fix escaping"),
				"target": canon.String("main"),
				"commit": canon.String("abc123"),
			},
		},
		{
			name: "patch create missing target",
			kind: KindPatch, op: OpCreate,
			payload: canon.Object{
				"title":  canon.String("fix escaping"),
				"commit": canon.String("abc123"),
			},
			wantErr: true,
		},
		{
			name: "patch status allows draft",
			kind: KindPatch, op: OpEditStatus,
			payload: canon.Object{"status": canon.String("draft")},
		},
		{
			name: "patch status rejects merged",
			kind: KindPatch, op: OpEditStatus,
			payload: canon.Object{"status": canon.String("merged")},
			wantErr: true,
		},
		{
			name: "patch revision",
			kind: KindPatch, op: OpRevision,
			payload: canon.Object{
				"version": canon.Int(2),
				"commit":  canon.String("def456"),
			},
		},
		{
			name: "patch revision zero reserved for create",
			kind: KindPatch, op: OpRevision,
			payload: canon.Object{
				"version": canon.Int(0),
				"commit":  canon.String("def456"),
			},
			wantErr: true,
		},
		{
			name: "patch review",
			kind: KindPatch, op: OpReview,
			payload: canon.Object{
				"revision": canon.Int(0),
				"verdict":  canon.String("accept"),
			},
		},
		{
			name: "patch review bad verdict",
			kind: KindPatch, op: OpReview,
			payload: canon.Object{
				"revision": canon.Int(0),
				"verdict":  canon.String("maybe"),
			},
			wantErr: true,
		},
		{
			name: "patch merge",
			kind: KindPatch, op: OpMerge,
			payload: canon.Object{
				"revision": canon.Int(1),
				"commit":   canon.String("def456"),
			},
		},
		{
			name: "patch merge missing commit",
			kind: KindPatch, op: OpMerge,
			payload: canon.Object{"revision": canon.Int(1)},
			wantErr: true,
		},
		{
			name: "unknown operation kind",
			kind: KindIssue, op: OpKind("promote"),
			payload: canon.Object{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.kind, tt.op, tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateForDocumentStructuralRules(t *testing.T) {
	create := issueCreate(t, alice, "hello")

	// A create operation for a different document is rejected.
	other := issueCreate(t, bob, "other")
	err := validateForDocument(create.ID, KindIssue, other)
	require.Error(t, err)

	// Non-create operations need causal parents.
	orphan := mustOp(t, bob, 2, nil, OpComment, canon.Object{
		"body": canon.String("hi"),
	})
	err = validateForDocument(create.ID, KindIssue, orphan)
	require.Error(t, err)
}
