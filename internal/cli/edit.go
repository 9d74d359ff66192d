package cli

import (
	"context"
	"fmt"

	"github.com/grovekit/grove/internal/canon"
	"github.com/grovekit/grove/internal/cob"
	"github.com/grovekit/grove/internal/store"
	"github.com/grovekit/grove/internal/urn"
)

// createDocument builds a document's root operation and persists it.
func createDocument(ctx context.Context, ps *store.ProjectStore, author urn.Identifier, kind cob.Kind, payload canon.Object) (*cob.Document, error) {
	op, err := cob.NewOperation(author, 1, nil, cob.OpCreate, payload)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "create operation", err)
	}
	doc, err := cob.New(ps.Project(), kind, op)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "create document", err)
	}
	if err := ps.AppendOperations(ctx, doc.ID, kind, []cob.Operation{op}); err != nil {
		return nil, WrapExitError(ExitCommandError, "persist document", err)
	}
	return doc, nil
}

// appendEdit applies one local edit to a document under its lock: load,
// stamp onto the current heads, merge, persist.
func appendEdit(ctx context.Context, ps *store.ProjectStore, docID string, author urn.Identifier, opKind cob.OpKind, payload canon.Object) (cob.Operation, error) {
	release, err := ps.LockDocument(ctx, docID)
	if err != nil {
		return cob.Operation{}, WrapExitError(ExitCommandError, "lock document", err)
	}
	defer release()

	doc, err := ps.LoadDocument(ctx, docID)
	if err != nil {
		return cob.Operation{}, WrapExitError(ExitCommandError,
			fmt.Sprintf("document %s", truncateID(docID)), err)
	}

	op, err := doc.Edit(author, opKind, payload)
	if err != nil {
		return cob.Operation{}, WrapExitError(ExitCommandError, "build operation", err)
	}
	result := doc.Merge([]cob.Operation{op})
	if len(result.Rejected) > 0 {
		return cob.Operation{}, WrapExitError(ExitCommandError, "invalid operation", result.Rejected[0])
	}
	if err := ps.AppendOperations(ctx, docID, doc.Kind, result.Accepted); err != nil {
		return cob.Operation{}, WrapExitError(ExitCommandError, "persist operation", err)
	}
	return op, nil
}

// findDocument resolves a full or prefixed document id within a project.
func findDocument(ctx context.Context, ps *store.ProjectStore, kind cob.Kind, input string) (string, error) {
	ids, err := ps.ListDocuments(ctx, kind)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "list documents", err)
	}

	var matches []string
	for _, id := range ids {
		if id == input {
			return id, nil
		}
		if len(input) >= 6 && len(input) < len(id) && id[:len(input)] == input {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", NewExitError(ExitCommandError, fmt.Sprintf("no %s matching %q", kind, input))
	case 1:
		return matches[0], nil
	default:
		return "", NewExitError(ExitCommandError, fmt.Sprintf("%q matches %d %ss, use a longer prefix", input, len(matches), kind))
	}
}
