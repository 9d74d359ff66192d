package cob

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/grovekit/grove/internal/canon"
)

//go:embed schema.cue
var schemaCUE string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaRoot cue.Value
	schemaErr  error
)

// loadSchema compiles the embedded payload schema once per process.
func loadSchema() (cue.Value, *cue.Context, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schemaRoot = schemaCtx.CompileString(schemaCUE)
		if err := schemaRoot.Err(); err != nil {
			schemaErr = fmt.Errorf("compile payload schema: %w", err)
		}
	})
	return schemaRoot, schemaCtx, schemaErr
}

// ValidatePayload checks an operation payload against the embedded CUE
// schema for the given document and operation kind.
//
// A missing schema entry means the operation kind is unknown for this
// document kind, which is itself a validation failure: issues have no
// revisions, patches have no bare status values outside their enum, and a
// kind this replica has never heard of cannot be materialized.
func ValidatePayload(kind Kind, op OpKind, payload canon.Object) error {
	root, ctx, err := loadSchema()
	if err != nil {
		return err
	}

	path := cue.ParsePath(fmt.Sprintf("%s.%q", kind, string(op)))
	def := root.LookupPath(path)
	if !def.Exists() {
		return fmt.Errorf("unknown operation kind %q for %s documents", op, kind)
	}

	encoded := ctx.Encode(canon.ToGo(payload))
	if err := encoded.Err(); err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	unified := def.Unify(encoded)
	if err := unified.Err(); err != nil {
		return fmt.Errorf("payload schema: %w", err)
	}
	// Concrete(true) catches required fields the payload left unset: the
	// unification is then still a constraint, not a value.
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("payload schema: %w", err)
	}
	return nil
}

// validateForDocument runs the full per-operation validation used by
// Merge: payload schema plus document-level structural rules.
func validateForDocument(docID string, kind Kind, op Operation) error {
	if op.Kind == OpCreate && op.ID != docID {
		return fmt.Errorf("create operation %s does not match document id %s", op.ID, docID)
	}
	if op.Kind != OpCreate && len(op.Parents) == 0 {
		return fmt.Errorf("non-create operation has no causal parents")
	}
	return ValidatePayload(kind, op.Kind, op.Payload)
}
