package cob

import (
	"errors"
	"fmt"
)

// MalformedOperationError reports a single operation that failed
// validation: unparseable payload, schema violation, or a content hash
// that does not match the operation body.
//
// Malformed operations are rejected individually. A merge that encounters
// one skips it, keeps going, and reports it in the MergeResult - it never
// aborts the merge of the remaining log.
type MalformedOperationError struct {
	// OpID is the claimed operation id, possibly empty if the entry was
	// unparseable.
	OpID string

	// Context says where the operation came from (log entry index, merge).
	Context string

	// Err is the underlying validation failure.
	Err error
}

func (e *MalformedOperationError) Error() string {
	id := e.OpID
	if id == "" {
		id = "<unknown>"
	}
	if e.Context != "" {
		return fmt.Sprintf("malformed operation %s (%s): %v", id, e.Context, e.Err)
	}
	return fmt.Sprintf("malformed operation %s: %v", id, e.Err)
}

func (e *MalformedOperationError) Unwrap() error { return e.Err }

func newMalformed(opID, context string, err error) *MalformedOperationError {
	return &MalformedOperationError{OpID: opID, Context: context, Err: err}
}

// IsMalformedOperation reports whether err is (or wraps) a
// MalformedOperationError.
func IsMalformedOperation(err error) bool {
	var me *MalformedOperationError
	return errors.As(err, &me)
}

// ErrWrongKind is returned by projections applied to a document of the
// other kind (issue projection of a patch document, or vice versa).
var ErrWrongKind = errors.New("document has wrong kind for this projection")
