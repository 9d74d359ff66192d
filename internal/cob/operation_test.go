package cob

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/canon"
	"github.com/grovekit/grove/internal/urn"
)

var (
	testProject = urn.MustParse("grove:project:" + strings.Repeat("0", 64))
	alice       = urn.MustParse("grove:peer:" + strings.Repeat("a", 64))
	bob         = urn.MustParse("grove:peer:" + strings.Repeat("b", 64))
	carol       = urn.MustParse("grove:peer:" + strings.Repeat("c", 64))
)

func mustOp(t *testing.T, author urn.Identifier, clock int64, parents []string, kind OpKind, payload canon.Object) Operation {
	t.Helper()
	op, err := NewOperation(author, clock, parents, kind, payload)
	require.NoError(t, err)
	return op
}

func issueCreate(t *testing.T, author urn.Identifier, title string) Operation {
	t.Helper()
	return mustOp(t, author, 1, nil, OpCreate, canon.Object{
		"title": canon.String(title),
	})
}

func TestOperationIDDeterministic(t *testing.T) {
	payload := canon.Object{"title": canon.String("hello")}

	a := mustOp(t, alice, 1, nil, OpCreate, payload)
	b := mustOp(t, alice, 1, nil, OpCreate, payload)
	assert.Equal(t, a.ID, b.ID)

	// Any field change produces a different id.
	c := mustOp(t, bob, 1, nil, OpCreate, payload)
	d := mustOp(t, alice, 2, nil, OpCreate, payload)
	e := mustOp(t, alice, 1, nil, OpCreate, canon.Object{"title": canon.String("other")})
	assert.NotEqual(t, a.ID, c.ID)
	assert.NotEqual(t, a.ID, d.ID)
	assert.NotEqual(t, a.ID, e.ID)
}

func TestOperationIDParentOrderInsensitive(t *testing.T) {
	payload := canon.Object{"body": canon.String("hi")}
	p1 := strings.Repeat("1", 64)
	p2 := strings.Repeat("2", 64)

	a := mustOp(t, alice, 3, []string{p1, p2}, OpComment, payload)
	b := mustOp(t, alice, 3, []string{p2, p1}, OpComment, payload)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, []string{p1, p2}, b.Parents)
}

func TestNewOperationRejectsNonPeerAuthor(t *testing.T) {
	_, err := NewOperation(testProject, 1, nil, OpCreate, canon.Object{})
	require.Error(t, err)

	_, err = NewOperation(urn.Identifier{}, 1, nil, OpCreate, canon.Object{})
	require.Error(t, err)
}

func TestVerifyDetectsTampering(t *testing.T) {
	op := issueCreate(t, alice, "hello")
	require.NoError(t, op.Verify())

	tampered := op
	tampered.Payload = canon.Object{"title": canon.String("evil")}
	require.Error(t, tampered.Verify())

	relabeled := op
	relabeled.ID = strings.Repeat("f", 64)
	require.Error(t, relabeled.Verify())
}

func TestEncodeDecodeLog(t *testing.T) {
	create := issueCreate(t, alice, "hello")
	comment := mustOp(t, bob, 2, []string{create.ID}, OpComment, canon.Object{
		"body": canon.String("hi there"),
	})

	blob, err := EncodeLog([]Operation{create, comment})
	require.NoError(t, err)

	ops, rejected, err := DecodeLog(blob)
	require.NoError(t, err)
	assert.Empty(t, rejected)
	require.Len(t, ops, 2)
	assert.Equal(t, create, ops[0])
	assert.Equal(t, comment, ops[1])
}

func TestDecodeLogRejectsEntriesIndividually(t *testing.T) {
	good := issueCreate(t, alice, "hello")
	goodBlob, err := EncodeLog([]Operation{good})
	require.NoError(t, err)
	goodJSON := strings.TrimSuffix(strings.TrimPrefix(string(goodBlob), "["), "]")

	// One entry with a wrong id, one with a bogus author, one fine.
	tamperedJSON := strings.Replace(goodJSON, good.ID, strings.Repeat("f", 64), 1)
	badAuthorJSON := strings.Replace(goodJSON, alice.String(), "not-a-urn", 1)
	blob := []byte("[" + tamperedJSON + "," + badAuthorJSON + "," + goodJSON + "]")

	ops, rejected, err := DecodeLog(blob)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, good.ID, ops[0].ID)
	require.Len(t, rejected, 2)
	for _, rej := range rejected {
		assert.True(t, IsMalformedOperation(rej))
	}
}

func TestDecodeLogBadEnvelope(t *testing.T) {
	_, _, err := DecodeLog([]byte("{not a log"))
	require.Error(t, err)
}
