package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/grovekit/grove/internal/store"
	"github.com/grovekit/grove/internal/urn"
)

// ErrUnknownIdentifier is returned when no spelling of an identifier
// matches the local corpus.
var ErrUnknownIdentifier = errors.New("unknown identifier")

// ErrAmbiguousIdentifier is returned when a digest prefix matches more
// than one known identifier.
var ErrAmbiguousIdentifier = errors.New("ambiguous identifier")

// MinPrefixLen is the shortest digest prefix the resolver will consider.
// Shorter inputs are rejected as unknown rather than matched, so a typo
// never silently resolves.
const MinPrefixLen = 6

// AmbiguityError carries the candidate set for an ambiguous prefix so the
// caller can show the user what to disambiguate between.
type AmbiguityError struct {
	Input      string
	Candidates []urn.Identifier
}

func (e *AmbiguityError) Error() string {
	spellings := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		spellings[i] = c.String()
	}
	return fmt.Sprintf("identifier %q is ambiguous: matches %s", e.Input, strings.Join(spellings, ", "))
}

func (e *AmbiguityError) Unwrap() error { return ErrAmbiguousIdentifier }

// Directory is the corpus the resolver matches against. *store.Store
// satisfies it.
type Directory interface {
	KnownIdentifiers(ctx context.Context) ([]urn.Identifier, error)
	LookupAlias(ctx context.Context, alias string) (urn.Identifier, error)
	PutAlias(ctx context.Context, alias string, id urn.Identifier) error
	RegisterIdentity(ctx context.Context, id urn.Identifier) error
}

// Resolver maps user input to exactly one canonical identifier.
//
// Resolution is a pure function of the local corpus: canonical urns parse
// directly, aliases match exactly, and a lowercase hex prefix of at least
// MinPrefixLen characters matches when exactly one known digest starts
// with it. No rule consults the network.
type Resolver struct {
	dir Directory
}

// NewResolver returns a resolver over the given directory.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve maps input to one identifier or fails.
//
// Canonical spellings resolve even when unknown to the corpus, and are
// registered as a side effect so later prefix lookups can find them.
// A successful prefix resolution is cached as an alias, which pins the
// spelling: it keeps resolving to the same identifier even if a colliding
// digest is learned later.
func (r *Resolver) Resolve(ctx context.Context, input string) (urn.Identifier, error) {
	if id, err := urn.Parse(input); err == nil {
		if err := r.dir.RegisterIdentity(ctx, id); err != nil {
			return urn.Identifier{}, err
		}
		return id, nil
	}

	id, err := r.dir.LookupAlias(ctx, input)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return urn.Identifier{}, err
	}

	return r.resolvePrefix(ctx, input)
}

func (r *Resolver) resolvePrefix(ctx context.Context, input string) (urn.Identifier, error) {
	if len(input) < MinPrefixLen || !isHexLower(input) {
		return urn.Identifier{}, fmt.Errorf("%q: %w", input, ErrUnknownIdentifier)
	}

	known, err := r.dir.KnownIdentifiers(ctx)
	if err != nil {
		return urn.Identifier{}, err
	}

	var candidates []urn.Identifier
	for _, id := range known {
		if strings.HasPrefix(id.Digest(), input) {
			candidates = append(candidates, id)
		}
	}

	switch len(candidates) {
	case 0:
		return urn.Identifier{}, fmt.Errorf("%q: %w", input, ErrUnknownIdentifier)
	case 1:
		if err := r.dir.PutAlias(ctx, input, candidates[0]); err != nil {
			return urn.Identifier{}, err
		}
		return candidates[0], nil
	default:
		return urn.Identifier{}, &AmbiguityError{Input: input, Candidates: candidates}
	}
}

func isHexLower(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return s != ""
}
