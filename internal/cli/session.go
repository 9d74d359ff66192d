package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/grovekit/grove/internal/identity"
	"github.com/grovekit/grove/internal/profile"
	"github.com/grovekit/grove/internal/store"
	"github.com/grovekit/grove/internal/trust"
	"github.com/grovekit/grove/internal/urn"
)

// session bundles the loaded profile and its open store for the duration
// of one command.
type session struct {
	profile *profile.Profile
	store   *store.Store
}

// openSession loads the selected profile and opens its document store.
func openSession(opts *RootOptions) (*session, error) {
	p, err := profile.Load(opts.Home, opts.Profile)
	if errors.Is(err, profile.ErrNoProfile) {
		return nil, WrapExitError(ExitCommandError,
			"no profile found, create one with 'grove profile init --name <name>'", err)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load profile", err)
	}

	s, err := p.OpenStore()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	return &session{profile: p, store: s}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

func (s *session) resolver() *identity.Resolver {
	return identity.NewResolver(s.store)
}

// resolve maps user input to an identifier, translating resolution
// failures into command errors with actionable messages.
func (s *session) resolve(ctx context.Context, input string) (urn.Identifier, error) {
	id, err := s.resolver().Resolve(ctx, input)
	if err == nil {
		return id, nil
	}

	var amb *identity.AmbiguityError
	switch {
	case errors.As(err, &amb):
		return urn.Identifier{}, WrapExitError(ExitCommandError,
			fmt.Sprintf("identifier %q is ambiguous, use a longer prefix", input), err)
	case errors.Is(err, identity.ErrUnknownIdentifier):
		return urn.Identifier{}, WrapExitError(ExitCommandError,
			fmt.Sprintf("unknown identifier %q", input), err)
	default:
		return urn.Identifier{}, WrapExitError(ExitCommandError, "resolve identifier", err)
	}
}

// resolveKind resolves input and requires the given identifier kind.
func (s *session) resolveKind(ctx context.Context, input string, kind urn.Kind) (urn.Identifier, error) {
	id, err := s.resolve(ctx, input)
	if err != nil {
		return urn.Identifier{}, err
	}
	if id.Kind() != kind {
		return urn.Identifier{}, NewExitError(ExitCommandError,
			fmt.Sprintf("%s is a %s identifier, expected %s", id, id.Kind(), kind))
	}
	return id, nil
}

// openProject resolves a project spelling and opens its store and trust
// graph.
func (s *session) openProject(ctx context.Context, input string) (*store.ProjectStore, *trust.Graph, error) {
	project, err := s.resolveKind(ctx, input, urn.KindProject)
	if err != nil {
		return nil, nil, err
	}
	ps, err := s.store.Project(project)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open project", err)
	}
	graph, err := trust.NewGraph(s.profile.Peer(), ps)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "trust graph", err)
	}
	return ps, graph, nil
}

// formatter builds the output formatter for a command.
func formatter(opts *RootOptions, out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   opts.Verbose,
	}
}
