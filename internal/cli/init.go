package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/canon"
	"github.com/grovekit/grove/internal/urn"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Name          string
	DefaultBranch string
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new project",
		Long: `Create a project identity. The project id is derived from the canonical
project payload (name, default branch, founding peer), registered in the
local index, and aliased to the project name.

Examples:
  grove init --name heartwood
  grove init --name heartwood --default-branch trunk`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "project name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&opts.DefaultBranch, "default-branch", "main", "default branch")
	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	s, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	// The founding peer is part of the payload so two peers founding
	// same-named projects get distinct identities.
	payload := canon.Object{
		"name":           canon.String(opts.Name),
		"default_branch": canon.String(opts.DefaultBranch),
		"founder":        canon.String(s.profile.Peer().String()),
	}
	project, err := urn.DeriveProject(payload)
	if err != nil {
		return WrapExitError(ExitCommandError, "derive project id", err)
	}

	if err := s.store.PutAlias(ctx, opts.Name, project); err != nil {
		return WrapExitError(ExitCommandError, "register project", err)
	}
	if _, err := s.store.Project(project); err != nil {
		return WrapExitError(ExitCommandError, "create project store", err)
	}

	f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Format == "json" {
		return f.SuccessJSON(map[string]string{
			"name": opts.Name,
			"urn":  project.String(),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created project %q\n", opts.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "Identifier: %s\n", project)
	return nil
}
