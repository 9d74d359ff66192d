package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/profile"
)

// ProfileInitOptions holds flags for the profile init command.
type ProfileInitOptions struct {
	*RootOptions
	Name string
}

// NewProfileCommand creates the profile command group.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage local identities",
	}
	cmd.AddCommand(newProfileInitCommand(rootOpts))
	cmd.AddCommand(newProfileListCommand(rootOpts))
	cmd.AddCommand(newProfileDefaultCommand(rootOpts))
	return cmd
}

func newProfileInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProfileInitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new profile with a fresh keypair",
		Long: `Create a named profile: a fresh ed25519 keypair, a config file, and a
state directory. The peer identifier is derived from the public key and
is stable for the lifetime of the key.

Examples:
  grove profile init --name work
  grove profile init --name oss --home /srv/grove`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "profile name (required)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func runProfileInit(opts *ProfileInitOptions, cmd *cobra.Command) error {
	p, err := profile.Create(opts.Home, opts.Name)
	if err != nil {
		return WrapExitError(ExitCommandError, "create profile", err)
	}

	f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Format == "json" {
		return f.SuccessJSON(map[string]string{
			"name": p.Name,
			"peer": p.Peer().String(),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created profile %q\n", p.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "Peer: %s\n", p.Peer())
	return nil
}

func newProfileListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := profile.List(rootOpts.Home)
			if err != nil {
				return WrapExitError(ExitCommandError, "list profiles", err)
			}
			defaultName, _ := profile.DefaultName(rootOpts.Home)

			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if rootOpts.Format == "json" {
				type entry struct {
					Name    string `json:"name"`
					Default bool   `json:"default"`
				}
				entries := make([]entry, 0, len(names))
				for _, n := range names {
					entries = append(entries, entry{Name: n, Default: n == defaultName})
				}
				return f.SuccessJSON(entries)
			}

			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No profiles. Create one with 'grove profile init --name <name>'.")
				return nil
			}
			for _, n := range names {
				marker := " "
				if n == defaultName {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, n)
			}
			return nil
		},
	}
}

func newProfileDefaultCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "default <name>",
		Short:         "Set the default profile",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if err := profile.SetDefault(rootOpts.Home, name); err != nil {
				return WrapExitError(ExitCommandError, "set default profile", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default profile is now %q\n", name)
			return nil
		},
	}
}
