package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <identifier>",
		Short: "Resolve an identifier to its canonical form",
		Long: `Resolve a canonical urn, a local alias, or a digest prefix to exactly
one canonical identifier.

Resolution consults only local state and fails when the input matches
nothing known, or matches more than one identifier.

Examples:
  grove resolve grove:project:4f1e...
  grove resolve heartwood
  grove resolve 4f1e2d`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := s.resolve(context.Background(), args[0])
			if err != nil {
				return err
			}

			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if rootOpts.Format == "json" {
				return f.SuccessJSON(map[string]string{
					"input": args[0],
					"urn":   id.String(),
					"kind":  string(id.Kind()),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}
