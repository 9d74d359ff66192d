package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/trust"
	"github.com/grovekit/grove/internal/urn"
)

// TrackOptions holds flags shared by the tracking commands.
type TrackOptions struct {
	*RootOptions
	Project string
	Reason  string
}

// NewTrackCommand creates the track command.
func NewTrackCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrackOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "track <peer>",
		Short: "Track a peer's contributions to a project",
		Long: `Add a peer to the project's tracking graph. Tracked peers' operation
logs are fetched and merged on sync; everyone else is invisible.

Tracking is idempotent and local: it never notifies the peer.

Examples:
  grove track grove:peer:8a91... --project heartwood
  grove track 8a91f0 --project heartwood --reason "maintainer"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrackPolicy(opts, cmd, args[0], trust.PolicyTrack)
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project", "", "project identifier or alias (required)")
	_ = cmd.MarkFlagRequired("project")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "note recorded with the entry")
	return cmd
}

// NewBlockCommand creates the block command.
func NewBlockCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrackOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "block <peer>",
		Short: "Refuse a peer's contributions",
		Long: `Mark a peer as blocked. Blocked peers' operations are dropped during
merge even when they arrive through a tracked peer's log.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrackPolicy(opts, cmd, args[0], trust.PolicyBlock)
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project", "", "project identifier or alias (required)")
	_ = cmd.MarkFlagRequired("project")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "note recorded with the entry")
	return cmd
}

func runTrackPolicy(opts *TrackOptions, cmd *cobra.Command, peerArg string, policy trust.Policy) error {
	ctx := context.Background()
	s, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	_, graph, err := s.openProject(ctx, opts.Project)
	if err != nil {
		return err
	}
	peer, err := s.resolveKind(ctx, peerArg, urn.KindPeer)
	if err != nil {
		return err
	}

	switch policy {
	case trust.PolicyTrack:
		err = graph.Track(ctx, peer, opts.Reason)
	case trust.PolicyBlock:
		err = graph.Block(ctx, peer, opts.Reason)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, string(policy), err)
	}

	f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Format == "json" {
		return f.SuccessJSON(map[string]string{
			"peer":   peer.String(),
			"policy": string(policy),
		})
	}
	switch policy {
	case trust.PolicyTrack:
		fmt.Fprintf(cmd.OutOrStdout(), "Tracking %s\n", peer)
	case trust.PolicyBlock:
		fmt.Fprintf(cmd.OutOrStdout(), "Blocked %s\n", peer)
	}
	return nil
}

// NewUntrackCommand creates the untrack command.
func NewUntrackCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrackOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "untrack <peer>",
		Short: "Remove a peer from the tracking graph",
		Long: `Remove a peer's tracking entry, returning it to the default untracked
state. Fails when the peer has no entry.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(opts.RootOptions)
			if err != nil {
				return err
			}
			defer s.Close()

			_, graph, err := s.openProject(ctx, opts.Project)
			if err != nil {
				return err
			}
			peer, err := s.resolveKind(ctx, args[0], urn.KindPeer)
			if err != nil {
				return err
			}

			if err := graph.Untrack(ctx, peer); err != nil {
				if errors.Is(err, trust.ErrNotTracked) {
					return WrapExitError(ExitCommandError,
						fmt.Sprintf("peer %s is not tracked", peer.Short()), err)
				}
				return WrapExitError(ExitCommandError, "untrack", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Untracked %s\n", peer)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project", "", "project identifier or alias (required)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

// NewPeersCommand creates the peers command.
func NewPeersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrackOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "peers",
		Short:         "List the project's tracking graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(opts.RootOptions)
			if err != nil {
				return err
			}
			defer s.Close()

			_, graph, err := s.openProject(ctx, opts.Project)
			if err != nil {
				return err
			}
			entries, err := graph.Entries(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "list peers", err)
			}

			f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if opts.Format == "json" {
				type entry struct {
					Peer   string `json:"peer"`
					Policy string `json:"policy"`
					Reason string `json:"reason,omitempty"`
				}
				out := make([]entry, 0, len(entries))
				for _, e := range entries {
					out = append(out, entry{
						Peer:   e.Peer.String(),
						Policy: string(e.Policy),
						Reason: e.Reason,
					})
				}
				return f.SuccessJSON(out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "local %s (you)\n", graph.Local())
			for _, e := range entries {
				if e.Reason != "" {
					fmt.Fprintf(w, "%-5s %s (%s)\n", e.Policy, e.Peer, e.Reason)
					continue
				}
				fmt.Fprintf(w, "%-5s %s\n", e.Policy, e.Peer)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project", "", "project identifier or alias (required)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}
