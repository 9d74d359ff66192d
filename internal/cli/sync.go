package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/cob"
	"github.com/grovekit/grove/internal/store"
	"github.com/grovekit/grove/internal/syncer"
	"github.com/grovekit/grove/internal/trust"
)

// SyncOptions holds flags for the sync and announce commands.
type SyncOptions struct {
	*RootOptions
	Project  string
	Exchange string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch and merge from tracked peers",
		Long: `Fetch every tracked peer's operation logs for a project and merge them
locally, then republish the merged state for others to fetch.

Peer failures are isolated: unreachable peers are reported, reachable
peers' contributions land regardless. The exit code is nonzero when any
peer failed.

Examples:
  grove sync --project heartwood
  grove sync --project heartwood --exchange /mnt/grove-exchange`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project", "", "project identifier or alias (required)")
	_ = cmd.MarkFlagRequired("project")
	cmd.Flags().StringVar(&opts.Exchange, "exchange", "", "blob exchange directory (default: profile config)")
	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	s, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	ps, graph, err := s.openProject(ctx, opts.Project)
	if err != nil {
		return err
	}
	transport, err := exchangeTransport(s, opts.Exchange)
	if err != nil {
		return err
	}

	coordinator := newCoordinator(s, ps, graph, transport)
	report, err := coordinator.Sync(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "sync", err)
	}

	// Republish so peers can fetch the merged state.
	if err := publishLocal(ctx, ps, graph, transport); err != nil {
		return WrapExitError(ExitCommandError, "publish", err)
	}

	f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Format == "json" {
		if err := f.SuccessJSON(reportPayload(report)); err != nil {
			return err
		}
	} else {
		renderReport(cmd, report)
	}

	if failed := report.Failed(); len(failed) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d peer(s) failed", len(failed)))
	}
	return nil
}

// NewAnnounceCommand creates the announce command.
func NewAnnounceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "announce <doc-id>",
		Short: "Push a document's log to tracked peers",
		Long: `Push one document's canonical log directly into each tracked peer's
exchange area. Peers merge it under their own trust policy; an announce
is an offer, never a write into their state.`,
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

			ps, graph, err := s.openProject(ctx, opts.Project)
			if err != nil {
				return err
			}
			transport, err := exchangeTransport(s, opts.Exchange)
			if err != nil {
				return err
			}

			docID := args[0]
			for _, kind := range []cob.Kind{cob.KindIssue, cob.KindPatch} {
				if id, err := findDocument(ctx, ps, kind, args[0]); err == nil {
					docID = id
					break
				}
			}

			coordinator := newCoordinator(s, ps, graph, transport)
			report, err := coordinator.Announce(ctx, docID)
			if err != nil {
				return WrapExitError(ExitCommandError, "announce", err)
			}

			f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if opts.Format == "json" {
				if err := f.SuccessJSON(reportPayload(report)); err != nil {
					return err
				}
			} else {
				renderReport(cmd, report)
			}

			if failed := report.Failed(); len(failed) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d peer(s) failed", len(failed)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project", "", "project identifier or alias (required)")
	_ = cmd.MarkFlagRequired("project")
	cmd.Flags().StringVar(&opts.Exchange, "exchange", "", "blob exchange directory (default: profile config)")
	return cmd
}

func exchangeTransport(s *session, override string) (*syncer.FSTransport, error) {
	dir := override
	if dir == "" {
		dir = s.profile.ExchangeDir()
	}
	if dir == "" {
		return nil, NewExitError(ExitCommandError,
			"no exchange directory configured: pass --exchange or set sync.exchange_dir in the profile config")
	}
	return syncer.NewFSTransport(dir), nil
}

func newCoordinator(s *session, ps *store.ProjectStore, graph *trust.Graph, transport syncer.Transport) *syncer.Coordinator {
	opts := []syncer.Option{}
	if timeout := s.profile.PeerTimeout(); timeout > 0 {
		opts = append(opts, syncer.WithPeerTimeout(timeout))
	}
	return syncer.New(ps, graph, transport, opts...)
}

// publishLocal writes the local replica's subtree into the exchange so
// other peers can fetch it.
func publishLocal(ctx context.Context, ps *store.ProjectStore, graph *trust.Graph, transport *syncer.FSTransport) error {
	var entries []syncer.DocEntry
	logs := make(map[string][]byte)
	for _, kind := range []cob.Kind{cob.KindIssue, cob.KindPatch} {
		ids, err := ps.ListDocuments(ctx, kind)
		if err != nil {
			return err
		}
		for _, id := range ids {
			doc, err := ps.LoadDocument(ctx, id)
			if err != nil {
				return err
			}
			blob, err := cob.EncodeLog(doc.Log())
			if err != nil {
				return err
			}
			entries = append(entries, syncer.DocEntry{ID: id, Kind: kind})
			logs[id] = blob
		}
	}
	return transport.Publish(ctx, graph.Local(), ps.Project(), entries, logs)
}

func reportPayload(report *syncer.Report) map[string]interface{} {
	peers := make([]map[string]interface{}, 0, len(report.Peers))
	for _, pr := range report.Peers {
		entry := map[string]interface{}{
			"peer":       pr.Peer.String(),
			"state":      string(pr.State),
			"documents":  pr.Documents,
			"accepted":   pr.Accepted,
			"duplicates": pr.Duplicates,
			"rejected":   pr.Rejected,
		}
		if pr.Err != nil {
			entry["error"] = pr.Err.Error()
		}
		peers = append(peers, entry)
	}
	return map[string]interface{}{
		"token":   report.Token,
		"project": report.Project.String(),
		"elapsed": report.Elapsed.String(),
		"peers":   peers,
	}
}

func renderReport(cmd *cobra.Command, report *syncer.Report) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s on %s\n", report.Token, report.Project.Short())
	if len(report.Peers) == 0 {
		fmt.Fprintln(w, "No tracked peers.")
		return
	}
	for _, pr := range report.Peers {
		if pr.State == syncer.StateFailed {
			fmt.Fprintf(w, "  %s  failed: %v\n", pr.Peer.Short(), pr.Err)
			continue
		}
		fmt.Fprintf(w, "  %s  %d docs, %d new, %d duplicate, %d rejected\n",
			pr.Peer.Short(), pr.Documents, pr.Accepted, pr.Duplicates, pr.Rejected)
	}
}
