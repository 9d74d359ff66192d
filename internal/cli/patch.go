package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/canon"
	"github.com/grovekit/grove/internal/cob"
)

// PatchOptions holds flags shared by the patch subcommands.
type PatchOptions struct {
	*RootOptions
	Project string
}

// NewPatchCommand creates the patch command group.
func NewPatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Manage a project's patches",
	}
	cmd.PersistentFlags().StringVar(&opts.Project, "project", "", "project identifier or alias (required)")
	_ = cmd.MarkPersistentFlagRequired("project")

	cmd.AddCommand(newPatchCreateCommand(opts))
	cmd.AddCommand(newPatchListCommand(opts))
	cmd.AddCommand(newPatchShowCommand(opts))
	cmd.AddCommand(newPatchStateCommand(opts))
	cmd.AddCommand(newPatchReviewCommand(opts))
	cmd.AddCommand(newPatchMergeCommand(opts))
	return cmd
}

func newPatchCreateCommand(opts *PatchOptions) *cobra.Command {
	var (
		title       string
		description string
		target      string
		commit      string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Propose a new patch",
		Long: `Propose a change set against a target branch. The create operation
carries revision 0; later revisions are appended with new commits.

Examples:
  grove patch create --project heartwood --title "Fix escaping" --target main --commit 4f1e2d3c`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(opts.RootOptions)
			if err != nil {
				return err
			}
			defer s.Close()

			ps, _, err := s.openProject(ctx, opts.Project)
			if err != nil {
				return err
			}

			payload := canon.Object{
				"title":  canon.String(title),
				"target": canon.String(target),
				"commit": canon.String(commit),
			}
			if description != "" {
				payload["description"] = canon.String(description)
			}

			doc, err := createDocument(ctx, ps, s.profile.Peer(), cob.KindPatch, payload)
			if err != nil {
				return err
			}

			f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if opts.Format == "json" {
				return f.SuccessJSON(map[string]string{"id": doc.ID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opened patch %s\n", truncateID(doc.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "patch title (required)")
	_ = cmd.MarkFlagRequired("title")
	cmd.Flags().StringVar(&target, "target", "", "target branch (required)")
	_ = cmd.MarkFlagRequired("target")
	cmd.Flags().StringVar(&commit, "commit", "", "proposed head commit (required)")
	_ = cmd.MarkFlagRequired("commit")
	cmd.Flags().StringVar(&description, "description", "", "patch description")
	return cmd
}

func newPatchListCommand(opts *PatchOptions) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List patches",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(opts.RootOptions)
			if err != nil {
				return err
			}
			defer s.Close()

			ps, _, err := s.openProject(ctx, opts.Project)
			if err != nil {
				return err
			}

			ids, err := ps.ListDocuments(ctx, cob.KindPatch)
			if err != nil {
				return WrapExitError(ExitCommandError, "list patches", err)
			}

			var patches []*cob.Patch
			for _, id := range ids {
				doc, err := ps.LoadDocument(ctx, id)
				if err != nil {
					return WrapExitError(ExitCommandError, "load patch", err)
				}
				patch, err := cob.ProjectPatch(doc)
				if err != nil {
					return WrapExitError(ExitCommandError, "project patch", err)
				}
				if state != "" && string(patch.Status) != state {
					continue
				}
				patches = append(patches, patch)
			}

			f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if opts.Format == "json" {
				return f.SuccessJSON(patches)
			}
			if len(patches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No patches.")
				return nil
			}
			for _, patch := range patches {
				fmt.Fprintf(cmd.OutOrStdout(), "%-19s %-7s %-8s %s\n",
					truncateID(patch.ID), patch.Status, patch.Head(), patch.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "filter by state (open|draft|closed|merged)")
	return cmd
}

func newPatchShowCommand(opts *PatchOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <id>",
		Short:         "Show one patch with its revisions and reviews",
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

			ps, _, err := s.openProject(ctx, opts.Project)
			if err != nil {
				return err
			}
			docID, err := findDocument(ctx, ps, cob.KindPatch, args[0])
			if err != nil {
				return err
			}
			doc, err := ps.LoadDocument(ctx, docID)
			if err != nil {
				return WrapExitError(ExitCommandError, "load patch", err)
			}
			patch, err := cob.ProjectPatch(doc)
			if err != nil {
				return WrapExitError(ExitCommandError, "project patch", err)
			}

			f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if opts.Format == "json" {
				return f.SuccessJSON(patch)
			}
			renderPatchText(cmd, patch)
			return nil
		},
	}
}

func renderPatchText(cmd *cobra.Command, patch *cob.Patch) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "patch %s\n", patch.ID)
	fmt.Fprintf(w, "Title:  %s\n", patch.Title)
	fmt.Fprintf(w, "Status: %s\n", patch.Status)
	fmt.Fprintf(w, "Author: %s\n", patch.Author.Short())
	fmt.Fprintf(w, "Target: %s\n", patch.Target)
	if len(patch.Labels) > 0 {
		fmt.Fprintf(w, "Labels: %s\n", strings.Join(patch.Labels, ", "))
	}

	for _, rev := range patch.Revisions {
		fmt.Fprintf(w, "\nrevision %d  commit %s  by %s\n", rev.Version, rev.Commit, rev.Author.Short())
		if rev.Description != "" {
			fmt.Fprintf(w, "  %s\n", rev.Description)
		}
		for _, review := range rev.Reviews {
			if review.Comment != "" {
				fmt.Fprintf(w, "  review %s by %s: %s\n", review.Verdict, review.Author.Short(), review.Comment)
				continue
			}
			fmt.Fprintf(w, "  review %s by %s\n", review.Verdict, review.Author.Short())
		}
		for _, c := range rev.Discussion {
			fmt.Fprintf(w, "  [%s] %s\n", c.Author.Short(), c.Body)
		}
	}

	for _, m := range patch.Merges {
		fmt.Fprintf(w, "\nmerged revision %d at %s by %s\n", m.Revision, m.Commit, m.Author.Short())
	}
	for _, conflict := range patch.Conflicts {
		fmt.Fprintf(w, "\nconflict on %s: kept %q (%s), superseded %q (%s)\n",
			conflict.Field,
			conflict.Winner.Value, conflict.Winner.Author.Short(),
			conflict.Loser.Value, conflict.Loser.Author.Short())
	}
}

func newPatchStateCommand(opts *PatchOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "state <id> <open|draft|closed>",
		Short:         "Change a patch's state",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(opts.RootOptions)
			if err != nil {
				return err
			}
			defer s.Close()

			ps, _, err := s.openProject(ctx, opts.Project)
			if err != nil {
				return err
			}
			docID, err := findDocument(ctx, ps, cob.KindPatch, args[0])
			if err != nil {
				return err
			}

			_, err = appendEdit(ctx, ps, docID, s.profile.Peer(), cob.OpEditStatus, canon.Object{
				"status": canon.String(args[1]),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Patch %s is now %s\n", truncateID(docID), args[1])
			return nil
		},
	}
}

func newPatchReviewCommand(opts *PatchOptions) *cobra.Command {
	var (
		revision int64
		verdict  string
		comment  string
	)

	cmd := &cobra.Command{
		Use:           "review <id>",
		Short:         "Record a review verdict on a patch revision",
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

			ps, _, err := s.openProject(ctx, opts.Project)
			if err != nil {
				return err
			}
			docID, err := findDocument(ctx, ps, cob.KindPatch, args[0])
			if err != nil {
				return err
			}

			payload := canon.Object{
				"revision": canon.Int(revision),
				"verdict":  canon.String(verdict),
			}
			if comment != "" {
				payload["comment"] = canon.String(comment)
			}
			if _, err := appendEdit(ctx, ps, docID, s.profile.Peer(), cob.OpReview, payload); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reviewed revision %d of %s: %s\n", revision, truncateID(docID), verdict)
			return nil
		},
	}

	cmd.Flags().Int64Var(&revision, "revision", 0, "revision to review")
	cmd.Flags().StringVar(&verdict, "verdict", "", "accept|reject|pass (required)")
	_ = cmd.MarkFlagRequired("verdict")
	cmd.Flags().StringVar(&comment, "comment", "", "review comment")
	return cmd
}

func newPatchMergeCommand(opts *PatchOptions) *cobra.Command {
	var (
		revision int64
		commit   string
	)

	cmd := &cobra.Command{
		Use:   "merge <id>",
		Short: "Record that a patch revision was merged",
		Long: `Record that a revision of this patch was merged into the local copy of
the target branch. Merge records replicate like any other operation, so
other replicas see the patch as merged after sync.`,
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

			ps, _, err := s.openProject(ctx, opts.Project)
			if err != nil {
				return err
			}
			docID, err := findDocument(ctx, ps, cob.KindPatch, args[0])
			if err != nil {
				return err
			}

			if _, err := appendEdit(ctx, ps, docID, s.profile.Peer(), cob.OpMerge, canon.Object{
				"revision": canon.Int(revision),
				"commit":   canon.String(commit),
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded merge of revision %d at %s\n", revision, commit)
			return nil
		},
	}

	cmd.Flags().Int64Var(&revision, "revision", 0, "merged revision")
	cmd.Flags().StringVar(&commit, "commit", "", "merge commit (required)")
	_ = cmd.MarkFlagRequired("commit")
	return cmd
}
