package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/canon"
	"github.com/grovekit/grove/internal/cob"
	"github.com/grovekit/grove/internal/store"
)

// IssueOptions holds flags shared by the issue subcommands.
type IssueOptions struct {
	*RootOptions
	Project string
}

// NewIssueCommand creates the issue command group.
func NewIssueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IssueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Manage a project's issues",
	}
	cmd.PersistentFlags().StringVar(&opts.Project, "project", "", "project identifier or alias (required)")
	_ = cmd.MarkPersistentFlagRequired("project")

	cmd.AddCommand(newIssueCreateCommand(opts))
	cmd.AddCommand(newIssueListCommand(opts))
	cmd.AddCommand(newIssueShowCommand(opts))
	cmd.AddCommand(newIssueCommentCommand(opts))
	cmd.AddCommand(newIssueStateCommand(opts))
	cmd.AddCommand(newIssueLabelCommand(opts))
	return cmd
}

func newIssueCreateCommand(opts *IssueOptions) *cobra.Command {
	var (
		title       string
		description string
		labels      []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new issue",
		Long: `Open a new issue. The issue id is the content-addressed id of its
create operation, so the same creation on two replicas yields the same
issue.

Examples:
  grove issue create --project heartwood --title "Flaky sync test"
  grove issue create --project heartwood --title "Panic on empty log" --label bug`,
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

			payload := canon.Object{"title": canon.String(title)}
			if description != "" {
				payload["description"] = canon.String(description)
			}
			if len(labels) > 0 {
				arr := make(canon.Array, len(labels))
				for i, l := range labels {
					arr[i] = canon.String(l)
				}
				payload["labels"] = arr
			}

			doc, err := createDocument(ctx, ps, s.profile.Peer(), cob.KindIssue, payload)
			if err != nil {
				return err
			}

			f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if opts.Format == "json" {
				return f.SuccessJSON(map[string]string{"id": doc.ID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opened issue %s\n", truncateID(doc.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "issue title (required)")
	_ = cmd.MarkFlagRequired("title")
	cmd.Flags().StringVar(&description, "description", "", "issue description")
	cmd.Flags().StringArrayVar(&labels, "label", nil, "label to attach (repeatable)")
	return cmd
}

func newIssueListCommand(opts *IssueOptions) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List issues",
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

			issues, err := listIssues(ctx, ps, state)
			if err != nil {
				return err
			}

			f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if opts.Format == "json" {
				return f.SuccessJSON(issues)
			}
			if len(issues) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No issues.")
				return nil
			}
			for _, issue := range issues {
				fmt.Fprintf(cmd.OutOrStdout(), "%-19s %-6s %s\n",
					truncateID(issue.ID), issue.Status, issue.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "filter by state (open|closed)")
	return cmd
}

func listIssues(ctx context.Context, ps *store.ProjectStore, state string) ([]*cob.Issue, error) {
	ids, err := ps.ListDocuments(ctx, cob.KindIssue)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "list issues", err)
	}

	var issues []*cob.Issue
	for _, id := range ids {
		doc, err := ps.LoadDocument(ctx, id)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "load issue", err)
		}
		issue, err := cob.ProjectIssue(doc)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "project issue", err)
		}
		if state != "" && string(issue.Status) != state {
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func newIssueShowCommand(opts *IssueOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <id>",
		Short:         "Show one issue with its discussion",
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
			docID, err := findDocument(ctx, ps, cob.KindIssue, args[0])
			if err != nil {
				return err
			}
			doc, err := ps.LoadDocument(ctx, docID)
			if err != nil {
				return WrapExitError(ExitCommandError, "load issue", err)
			}
			issue, err := cob.ProjectIssue(doc)
			if err != nil {
				return WrapExitError(ExitCommandError, "project issue", err)
			}

			f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if opts.Format == "json" {
				return f.SuccessJSON(issue)
			}
			renderIssueText(cmd, issue)
			return nil
		},
	}
}

func renderIssueText(cmd *cobra.Command, issue *cob.Issue) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "issue %s\n", issue.ID)
	fmt.Fprintf(w, "Title:  %s\n", issue.Title)
	fmt.Fprintf(w, "Status: %s\n", issue.Status)
	fmt.Fprintf(w, "Author: %s\n", issue.Author.Short())
	if len(issue.Labels) > 0 {
		fmt.Fprintf(w, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	if issue.Description != "" {
		fmt.Fprintf(w, "\n%s\n", issue.Description)
	}
	if len(issue.Comments) > 0 {
		fmt.Fprintln(w)
		for _, c := range issue.Comments {
			fmt.Fprintf(w, "[%s] %s\n", c.Author.Short(), c.Body)
		}
	}
	for _, conflict := range issue.Conflicts {
		fmt.Fprintf(w, "\nconflict on %s: kept %q (%s), superseded %q (%s)\n",
			conflict.Field,
			conflict.Winner.Value, conflict.Winner.Author.Short(),
			conflict.Loser.Value, conflict.Loser.Author.Short())
	}
}

func newIssueCommentCommand(opts *IssueOptions) *cobra.Command {
	var (
		body    string
		replyTo string
	)

	cmd := &cobra.Command{
		Use:           "comment <id>",
		Short:         "Comment on an issue",
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
			docID, err := findDocument(ctx, ps, cob.KindIssue, args[0])
			if err != nil {
				return err
			}

			payload := canon.Object{"body": canon.String(body)}
			if replyTo != "" {
				payload["reply_to"] = canon.String(replyTo)
			}
			op, err := appendEdit(ctx, ps, docID, s.profile.Peer(), cob.OpComment, payload)
			if err != nil {
				return err
			}

			f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if opts.Format == "json" {
				return f.SuccessJSON(map[string]string{"id": op.ID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Commented on %s\n", truncateID(docID))
			return nil
		},
	}

	cmd.Flags().StringVar(&body, "body", "", "comment body (required)")
	_ = cmd.MarkFlagRequired("body")
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "operation id of the comment being replied to")
	return cmd
}

func newIssueStateCommand(opts *IssueOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state <id> <open|closed>",
		Short: "Change an issue's state",
		Long: `Change an issue's state. The change is a last-writer-wins edit: a
concurrent state change by another peer surfaces as a conflict marker on
the issue rather than being silently dropped.`,
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
			docID, err := findDocument(ctx, ps, cob.KindIssue, args[0])
			if err != nil {
				return err
			}

			_, err = appendEdit(ctx, ps, docID, s.profile.Peer(), cob.OpEditStatus, canon.Object{
				"status": canon.String(args[1]),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Issue %s is now %s\n", truncateID(docID), args[1])
			return nil
		},
	}
	return cmd
}

func newIssueLabelCommand(opts *IssueOptions) *cobra.Command {
	var (
		add    []string
		remove []string
	)

	cmd := &cobra.Command{
		Use:           "label <id>",
		Short:         "Add or remove issue labels",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(add) == 0 && len(remove) == 0 {
				return NewExitError(ExitCommandError, "nothing to do: pass --add or --remove")
			}

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
			docID, err := findDocument(ctx, ps, cob.KindIssue, args[0])
			if err != nil {
				return err
			}

			payload := canon.Object{}
			if len(add) > 0 {
				arr := make(canon.Array, len(add))
				for i, l := range add {
					arr[i] = canon.String(l)
				}
				payload["add"] = arr
			}
			if len(remove) > 0 {
				arr := make(canon.Array, len(remove))
				for i, l := range remove {
					arr[i] = canon.String(l)
				}
				payload["remove"] = arr
			}

			if _, err := appendEdit(ctx, ps, docID, s.profile.Peer(), cob.OpLabel, payload); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated labels on %s\n", truncateID(docID))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&add, "add", nil, "label to add (repeatable)")
	cmd.Flags().StringArrayVar(&remove, "remove", nil, "label to remove (repeatable)")
	return cmd
}
