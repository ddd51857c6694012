package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/mimir/internal/branch"
	"github.com/zulandar/mimir/internal/commit"
	"github.com/zulandar/mimir/internal/errs"
	"github.com/zulandar/mimir/internal/models"
)

func newCommitCmd(configPath *string) *cobra.Command {
	var (
		ref         taskRef
		branchName  string
		message     string
		contextText string
		contextFile string
		author      string
		load        int
		uncertainty int
	)

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record a context snapshot on a branch",
		Long: `Appends a commit to a branch of the current task and moves the branch head
to it. If another writer moved the branch first the commit is rejected;
run the command again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			body, err := readContext(cmd, contextText, contextFile)
			if err != nil {
				return err
			}
			t, err := a.resolveTask(ctx, ref)
			if err != nil {
				return err
			}
			bn, err := a.branchName(ref, branchName)
			if err != nil {
				return err
			}
			if author == "" {
				author = a.cfg.Author
			}

			c, err := commit.Create(ctx, a.db, commit.CreateOpts{
				TaskID:        t.ID,
				Branch:        bn,
				Message:       message,
				Context:       body,
				Author:        author,
				CognitiveLoad: metricFlag(load),
				Uncertainty:   metricFlag(uncertainty),
			})
			if err != nil {
				if errors.Is(err, errs.ErrConflict) {
					return fmt.Errorf("%w (branch %s moved; retry the commit)", err, bn)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", bn, c.ShortID(), c.Message)
			return nil
		},
	}

	ref.bind(cmd)
	cmd.Flags().StringVarP(&branchName, "branch", "b", "", "branch to commit to (default: current branch)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message (required)")
	cmd.Flags().StringVar(&contextText, "context", "", "full context text")
	cmd.Flags().StringVar(&contextFile, "context-file", "", "read context from a file (- for stdin)")
	cmd.Flags().StringVar(&author, "author", "", "commit author (default: config author)")
	cmd.Flags().IntVar(&load, "load", -1, "cognitive load, 0-10")
	cmd.Flags().IntVar(&uncertainty, "uncertainty", -1, "uncertainty, 0-10")
	cmd.MarkFlagRequired("message")
	return cmd
}

func newMergeCmd(configPath *string) *cobra.Command {
	var (
		ref         taskRef
		into        string
		message     string
		contextText string
		contextFile string
		author      string
	)

	cmd := &cobra.Command{
		Use:   "merge <branch|commit>",
		Short: "Record a merge commit",
		Long: `Creates a merge commit on the target branch whose parents are the target's
head and the source. The source is a branch name of the same task or a commit
id prefix. Context texts are not combined; supply the merged context yourself.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			body, err := readContext(cmd, contextText, contextFile)
			if err != nil {
				return err
			}
			t, err := a.resolveTask(ctx, ref)
			if err != nil {
				return err
			}
			target, err := a.branchName(ref, into)
			if err != nil {
				return err
			}

			sourceID, label, err := resolveSource(cmd, a, t.ID, args[0])
			if err != nil {
				return err
			}
			if message == "" {
				message = fmt.Sprintf("Merge %s into %s", label, target)
			}
			if author == "" {
				author = a.cfg.Author
			}

			c, err := commit.Merge(ctx, a.db, commit.MergeOpts{
				TaskID:         t.ID,
				TargetBranch:   target,
				SourceCommitID: sourceID,
				Message:        message,
				Context:        body,
				Author:         author,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", target, c.ShortID(), c.Message)
			return nil
		},
	}

	ref.bind(cmd)
	cmd.Flags().StringVar(&into, "into", "", "target branch (default: current branch)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "merge commit message")
	cmd.Flags().StringVar(&contextText, "context", "", "context text for the merge commit")
	cmd.Flags().StringVar(&contextFile, "context-file", "", "read context from a file (- for stdin)")
	cmd.Flags().StringVar(&author, "author", "", "commit author (default: config author)")
	return cmd
}

// resolveSource maps a merge source argument to a commit id. Branch names
// win over commit prefixes.
func resolveSource(cmd *cobra.Command, a *app, taskID, arg string) (id, label string, err error) {
	b, err := branch.Get(cmd.Context(), a.db, taskID, arg)
	switch {
	case err == nil:
		if b.HeadCommitID == nil {
			return "", "", errs.InvalidReference("branch %q has no commits", arg)
		}
		return *b.HeadCommitID, "branch " + b.Name, nil
	case !errors.Is(err, errs.ErrNotFound):
		return "", "", err
	}
	c, err := commit.Resolve(cmd.Context(), a.db, taskID, arg)
	if err != nil {
		return "", "", err
	}
	return c.ID, "commit " + models.ShortID(c.ID), nil
}
