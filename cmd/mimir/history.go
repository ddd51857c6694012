package main

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/zulandar/mimir/internal/commit"
	"github.com/zulandar/mimir/internal/models"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	var (
		ref        taskRef
		branchName string
		limit      int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"log"},
		Short:   "Show the commit history of a branch",
		Long: `Lists commits reachable from the branch head, nearest first. Commits at the
same distance from the head are ordered newest first, and commits reachable
through several merge parents are shown once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			t, err := a.resolveTask(ctx, ref)
			if err != nil {
				return err
			}
			bn, err := a.branchName(ref, branchName)
			if err != nil {
				return err
			}
			entries, err := commit.History(ctx, a.db, t.ID, bn, limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if entries == nil {
					entries = []commit.Entry{}
				}
				return enc.Encode(entries)
			}
			printer(cmd).History(entries)
			return nil
		},
	}

	ref.bind(cmd)
	cmd.Flags().StringVarP(&branchName, "branch", "b", "", "branch to show (default: current branch)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of commits (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newShowCmd(configPath *string) *cobra.Command {
	var ref taskRef

	cmd := &cobra.Command{
		Use:   "show <commit>",
		Short: "Show a commit with its full context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			// Only scope the prefix search when a task was named explicitly.
			taskID := ""
			if ref.task != "" {
				t, err := a.resolveTask(ctx, ref)
				if err != nil {
					return err
				}
				taskID = t.ID
			}
			c, err := commit.Resolve(ctx, a.db, taskID, args[0])
			if err != nil {
				return err
			}
			parents, err := commit.Parents(ctx, a.db, c.ID)
			if err != nil {
				return err
			}
			printer(cmd).Commit(c, parents)
			return nil
		},
	}

	ref.bind(cmd)
	return cmd
}

func newContextCmd(configPath *string) *cobra.Command {
	var (
		ref        taskRef
		branchName string
		all        bool
		reverse    bool
	)

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Print a task's context across commits",
		Long: `Concatenates the context of every commit on a branch, oldest first.
With --all, every commit of the task is included regardless of branch.
With --reverse, the newest commit comes first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			t, err := a.resolveTask(ctx, ref)
			if err != nil {
				return err
			}

			if all {
				commits, err := commit.ListForTask(ctx, a.db, t.ID)
				if err != nil {
					return err
				}
				if reverse {
					slices.Reverse(commits)
				}
				printer(cmd).Context(t.Name, commits)
				return nil
			}

			bn, err := a.branchName(ref, branchName)
			if err != nil {
				return err
			}
			entries, err := commit.History(ctx, a.db, t.ID, bn, 0)
			if err != nil {
				return err
			}
			commits := make([]models.Commit, 0, len(entries))
			for i := len(entries) - 1; i >= 0; i-- {
				commits = append(commits, entries[i].Commit)
			}
			if reverse {
				slices.Reverse(commits)
			}
			printer(cmd).Context(fmt.Sprintf("%s@%s", t.Name, bn), commits)
			return nil
		},
	}

	ref.bind(cmd)
	cmd.Flags().StringVarP(&branchName, "branch", "b", "", "branch to read (default: current branch)")
	cmd.Flags().BoolVar(&all, "all", false, "include every commit of the task")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "show newest first")
	return cmd
}
