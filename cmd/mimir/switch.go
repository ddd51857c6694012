package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/mimir/internal/branch"
	"github.com/zulandar/mimir/internal/commit"
	"github.com/zulandar/mimir/internal/models"
	"github.com/zulandar/mimir/internal/project"
	"github.com/zulandar/mimir/internal/render"
	"github.com/zulandar/mimir/internal/task"
)

// selectTask records project, task and branch as the current selection.
func selectTask(a *app, projectName, taskName, branchName string) error {
	if err := a.sel.SetCurrentProject(projectName); err != nil {
		return err
	}
	if err := a.sel.SetCurrentTask(taskName); err != nil {
		return err
	}
	return a.sel.SetCurrentBranch(branchName)
}

func newSwitchCmd(configPath *string) *cobra.Command {
	var projectName string

	cmd := &cobra.Command{
		Use:   "switch <task> [branch]",
		Short: "Change the current task and branch",
		Long: `Sets the task (and optionally branch) that other commands use by default.
The branch defaults to main and must already exist.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			t, err := task.Resolve(ctx, a.db, projectName, args[0])
			if err != nil {
				return err
			}
			bn := models.MainBranch
			if len(args) == 2 {
				bn = args[1]
			}
			if _, err := branch.Get(ctx, a.db, t.ID, bn); err != nil {
				return err
			}
			p, err := project.Get(ctx, a.db, t.ProjectID)
			if err != nil {
				return err
			}
			if err := selectTask(a, p.Name, t.Name, bn); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to task %s (project %s, branch %s)\n", t.Name, p.Name, bn)
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectName, "project", "p", "", "project the task belongs to")
	return cmd
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current task, branch and head commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			name, err := a.sel.CurrentTask()
			if err != nil {
				return err
			}
			if name == "" {
				printer(cmd).Status(render.Status{})
				return nil
			}
			t, err := a.resolveTask(ctx, taskRef{})
			if err != nil {
				return err
			}
			projectName, _ := a.sel.CurrentProject()
			bn, err := a.branchName(taskRef{}, "")
			if err != nil {
				return err
			}
			b, err := branch.Get(ctx, a.db, t.ID, bn)
			if err != nil {
				return err
			}

			st := render.Status{Project: projectName, Task: t.Name, Branch: b.Name}
			if b.HeadCommitID != nil {
				if st.Head, err = commit.Get(ctx, a.db, *b.HeadCommitID); err != nil {
					return err
				}
			}
			stats, err := task.CommitStats(ctx, a.db, []string{t.ID})
			if err != nil {
				return err
			}
			st.CommitCount = stats[t.ID].CommitCount
			printer(cmd).Status(st)
			return nil
		},
	}
}
