package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/mimir/internal/commit"
	"github.com/zulandar/mimir/internal/models"
	"github.com/zulandar/mimir/internal/project"
	"github.com/zulandar/mimir/internal/render"
	"github.com/zulandar/mimir/internal/task"
)

func newTaskCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks"},
		Short:   "Task management commands",
	}

	cmd.AddCommand(newTaskCreateCmd(configPath))
	cmd.AddCommand(newTaskListCmd(configPath))
	cmd.AddCommand(newTaskDeleteCmd(configPath))
	return cmd
}

func newTaskCreateCmd(configPath *string) *cobra.Command {
	var (
		projectName string
		externalID  string
		message     string
		contextText string
		contextFile string
		noSwitch    bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a task with an empty main branch",
		Long: `Creates a task in a project together with its main branch.
With --message, an initial commit is recorded on main.
The new task becomes the current selection unless --no-switch is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if projectName == "" {
				if projectName, err = a.sel.CurrentProject(); err != nil {
					return err
				}
			}
			if projectName == "" {
				return fmt.Errorf("no project selected: pass --project")
			}
			p, err := project.GetByName(ctx, a.db, projectName)
			if err != nil {
				return err
			}

			body, err := readContext(cmd, contextText, contextFile)
			if err != nil {
				return err
			}

			t, err := task.Create(ctx, a.db, task.CreateOpts{
				ProjectID:  p.ID,
				Name:       args[0],
				Author:     a.cfg.Author,
				ExternalID: externalID,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Created task %s in project %s\n", t.Name, p.Name)

			if message != "" {
				c, err := commit.Create(ctx, a.db, commit.CreateOpts{
					TaskID:  t.ID,
					Branch:  models.MainBranch,
					Message: message,
					Context: body,
					Author:  a.cfg.Author,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "[%s %s] %s\n", models.MainBranch, c.ShortID(), c.Message)
			}

			if !noSwitch {
				if err := selectTask(a, p.Name, t.Name, models.MainBranch); err != nil {
					return err
				}
				fmt.Fprintf(out, "Switched to task %s (branch %s)\n", t.Name, models.MainBranch)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectName, "project", "p", "", "project to create the task in (default: current project)")
	cmd.Flags().StringVar(&externalID, "external-id", "", "reference into an external tracker")
	cmd.Flags().StringVarP(&message, "message", "m", "", "message for an initial commit")
	cmd.Flags().StringVar(&contextText, "context", "", "context text for the initial commit")
	cmd.Flags().StringVar(&contextFile, "context-file", "", "read initial context from a file (- for stdin)")
	cmd.Flags().BoolVar(&noSwitch, "no-switch", false, "keep the current selection")
	return cmd
}

func newTaskListCmd(configPath *string) *cobra.Command {
	var projectName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with commit counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			projects, err := project.List(ctx, a.db)
			if err != nil {
				return err
			}
			names := make(map[string]string, len(projects))
			projectID := ""
			for _, p := range projects {
				names[p.ID] = p.Name
				if p.Name == projectName {
					projectID = p.ID
				}
			}
			if projectName != "" && projectID == "" {
				return fmt.Errorf("project %q not found", projectName)
			}

			tasks, err := task.List(ctx, a.db, projectID)
			if err != nil {
				return err
			}
			ids := make([]string, len(tasks))
			for i, t := range tasks {
				ids[i] = t.ID
			}
			stats, err := task.CommitStats(ctx, a.db, ids)
			if err != nil {
				return err
			}

			rows := make([]render.TaskRow, len(tasks))
			for i, t := range tasks {
				rows[i] = render.TaskRow{Task: t, Project: names[t.ProjectID], Stats: stats[t.ID]}
			}
			current, _ := a.sel.CurrentTask()
			printer(cmd).Tasks(rows, current)
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectName, "project", "p", "", "only list tasks in this project")
	return cmd
}

func newTaskDeleteCmd(configPath *string) *cobra.Command {
	var (
		projectName string
		yes         bool
	)

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a task with its branches and commits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			t, err := task.Resolve(ctx, a.db, projectName, args[0])
			if err != nil {
				return err
			}
			if !yes && !confirmDelete(cmd, "task", t.Name) {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
			if _, err := task.Delete(ctx, a.db, t.ID); err != nil {
				return err
			}
			if cur, _ := a.sel.CurrentTask(); cur == t.Name {
				a.sel.SetCurrentTask("")
				a.sel.SetCurrentBranch("")
			}
			fmt.Fprintf(out, "Deleted task %s\n", t.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectName, "project", "p", "", "project the task belongs to")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}
