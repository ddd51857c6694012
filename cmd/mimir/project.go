package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/mimir/internal/project"
)

func newProjectCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Project management commands",
	}

	cmd.AddCommand(newProjectCreateCmd(configPath))
	cmd.AddCommand(newProjectListCmd(configPath))
	cmd.AddCommand(newProjectRenameCmd(configPath))
	cmd.AddCommand(newProjectMoveCmd(configPath))
	cmd.AddCommand(newProjectDeleteCmd(configPath))
	return cmd
}

func newProjectCreateCmd(configPath *string) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			parentID := ""
			if parent != "" {
				pp, err := project.GetByName(ctx, a.db, parent)
				if err != nil {
					return err
				}
				parentID = pp.ID
			}
			p, err := project.Create(ctx, a.db, args[0], parentID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", p.Name, p.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "name of the parent project")
	return cmd
}

func newProjectListCmd(configPath *string) *cobra.Command {
	var flat bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects as a tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if !flat {
				forest, err := project.Forest(ctx, a.db)
				if err != nil {
					return err
				}
				printer(cmd).Projects(forest)
				return nil
			}

			projects, err := project.List(ctx, a.db)
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Fprintln(out, "No projects found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tID\tCREATED")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.ID, p.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().BoolVar(&flat, "flat", false, "list projects in a table instead of a tree")
	return cmd
}

func newProjectRenameCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			p, err := project.GetByName(ctx, a.db, args[0])
			if err != nil {
				return err
			}
			if _, err := project.Rename(ctx, a.db, p.ID, args[1]); err != nil {
				return err
			}
			if cur, _ := a.sel.CurrentProject(); cur == args[0] {
				if err := a.sel.SetCurrentProject(args[1]); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed project %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func newProjectMoveCmd(configPath *string) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "move <name>",
		Short: "Move a project under another project",
		Long:  "Reparents a project. Without --parent the project becomes a root project.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			p, err := project.GetByName(ctx, a.db, args[0])
			if err != nil {
				return err
			}
			parentID := ""
			if parent != "" {
				pp, err := project.GetByName(ctx, a.db, parent)
				if err != nil {
					return err
				}
				parentID = pp.ID
			}
			if _, err := project.Move(ctx, a.db, p.ID, parentID); err != nil {
				return err
			}
			if parent == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Project %s is now a root project\n", p.Name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Moved project %s under %s\n", p.Name, parent)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "name of the new parent project")
	return cmd
}

func newProjectDeleteCmd(configPath *string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a project with all of its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			p, err := project.GetByName(ctx, a.db, args[0])
			if err != nil {
				return err
			}
			if !yes && !confirmDelete(cmd, "project", p.Name) {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
			if _, err := project.Delete(ctx, a.db, p.ID); err != nil {
				return err
			}
			if cur, _ := a.sel.CurrentProject(); cur == p.Name {
				a.sel.SetCurrentProject("")
				a.sel.SetCurrentTask("")
				a.sel.SetCurrentBranch("")
			}
			fmt.Fprintf(out, "Deleted project %s\n", p.Name)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}
