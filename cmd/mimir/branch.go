package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/mimir/internal/branch"
	"github.com/zulandar/mimir/internal/commit"
	"github.com/zulandar/mimir/internal/models"
)

func newBranchCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "branch",
		Aliases: []string{"branches"},
		Short:   "Branch management commands",
	}

	cmd.AddCommand(newBranchListCmd(configPath))
	cmd.AddCommand(newBranchCreateCmd(configPath))
	cmd.AddCommand(newBranchDeleteCmd(configPath))
	cmd.AddCommand(newBranchRenameCmd(configPath))
	return cmd
}

func newBranchListCmd(configPath *string) *cobra.Command {
	var ref taskRef

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the branches of a task",
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
			branches, err := branch.List(ctx, a.db, t.ID)
			if err != nil {
				return err
			}
			current, err := a.branchName(ref, "")
			if err != nil {
				return err
			}
			printer(cmd).Branches(branches, current)
			return nil
		},
	}

	ref.bind(cmd)
	return cmd
}

func newBranchCreateCmd(configPath *string) *cobra.Command {
	var (
		ref    taskRef
		from   string
		at     string
		doSwap bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a branch",
		Long: `Creates a branch in a task. By default the new branch starts at the head of
the current branch. Use --from to fork another branch, or --at to start at a
specific commit. No commit is created.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if from != "" && at != "" {
				return fmt.Errorf("use either --from or --at, not both")
			}
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			t, err := a.resolveTask(ctx, ref)
			if err != nil {
				return err
			}

			var b *models.Branch
			if at != "" {
				c, err := commit.Resolve(ctx, a.db, t.ID, at)
				if err != nil {
					return err
				}
				b, err = branch.Create(ctx, a.db, t.ID, args[0], c.ID)
				if err != nil {
					return err
				}
			} else {
				src, err := a.branchName(ref, from)
				if err != nil {
					return err
				}
				b, err = branch.CreateFromBranch(ctx, a.db, t.ID, args[0], src)
				if err != nil {
					return err
				}
			}

			head := "empty"
			if b.HeadCommitID != nil {
				head = models.ShortID(*b.HeadCommitID)
			}
			fmt.Fprintf(out, "Created branch %s at %s\n", b.Name, head)

			if doSwap {
				if err := a.sel.SetCurrentBranch(b.Name); err != nil {
					return err
				}
				fmt.Fprintf(out, "Switched to branch %s\n", b.Name)
			}
			return nil
		},
	}

	ref.bind(cmd)
	cmd.Flags().StringVar(&from, "from", "", "branch to fork from (default: current branch)")
	cmd.Flags().StringVar(&at, "at", "", "commit id or prefix to start the branch at")
	cmd.Flags().BoolVarP(&doSwap, "switch", "s", false, "make the new branch current")
	return cmd
}

func newBranchDeleteCmd(configPath *string) *cobra.Command {
	var ref taskRef

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a branch",
		Long:  "Deletes a branch pointer. Commits it pointed to are kept. The main branch cannot be deleted.",
		Args:  cobra.ExactArgs(1),
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
			if err := branch.Delete(ctx, a.db, t.ID, args[0]); err != nil {
				return err
			}
			if ref.task == "" {
				if cur, _ := a.sel.CurrentBranch(); cur == args[0] {
					if err := a.sel.SetCurrentBranch(models.MainBranch); err != nil {
						return err
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted branch %s\n", args[0])
			return nil
		},
	}

	ref.bind(cmd)
	return cmd
}

func newBranchRenameCmd(configPath *string) *cobra.Command {
	var ref taskRef

	cmd := &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a branch",
		Args:  cobra.ExactArgs(2),
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
			if _, err := branch.Rename(ctx, a.db, t.ID, args[0], args[1]); err != nil {
				return err
			}
			if ref.task == "" {
				if cur, _ := a.sel.CurrentBranch(); cur == args[0] {
					if err := a.sel.SetCurrentBranch(args[1]); err != nil {
						return err
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed branch %s to %s\n", args[0], args[1])
			return nil
		},
	}

	ref.bind(cmd)
	return cmd
}
