package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "mimir",
		Short:        "Mimir: branchable context history for tasks",
		Long:         "Mimir records context snapshots for tasks as commits on named branches, with merges and history.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mimir.yaml", "path to mimir config file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newInitCmd(&configPath))
	cmd.AddCommand(newProjectCmd(&configPath))
	cmd.AddCommand(newTaskCmd(&configPath))
	cmd.AddCommand(newBranchCmd(&configPath))
	cmd.AddCommand(newCommitCmd(&configPath))
	cmd.AddCommand(newMergeCmd(&configPath))
	cmd.AddCommand(newHistoryCmd(&configPath))
	cmd.AddCommand(newShowCmd(&configPath))
	cmd.AddCommand(newContextCmd(&configPath))
	cmd.AddCommand(newSwitchCmd(&configPath))
	cmd.AddCommand(newStatusCmd(&configPath))
	cmd.AddCommand(newServeCmd(&configPath))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mimir %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
