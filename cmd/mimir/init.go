package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/mimir/internal/config"
	"github.com/zulandar/mimir/internal/db"
	"github.com/zulandar/mimir/internal/logging"
	"github.com/zulandar/mimir/internal/state"
)

func newInitCmd(configPath *string) *cobra.Command {
	var (
		reset bool
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the mimir database",
		Long: `Creates the database if needed and migrates the project, task, branch and
commit tables. With --reset, drops all mimir data first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, *configPath, reset, yes)
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "drop all existing data before migrating")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runInit(cmd *cobra.Command, configPath string, reset, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.LogLevel, cmd.ErrOrStderr())
	fmt.Fprintf(out, "Using %s database\n", cfg.Database.Driver)

	if reset && !skipConfirm {
		if !confirmReset(cmd, cfg.Database.Driver) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	// MySQL/Dolt servers need the database created before GORM can select it.
	if cfg.Database.Driver == config.DriverMySQL {
		name, err := db.DatabaseName(cfg.Database.DSN)
		if err != nil {
			return err
		}
		adminDB, err := db.ConnectAdmin(cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer closeDB(adminDB)
		if reset {
			if err := db.DropDatabase(adminDB, name); err != nil {
				return err
			}
			fmt.Fprintf(out, "Dropped database %s\n", name)
		}
		if err := db.CreateDatabase(adminDB, name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", name)
	}

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	defer closeDB(gormDB)

	if reset && cfg.Database.Driver != config.DriverMySQL {
		if err := db.DropAll(gormDB); err != nil {
			return err
		}
		fmt.Fprintln(out, "Dropped all tables")
	}
	if reset {
		if err := state.NewFileStore(cfg.StateFile).Save(state.Values{}); err != nil {
			return err
		}
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	fmt.Fprintln(out, "\nmimir database initialized successfully.")
	return nil
}

func confirmReset(cmd *cobra.Command, driver string) bool {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	fmt.Fprintf(out, "WARNING: This will permanently delete all mimir data in the %s database.\n", driver)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}

func confirmDelete(cmd *cobra.Command, kind, name string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "Delete %s %q and everything it owns? Type \"yes\" to confirm: ", kind, name)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
