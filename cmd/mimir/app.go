package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/zulandar/mimir/internal/config"
	"github.com/zulandar/mimir/internal/db"
	"github.com/zulandar/mimir/internal/logging"
	"github.com/zulandar/mimir/internal/models"
	"github.com/zulandar/mimir/internal/render"
	"github.com/zulandar/mimir/internal/state"
	"github.com/zulandar/mimir/internal/task"
	"gorm.io/gorm"
)

// app bundles what most commands need: config, database and the current
// selection.
type app struct {
	cfg *config.Config
	db  *gorm.DB
	sel state.Selection
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.LogLevel, os.Stderr)

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	return cfg, gormDB, nil
}

func openApp(configPath string) (*app, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, db: gormDB, sel: state.NewFileStore(cfg.StateFile)}, nil
}

func (a *app) close() {
	closeDB(a.db)
}

// closeDB releases the connection pool behind gdb.
func closeDB(gdb *gorm.DB) {
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.Close()
	}
}

func printer(cmd *cobra.Command) *render.Printer {
	return render.New(cmd.OutOrStdout())
}

// taskRef holds the --task/--project flags shared by commands that act on a
// task. Empty values fall back to the current selection.
type taskRef struct {
	project string
	task    string
}

func (r *taskRef) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&r.task, "task", "t", "", "task name (default: current task)")
	cmd.Flags().StringVarP(&r.project, "project", "p", "", "project the task belongs to (default: current project)")
}

func (a *app) resolveTask(ctx context.Context, r taskRef) (*models.Task, error) {
	name, projectName := r.task, r.project
	if name == "" {
		cur, err := a.sel.CurrentTask()
		if err != nil {
			return nil, err
		}
		name = cur
		if projectName == "" {
			if projectName, err = a.sel.CurrentProject(); err != nil {
				return nil, err
			}
		}
	}
	if name == "" {
		return nil, fmt.Errorf("no task selected: pass --task or run 'mimir switch <task>'")
	}
	return task.Resolve(ctx, a.db, projectName, name)
}

// branchName returns the explicit branch, else the current branch when the
// task also came from the selection, else main.
func (a *app) branchName(r taskRef, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if r.task == "" {
		cur, err := a.sel.CurrentBranch()
		if err != nil {
			return "", err
		}
		if cur != "" {
			return cur, nil
		}
	}
	return models.MainBranch, nil
}

// readContext returns the inline context, or the contents of file ("-" reads
// stdin). Supplying both is an error.
func readContext(cmd *cobra.Command, inline, file string) (string, error) {
	if file == "" {
		return inline, nil
	}
	if inline != "" {
		return "", fmt.Errorf("use either --context or --context-file, not both")
	}
	var r io.Reader
	if file == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(file)
		if err != nil {
			return "", fmt.Errorf("open context file: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read context: %w", err)
	}
	return string(data), nil
}

// metricFlag converts an unset (-1) integer flag to nil.
func metricFlag(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}
