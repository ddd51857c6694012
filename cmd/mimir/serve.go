package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/mimir/internal/api"
	"github.com/zulandar/mimir/internal/config"
	"github.com/zulandar/mimir/internal/db"
	"github.com/zulandar/mimir/internal/logging"
	"gorm.io/gorm"
)

func newServeCmd(configPath *string) *cobra.Command {
	var (
		host   string
		port   int
		memory bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the commit graph as a JSON API",
		Long:  "Starts an HTTP server exposing projects, tasks, branches, history and commits under /api.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg    *config.Config
				gormDB *gorm.DB
				err    error
			)
			if memory {
				cfg, err = config.Load(*configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				logging.Setup(cfg.LogLevel, os.Stderr)
				gormDB, err = db.OpenMemory()
			} else {
				cfg, gormDB, err = connectFromConfig(*configPath)
			}
			if err != nil {
				return err
			}

			if host == "" {
				host = cfg.Server.Host
			}
			if port == 0 {
				port = cfg.Server.Port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return api.Start(ctx, api.StartOpts{
				DB:     gormDB,
				Host:   host,
				Port:   port,
				Author: cfg.Author,
				Out:    cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen address (default: server.host from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default: server.port from config)")
	cmd.Flags().BoolVar(&memory, "memory", false, "serve a throwaway in-memory database")
	return cmd
}
