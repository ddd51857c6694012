// Package api serves the commit graph over JSON HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/mimir/internal/logging"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB     *gorm.DB
	Host   string
	Port   int
	Author string // used for commits posted without an author
	Out    io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("api: db is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8088
	}

	gin.SetMode(gin.ReleaseMode)
	router := NewRouter(opts.DB, opts.Author)

	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		host := opts.Host
		if host == "" {
			host = "localhost"
		}
		fmt.Fprintf(opts.Out, "API listening on http://%s:%d/api\n", host, opts.Port)
	}
	logging.Infof("api: listening on %s", addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(db *gorm.DB, author string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	h := &handlers{db: db, author: author}
	registerRoutes(router, h)
	return router
}
