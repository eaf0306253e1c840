// Package server exposes projects, runs and the copilot over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/codem/internal/copilot"
	"github.com/zulandar/codem/internal/project"
	"github.com/zulandar/codem/internal/run"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Projects  *project.Service
	Runs      *run.Service
	Copilot   *copilot.Adapter
	Port      int
	AccessLog bool
	Out       io.Writer
}

func (o StartOpts) validate() error {
	switch {
	case o.Projects == nil:
		return errors.New("server: project service is required")
	case o.Runs == nil:
		return errors.New("server: run service is required")
	case o.Copilot == nil:
		return errors.New("server: copilot adapter is required")
	}
	return nil
}

// NewRouter builds the gin engine serving the API.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	router := gin.New()
	if opts.AccessLog {
		router.Use(gin.Logger())
	}
	router.Use(gin.Recovery())
	registerRoutes(router, opts)
	return router, nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 3000
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Codem API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
