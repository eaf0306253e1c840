package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/codem/internal/config"
	"github.com/zulandar/codem/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		accessLog  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Codem HTTP API",
		Long: `Serves the projects, runs and copilot JSON API.

When analysis.refresh_schedule is configured, ready projects are
re-analyzed on that schedule while the server runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, accessLog)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	cmd.Flags().BoolVar(&accessLog, "access-log", false, "log every request")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, accessLog bool) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	if port <= 0 {
		port = a.cfg.Server.Port
	}
	out := cmd.OutOrStdout()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	if expr := a.cfg.Analysis.RefreshSchedule; expr != "" {
		sched, err := config.ParseSchedule(expr)
		if err != nil {
			return fmt.Errorf("refresh schedule: %w", err)
		}
		go a.projects.RunRefreshLoop(ctx, sched)
		fmt.Fprintf(out, "Re-analyzing ready projects on schedule %q\n", expr)
	}

	fmt.Fprintf(out, "Store: %s, migration backend: %s\n", a.cfg.Store.Driver, a.cfg.Migration.Endpoint)
	return server.Start(ctx, server.StartOpts{
		Projects:  a.projects,
		Runs:      a.runs,
		Copilot:   a.copilot,
		Port:      port,
		AccessLog: accessLog,
		Out:       out,
	})
}
