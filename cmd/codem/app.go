package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/zulandar/codem/internal/analysis"
	"github.com/zulandar/codem/internal/config"
	"github.com/zulandar/codem/internal/copilot"
	"github.com/zulandar/codem/internal/migration"
	"github.com/zulandar/codem/internal/notify"
	"github.com/zulandar/codem/internal/project"
	"github.com/zulandar/codem/internal/run"
	"github.com/zulandar/codem/internal/store"
)

const defaultConfigPath = "codem.yaml"

// app bundles the services every command works against.
type app struct {
	cfg      *config.Config
	store    store.Store
	projects *project.Service
	runs     *run.Service
	copilot  *copilot.Adapter
}

func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", defaultConfigPath, "path to Codem config file (optional)")
}

// loadConfig reads .env, if present, then the config file. A missing config
// file means defaults plus environment overrides.
func loadConfig(configPath string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newApp(configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	runOpts := []run.Option{run.WithNotifyTimeout(cfg.Notify.Timeout)}
	notifier, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		return nil, fmt.Errorf("notifications: %w", err)
	}
	if notifier != nil {
		runOpts = append(runOpts, run.WithNotifier(notifier))
	}

	return &app{
		cfg:      cfg,
		store:    st,
		projects: project.NewService(st, newAnalyzer(cfg.Analysis)),
		runs:     run.NewService(st, migration.NewClient(cfg.Migration.Endpoint, cfg.Migration.Timeout), runOpts...),
		copilot:  copilot.NewAdapter(st, copilot.NewClient(cfg.Copilot.Endpoint, cfg.Copilot.Timeout)),
	}, nil
}

func newAnalyzer(cfg config.AnalysisConfig) analysis.Analyzer {
	if cfg.Provider == config.ProviderGitHub {
		return analysis.NewGitHub(cfg.GitHubToken)
	}
	return analysis.Mock{}
}
