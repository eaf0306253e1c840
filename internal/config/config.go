// Package config provides YAML-based configuration loading for Codem.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Compiled-in backend endpoints, overridable by config or environment.
const (
	DefaultMigrationEndpoint = "https://mailabs.app.n8n.cloud/webhook-test/conversion"
	DefaultCopilotEndpoint   = "https://mailabs.app.n8n.cloud/webhook-test/codem-copilot"
)

// Environment variables that override config values.
const (
	EnvMigrationEndpoint = "N8N_MIGRATION_WEBHOOK_URL"
	EnvCopilotEndpoint   = "N8N_COPILOT_WEBHOOK_URL"
	EnvGitHubToken       = "GITHUB_TOKEN"
	EnvStoreDriver       = "CODEM_STORE_DRIVER"
	EnvStorePath         = "CODEM_STORE_PATH"
	EnvStorePassword     = "CODEM_STORE_PASSWORD"
)

// Store drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Analysis providers.
const (
	ProviderMock   = "mock"
	ProviderGitHub = "github"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Config is the top-level Codem configuration, loaded from codem.yaml.
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Store     StoreConfig    `yaml:"store"`
	Migration BackendConfig  `yaml:"migration"`
	Copilot   BackendConfig  `yaml:"copilot"`
	Analysis  AnalysisConfig `yaml:"analysis"`
	Notify    NotifyConfig   `yaml:"notify"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StoreConfig selects and locates the document store.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// BackendConfig describes an external HTTP backend.
type BackendConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AnalysisConfig selects the repository analysis provider.
type AnalysisConfig struct {
	Provider        string `yaml:"provider"`
	GitHubToken     string `yaml:"github_token"`
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// NotifyConfig holds optional run-completed webhook targets.
type NotifyConfig struct {
	SlackWebhookURL     string        `yaml:"slack_webhook_url"`
	DiscordWebhookID    string        `yaml:"discord_webhook_id"`
	DiscordWebhookToken string        `yaml:"discord_webhook_token"`
	Timeout             time.Duration `yaml:"timeout"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadOptional behaves like Load but treats a missing file as an empty one,
// so every value comes from defaults and the environment.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Parse(nil)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values with non-empty environment variables.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvMigrationEndpoint); v != "" {
		c.Migration.Endpoint = v
	}
	if v := getenv(EnvCopilotEndpoint); v != "" {
		c.Copilot.Endpoint = v
	}
	if v := getenv(EnvGitHubToken); v != "" && c.Analysis.GitHubToken == "" {
		c.Analysis.GitHubToken = v
	}
	if v := getenv(EnvStoreDriver); v != "" {
		c.Store.Driver = v
	}
	if v := getenv(EnvStorePath); v != "" {
		c.Store.Path = v
	}
	if v := getenv(EnvStorePassword); v != "" {
		c.Store.Password = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverFile
	}
	switch c.Store.Driver {
	case DriverFile:
		if c.Store.Path == "" {
			c.Store.Path = "data/db.json"
		}
	case DriverSQLite:
		if c.Store.Path == "" {
			c.Store.Path = "data/codem.db"
		}
	case DriverMySQL:
		if c.Store.Host == "" {
			c.Store.Host = "127.0.0.1"
		}
		if c.Store.Port == 0 {
			c.Store.Port = 3306
		}
		if c.Store.User == "" {
			c.Store.User = "root"
		}
		if c.Store.Database == "" {
			c.Store.Database = "codem"
		}
	}
	if c.Migration.Endpoint == "" {
		c.Migration.Endpoint = DefaultMigrationEndpoint
	}
	if c.Migration.Timeout == 0 {
		c.Migration.Timeout = 60 * time.Second
	}
	if c.Copilot.Endpoint == "" {
		c.Copilot.Endpoint = DefaultCopilotEndpoint
	}
	if c.Copilot.Timeout == 0 {
		c.Copilot.Timeout = 30 * time.Second
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 10 * time.Second
	}
	if c.Analysis.Provider == "" {
		c.Analysis.Provider = ProviderMock
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	switch c.Store.Driver {
	case DriverFile, DriverSQLite, DriverMySQL:
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be one of file, sqlite, mysql", c.Store.Driver))
	}
	if c.Migration.Timeout < 0 {
		errs = append(errs, "migration.timeout must be positive")
	}
	if c.Copilot.Timeout < 0 {
		errs = append(errs, "copilot.timeout must be positive")
	}
	if c.Notify.Timeout < 0 {
		errs = append(errs, "notify.timeout must be positive")
	}
	switch c.Analysis.Provider {
	case ProviderMock, ProviderGitHub:
	default:
		errs = append(errs, fmt.Sprintf("analysis.provider %q must be one of mock, github", c.Analysis.Provider))
	}
	if c.Analysis.RefreshSchedule != "" {
		if _, err := cronParser.Parse(c.Analysis.RefreshSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("analysis.refresh_schedule: %v", err))
		}
	}
	if (c.Notify.DiscordWebhookID == "") != (c.Notify.DiscordWebhookToken == "") {
		errs = append(errs, "notify.discord_webhook_id and notify.discord_webhook_token must be set together")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
