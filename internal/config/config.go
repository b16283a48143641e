// internal/config/config.go
//
// This package handles configuration and the .relay directory structure.
// Every project that uses relay gets a .relay/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/relay/internal/task"
)

// Store backends the project can select.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Environment overrides honored on top of .relay/config.yaml.
const (
	EnvStoreBackend = "RELAY_STORE_BACKEND"
	EnvLLMModel     = "RELAY_LLM_MODEL"
)

const defaultProjectConfigYAML = `# relay project configuration
version: 1

# Report/signal store. backend: file or sqlite.
store:
  backend: file
  # base: /explicit/tasks/dir       (default: .relay/tasks)
  # sqlite_path: .relay/relay.db

# Timing defaults applied to plans that do not set their own runtime block.
orchestrator:
  wait_timeout: 10m
  poll_interval: 2s
  max_timeouts: 3

# OpenAI-compatible endpoint for llm worker bindings.
llm:
  model: gpt-4o-mini
  api_key_env: OPENAI_API_KEY
  # base_url: https://openrouter.ai/api/v1

# Terminal-state notifications (reads TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID).
notify:
  enabled: true

# Loopback HTTP bridge for workers running outside this process.
bridge:
  enabled: false
  host: 127.0.0.1
  port: 8787
`

// StoreConfig selects and parameterizes the report/signal backend.
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	Base       string `yaml:"base,omitempty"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// OrchestratorConfig holds the timing defaults for plans without a runtime
// block.
type OrchestratorConfig struct {
	WaitTimeout  string `yaml:"wait_timeout,omitempty"`
	PollInterval string `yaml:"poll_interval,omitempty"`
	MaxTimeouts  int    `yaml:"max_timeouts,omitempty"`
}

// LLMConfig parameterizes the llm runner endpoint.
type LLMConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	Model     string `yaml:"model,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// NotifyConfig toggles terminal-state notifications.
type NotifyConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// BridgeConfig holds the signal bridge listener settings.
type BridgeConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// ProjectConfig models .relay/config.yaml.
type ProjectConfig struct {
	Version      int                `yaml:"version"`
	Store        StoreConfig        `yaml:"store"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	LLM          LLMConfig          `yaml:"llm"`
	Notify       NotifyConfig       `yaml:"notify"`
	Bridge       BridgeConfig       `yaml:"bridge"`
}

// Config holds the runtime configuration for relay.
type Config struct {
	// ProjectDir is the directory where the user ran `relay` from.
	ProjectDir string

	// RelayProjectDir is ProjectDir/.relay.
	RelayProjectDir string

	Project ProjectConfig
}

// InitRelayDir creates the .relay directory structure in the given project
// directory.
//
// Structure created:
// .relay/
// ├── tasks/    <- Per-task reports, signals, and state
// ├── team/     <- Worker roster (workers.json)
// ├── plans/    <- Discovered plan definitions (YAML and Go)
// └── logs/     <- Component log files
func InitRelayDir(projectDir string) error {
	relayDir := filepath.Join(projectDir, task.RelayDirName)
	dirs := []string{
		filepath.Join(relayDir, "tasks"),
		filepath.Join(relayDir, "team"),
		filepath.Join(relayDir, "plans"),
		filepath.Join(relayDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(relayDir, "config.yaml"))
}

// NewConfig creates a Config populated from the project's .relay/config.yaml
// and environment overrides.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:      projectDir,
		RelayProjectDir: filepath.Join(projectDir, task.RelayDirName),
		Project:         defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigPath returns the on-disk location of the project config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.RelayProjectDir, "config.yaml")
}

// TasksBase resolves the tasks base directory: the config value wins, then
// the RELAY_TASKS_BASE environment variable, then .relay/tasks.
func (c *Config) TasksBase() string {
	if c.Project.Store.Base != "" {
		return c.Project.Store.Base
	}
	if env := os.Getenv(task.EnvTasksBase); env != "" {
		return env
	}
	return filepath.Join(c.RelayProjectDir, "tasks")
}

// SQLitePath returns the database location for the sqlite backend.
func (c *Config) SQLitePath() string {
	if c.Project.Store.SQLitePath != "" {
		return c.Project.Store.SQLitePath
	}
	return filepath.Join(c.RelayProjectDir, "relay.db")
}

// RosterPath returns the worker roster file location.
func (c *Config) RosterPath() string {
	return filepath.Join(c.RelayProjectDir, "team", "workers.json")
}

// PlansDir returns the plan discovery directory.
func (c *Config) PlansDir() string {
	return filepath.Join(c.RelayProjectDir, "plans")
}

// LogsDir returns the log directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.RelayProjectDir, "logs")
}

// JournalPath returns the task event journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "journal.jsonl")
}

// Runtime converts the orchestrator section to the plan runtime defaults.
// Values were validated at load time, so parse errors cannot occur here.
func (c *Config) Runtime() task.RuntimeConfig {
	runtime := task.RuntimeConfig{MaxTimeouts: c.Project.Orchestrator.MaxTimeouts}
	if d, err := time.ParseDuration(c.Project.Orchestrator.WaitTimeout); err == nil {
		runtime.WaitTimeout = d
	}
	if d, err := time.ParseDuration(c.Project.Orchestrator.PollInterval); err == nil {
		runtime.PollInterval = d
	}
	return runtime
}

// ApplyRuntimeDefaults fills a plan's unset runtime fields from the
// orchestrator section.
func (c *Config) ApplyRuntimeDefaults(plan *task.Plan) {
	defaults := c.Runtime()
	if plan.Runtime.WaitTimeout <= 0 {
		plan.Runtime.WaitTimeout = defaults.WaitTimeout
	}
	if plan.Runtime.PollInterval <= 0 {
		plan.Runtime.PollInterval = defaults.PollInterval
	}
	if plan.Runtime.MaxTimeouts <= 0 {
		plan.Runtime.MaxTimeouts = defaults.MaxTimeouts
	}
}

// NotifyEnabled reports whether terminal-state notifications are on.
func (c *Config) NotifyEnabled() bool {
	if c.Project.Notify.Enabled == nil {
		return true
	}
	return *c.Project.Notify.Enabled
}

func (c *Config) loadProjectConfig() error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.Project.applyEnvOverrides()
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	parsed.applyEnvOverrides()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Store:   StoreConfig{Backend: BackendFile},
		Orchestrator: OrchestratorConfig{
			WaitTimeout:  task.DefaultWaitTimeout.String(),
			PollInterval: task.DefaultPollInterval.String(),
			MaxTimeouts:  task.DefaultMaxTimeouts,
		},
		LLM: LLMConfig{
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	defaults := defaultProjectConfig()
	if pc.Version == 0 {
		pc.Version = defaults.Version
	}
	if pc.Store.Backend == "" {
		pc.Store.Backend = defaults.Store.Backend
	}
	if pc.Orchestrator.WaitTimeout == "" {
		pc.Orchestrator.WaitTimeout = defaults.Orchestrator.WaitTimeout
	}
	if pc.Orchestrator.PollInterval == "" {
		pc.Orchestrator.PollInterval = defaults.Orchestrator.PollInterval
	}
	if pc.Orchestrator.MaxTimeouts == 0 {
		pc.Orchestrator.MaxTimeouts = defaults.Orchestrator.MaxTimeouts
	}
	if pc.LLM.Model == "" {
		pc.LLM.Model = defaults.LLM.Model
	}
	if pc.LLM.APIKeyEnv == "" {
		pc.LLM.APIKeyEnv = defaults.LLM.APIKeyEnv
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Store.Backend = strings.ToLower(strings.TrimSpace(pc.Store.Backend))
	pc.Store.Base = resolvePath(base, pc.Store.Base)
	pc.Store.SQLitePath = resolvePath(base, pc.Store.SQLitePath)
	pc.LLM.BaseURL = strings.TrimSpace(pc.LLM.BaseURL)
	pc.LLM.Model = strings.TrimSpace(pc.LLM.Model)
	pc.LLM.APIKeyEnv = strings.TrimSpace(pc.LLM.APIKeyEnv)
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
}

func (pc *ProjectConfig) applyEnvOverrides() {
	if backend := strings.TrimSpace(os.Getenv(EnvStoreBackend)); backend != "" {
		pc.Store.Backend = strings.ToLower(backend)
	}
	if model := strings.TrimSpace(os.Getenv(EnvLLMModel)); model != "" {
		pc.LLM.Model = model
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Store.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("store.backend must be %q or %q", BackendFile, BackendSQLite)
	}
	if _, err := time.ParseDuration(pc.Orchestrator.WaitTimeout); err != nil {
		return fmt.Errorf("orchestrator.wait_timeout: %w", err)
	}
	if _, err := time.ParseDuration(pc.Orchestrator.PollInterval); err != nil {
		return fmt.Errorf("orchestrator.poll_interval: %w", err)
	}
	if pc.Orchestrator.MaxTimeouts < 1 {
		return fmt.Errorf("orchestrator.max_timeouts must be >= 1")
	}
	if pc.Bridge.Port < 0 || pc.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port must be a valid TCP port")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
