// Package config loads fte.yaml and the environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/osqazi/AI-Employee-FTE/internal/ai"
	"github.com/osqazi/AI-Employee-FTE/internal/approval"
	"github.com/osqazi/AI-Employee-FTE/internal/executor"
	"github.com/osqazi/AI-Employee-FTE/internal/signal"
	"github.com/osqazi/AI-Employee-FTE/internal/supervisor"
	"github.com/osqazi/AI-Employee-FTE/internal/trigger"
)

const (
	// FileName is the config file looked up in the working directory.
	FileName = "fte.yaml"
	// DefaultVault is the vault directory relative to the config file.
	DefaultVault = "AI_Employee_Vault"
)

// Store backends.
const (
	BackendFolder = "folder"
	BackendSQLite = "sqlite"
)

// Environment variables that override the file.
const (
	EnvVault    = "FTE_VAULT"
	EnvLogLevel = "FTE_LOG_LEVEL"
	EnvStore    = "FTE_STORE"
	EnvEngine   = "AI_REASONING_ENGINE"
	EnvNATSURL  = "FTE_NATS_URL"
)

// StoreConfig selects the task store.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	// Path is the sqlite database file. Defaults to <vault>/fte.db.
	Path string `yaml:"path,omitempty"`
	// Mirror exports sqlite records to the vault buckets.
	Mirror bool `yaml:"mirror"`
}

// LoggingConfig configures the diagnostic logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig selects the reasoning engine CLI. Binary overrides the
// built-in engine named by Name.
type EngineConfig struct {
	Name   string   `yaml:"name"`
	Binary string   `yaml:"binary,omitempty"`
	Args   []string `yaml:"args,omitempty"`
	// Dir is the working directory of the engine. Defaults to the vault.
	Dir string `yaml:"dir,omitempty"`
}

// ExecutorConfig bounds task execution.
type ExecutorConfig struct {
	MaxIterations int `yaml:"max_iterations"`
}

// WorkflowConfig configures the approval workflow loop.
type WorkflowConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ApprovalConfig overrides the approval policy.
type ApprovalConfig struct {
	Keywords   []string `yaml:"keywords,omitempty"`
	Priorities []string `yaml:"priorities,omitempty"`
}

// TriggerConfig overrides the classification tables.
type TriggerConfig struct {
	Rules                []trigger.Rule `yaml:"rules,omitempty"`
	AmountPatterns       []string       `yaml:"amount_patterns,omitempty"`
	CounterpartyPatterns []string       `yaml:"counterparty_patterns,omitempty"`
}

// FileDropConfig configures the file-drop source.
type FileDropConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Dir      string        `yaml:"dir,omitempty"`
	Interval time.Duration `yaml:"interval"`
	Watch    bool          `yaml:"watch"`
}

// SourcesConfig configures the built-in signal sources.
type SourcesConfig struct {
	FileDrop FileDropConfig `yaml:"file_drop"`
}

// ProcessConfig is one supervised process.
type ProcessConfig struct {
	Name          string        `yaml:"name"`
	Command       []string      `yaml:"command"`
	Dir           string        `yaml:"dir,omitempty"`
	Env           []string      `yaml:"env,omitempty"`
	MaxRestarts   *int          `yaml:"max_restarts,omitempty"`
	RestartDelay  time.Duration `yaml:"restart_delay"`
	BackoffFactor float64       `yaml:"backoff_factor,omitempty"`
}

// SupervisorConfig configures the process supervisor.
type SupervisorConfig struct {
	Interval  time.Duration   `yaml:"interval"`
	Grace     time.Duration   `yaml:"grace"`
	Processes []ProcessConfig `yaml:"processes"`
}

// NATSConfig enables audit event fan-out.
type NATSConfig struct {
	URL    string `yaml:"url,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
}

// Config models fte.yaml.
type Config struct {
	Vault      string           `yaml:"vault"`
	Store      StoreConfig      `yaml:"store"`
	Logging    LoggingConfig    `yaml:"logging"`
	Engine     EngineConfig     `yaml:"engine"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Approval   ApprovalConfig   `yaml:"approval"`
	Triggers   TriggerConfig    `yaml:"triggers"`
	Sources    SourcesConfig    `yaml:"sources"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	NATS       NATSConfig       `yaml:"nats"`

	// Dir is the directory the config was loaded from.
	Dir string `yaml:"-"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Vault:    DefaultVault,
		Store:    StoreConfig{Backend: BackendFolder},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
		Engine:   EngineConfig{Name: ai.Claude.Name},
		Executor: ExecutorConfig{MaxIterations: executor.DefaultMaxIterations},
		Workflow: WorkflowConfig{Interval: approval.DefaultInterval},
		Sources: SourcesConfig{
			FileDrop: FileDropConfig{Enabled: true, Interval: signal.DefaultPollInterval, Watch: true},
		},
		Supervisor: SupervisorConfig{
			Interval: supervisor.DefaultInterval,
			Grace:    supervisor.DefaultGrace,
		},
	}
}

// LoadDotEnv loads dir/.env into the environment. Variables that are already
// set win. A missing file is not an error.
func LoadDotEnv(dir string) error {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Override adjusts a loaded config before paths are resolved.
type Override func(*Config)

// Load reads dir/fte.yaml over the defaults, applies environment overrides
// and then overrides, and validates the result. A missing file yields the
// defaults.
func Load(dir string, overrides ...Override) (*Config, error) {
	cfg := Default()
	path := filepath.Join(dir, FileName)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	for _, o := range overrides {
		o(cfg)
	}
	cfg.normalize(dir)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvVault); ok && v != "" {
		c.Vault = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvStore); ok && v != "" {
		c.Store.Backend = v
	}
	if v, ok := lookup(EnvEngine); ok && v != "" {
		c.Engine.Name = v
		c.Engine.Binary = ""
		c.Engine.Args = nil
	}
	if v, ok := lookup(EnvNATSURL); ok {
		c.NATS.URL = v
	}
}

func (c *Config) normalize(dir string) {
	c.Dir = dir
	c.Vault = resolve(dir, strings.TrimSpace(c.Vault))
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == BackendSQLite && c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.Vault, "fte.db")
	} else if c.Store.Path != "" {
		c.Store.Path = resolve(dir, c.Store.Path)
	}
	if c.Engine.Dir == "" {
		c.Engine.Dir = c.Vault
	} else {
		c.Engine.Dir = resolve(dir, c.Engine.Dir)
	}
	if c.Sources.FileDrop.Dir != "" {
		c.Sources.FileDrop.Dir = resolve(dir, c.Sources.FileDrop.Dir)
	}
	for i := range c.Supervisor.Processes {
		p := &c.Supervisor.Processes[i]
		if p.Dir != "" {
			p.Dir = resolve(dir, p.Dir)
		} else {
			p.Dir = dir
		}
	}
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Vault == "" {
		return errors.New("vault is required")
	}
	switch c.Store.Backend {
	case BackendFolder, BackendSQLite:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendFolder, BackendSQLite, c.Store.Backend)
	}
	if c.Engine.Binary == "" {
		if _, err := ai.Lookup(c.Engine.Name); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
	}
	if c.Executor.MaxIterations <= 0 {
		return errors.New("executor.max_iterations must be positive")
	}
	if c.Workflow.Interval <= 0 {
		return errors.New("workflow.interval must be positive")
	}
	if c.Sources.FileDrop.Enabled && c.Sources.FileDrop.Interval <= 0 {
		return errors.New("sources.file_drop.interval must be positive")
	}
	if c.Supervisor.Interval <= 0 {
		return errors.New("supervisor.interval must be positive")
	}
	if c.Supervisor.Grace <= 0 {
		return errors.New("supervisor.grace must be positive")
	}
	for i, p := range c.Supervisor.Processes {
		if p.MaxRestarts != nil && *p.MaxRestarts < 0 {
			return fmt.Errorf("supervisor.processes[%d]: max_restarts must not be negative", i)
		}
		if p.BackoffFactor != 0 && p.BackoffFactor < 1 {
			return fmt.Errorf("supervisor.processes[%d]: backoff_factor must be at least 1", i)
		}
	}
	if err := supervisor.Validate(c.Descriptors()); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	if _, err := c.Classifier(); err != nil {
		return fmt.Errorf("triggers: %w", err)
	}
	return nil
}

// ReasoningEngine returns the configured engine.
func (c *Config) ReasoningEngine() (ai.Engine, error) {
	if c.Engine.Binary != "" {
		name := c.Engine.Name
		if name == "" {
			name = filepath.Base(c.Engine.Binary)
		}
		return ai.Engine{Name: name, Binary: c.Engine.Binary, Args: c.Engine.Args}, nil
	}
	return ai.Lookup(c.Engine.Name)
}

// Classifier builds the trigger classifier from the configured tables.
func (c *Config) Classifier() (*trigger.Classifier, error) {
	rules := c.Triggers.Rules
	if len(rules) == 0 {
		rules = trigger.DefaultRules()
	}
	return trigger.NewClassifier(rules, c.Triggers.AmountPatterns, c.Triggers.CounterpartyPatterns)
}

// Policy builds the approval policy. Unset lists keep the defaults.
func (c *Config) Policy() approval.Policy {
	p := approval.DefaultPolicy()
	if len(c.Approval.Keywords) > 0 {
		p.Keywords = append([]string(nil), c.Approval.Keywords...)
	}
	if len(c.Approval.Priorities) > 0 {
		p.Priorities = append([]string(nil), c.Approval.Priorities...)
	}
	return p
}

// Descriptors converts the process list for the supervisor.
func (c *Config) Descriptors() []supervisor.Descriptor {
	out := make([]supervisor.Descriptor, 0, len(c.Supervisor.Processes))
	for _, p := range c.Supervisor.Processes {
		maxRestarts := supervisor.DefaultMaxRestarts
		if p.MaxRestarts != nil {
			maxRestarts = *p.MaxRestarts
		}
		factor := p.BackoffFactor
		if factor == 0 {
			factor = 1
		}
		out = append(out, supervisor.Descriptor{
			Name:          p.Name,
			Command:       append([]string(nil), p.Command...),
			Dir:           p.Dir,
			Env:           append([]string(nil), p.Env...),
			MaxRestarts:   maxRestarts,
			RestartDelay:  p.RestartDelay,
			BackoffFactor: factor,
		})
	}
	return out
}

// FileDropDir returns the drop directory, defaulting to the vault's.
func (c *Config) FileDropDir(vaultDrop string) string {
	if c.Sources.FileDrop.Dir != "" {
		return c.Sources.FileDrop.Dir
	}
	return vaultDrop
}
