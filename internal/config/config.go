// Package config loads and validates specdrive configuration from the
// environment and an optional YAML config file, using viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete specdrive configuration.
type Config struct {
	Spec      SpecConfig      `mapstructure:"spec"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Run       RunConfig       `mapstructure:"run"`
	Review    ReviewConfig    `mapstructure:"review"`
	Reviewers []Reviewer      `mapstructure:"reviewers"`
	VCS       VCSConfig       `mapstructure:"vcs"`
	Store     StoreConfig     `mapstructure:"store"`
	Integrity IntegrityConfig `mapstructure:"integrity"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SpecConfig locates the workflow definition inputs and artifact outputs.
type SpecConfig struct {
	// SpecPath is the spec record file (YAML or JSON).
	SpecPath string `mapstructure:"spec_path"`
	// TodoPath is the todo record file (YAML or JSON).
	TodoPath string `mapstructure:"todo_path"`
	// ReportDir receives task report and review artifacts.
	ReportDir string `mapstructure:"report_dir"`
	// StateDir holds the durable workflow state store.
	StateDir string `mapstructure:"state_dir"`
}

// AgentConfig selects and tunes the agent backend.
type AgentConfig struct {
	// Kind selects the agent backend: "claude", "codex", or "opencode".
	Kind string `mapstructure:"kind"`
	// Model overrides the backend's default model when set.
	Model string `mapstructure:"model"`
	// Timeout bounds a single task-category agent invocation.
	Timeout time.Duration `mapstructure:"timeout"`
	// ReviewTimeout bounds a single review-category agent invocation.
	ReviewTimeout time.Duration `mapstructure:"review_timeout"`
}

// RunConfig controls the outer tick loop.
type RunConfig struct {
	// ID identifies the run; generated when empty.
	ID string `mapstructure:"id"`
	// MaxIterations bounds the number of driver ticks.
	MaxIterations int `mapstructure:"max_iterations"`
}

// ReviewConfig controls the review gate.
type ReviewConfig struct {
	// MaxRetries is the hard ceiling on remediation rounds.
	MaxRetries int `mapstructure:"max_retries"`
	// Timeout is the wall-clock limit for one review round.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Reviewer is the static configuration for one reviewer.
type Reviewer struct {
	ID    string `mapstructure:"id"`
	Title string `mapstructure:"title"`
	Focus string `mapstructure:"focus"`
}

// VCSConfig controls the version-control committer.
type VCSConfig struct {
	// Enabled turns commit/push handling on.
	Enabled bool `mapstructure:"enabled"`
	// Branch is the branch or bookmark pushed after each completed task.
	Branch string `mapstructure:"branch"`
	// RepoDir is the repository the agent works in. Defaults to cwd.
	RepoDir string `mapstructure:"repo_dir"`
}

// StoreConfig selects the state store backend.
type StoreConfig struct {
	// Backend is "file" or "postgres".
	Backend string `mapstructure:"backend"`
	// PostgresDSN is required when Backend is "postgres".
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// IntegrityConfig guards against resuming under a changed workflow definition.
type IntegrityConfig struct {
	// Fingerprint is the expected SHA-256 hex of the todo file. Empty
	// disables the check.
	Fingerprint string `mapstructure:"fingerprint"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Spec: SpecConfig{
			SpecPath:  "spec.yaml",
			TodoPath:  "todo.yaml",
			ReportDir: ".specdrive/reports",
			StateDir:  ".specdrive/state",
		},
		Agent: AgentConfig{
			Kind:          "claude",
			Timeout:       30 * time.Minute,
			ReviewTimeout: 30 * time.Minute,
		},
		Run: RunConfig{
			MaxIterations: 50,
		},
		Review: ReviewConfig{
			MaxRetries: 2,
			Timeout:    2 * time.Hour,
		},
		VCS: VCSConfig{
			Enabled: true,
		},
		Store: StoreConfig{
			Backend: "file",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// SetDefaults registers all default values with viper so they apply even
// without a config file.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("spec.spec_path", defaults.Spec.SpecPath)
	viper.SetDefault("spec.todo_path", defaults.Spec.TodoPath)
	viper.SetDefault("spec.report_dir", defaults.Spec.ReportDir)
	viper.SetDefault("spec.state_dir", defaults.Spec.StateDir)

	viper.SetDefault("agent.kind", defaults.Agent.Kind)
	viper.SetDefault("agent.model", defaults.Agent.Model)
	viper.SetDefault("agent.timeout", defaults.Agent.Timeout)
	viper.SetDefault("agent.review_timeout", defaults.Agent.ReviewTimeout)

	viper.SetDefault("run.id", defaults.Run.ID)
	viper.SetDefault("run.max_iterations", defaults.Run.MaxIterations)

	viper.SetDefault("review.max_retries", defaults.Review.MaxRetries)
	viper.SetDefault("review.timeout", defaults.Review.Timeout)

	viper.SetDefault("vcs.enabled", defaults.VCS.Enabled)
	viper.SetDefault("vcs.branch", defaults.VCS.Branch)
	viper.SetDefault("vcs.repo_dir", defaults.VCS.RepoDir)

	viper.SetDefault("store.backend", defaults.Store.Backend)
	viper.SetDefault("store.postgres_dsn", defaults.Store.PostgresDSN)

	viper.SetDefault("integrity.fingerprint", defaults.Integrity.Fingerprint)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load unmarshals the merged viper configuration and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Spec.SpecPath == "" {
		return fmt.Errorf("spec.spec_path is required")
	}
	if c.Spec.TodoPath == "" {
		return fmt.Errorf("spec.todo_path is required")
	}
	if c.Spec.ReportDir == "" {
		return fmt.Errorf("spec.report_dir is required")
	}
	if c.Spec.StateDir == "" {
		return fmt.Errorf("spec.state_dir is required")
	}
	if c.Run.MaxIterations <= 0 {
		return fmt.Errorf("run.max_iterations must be positive, got %d", c.Run.MaxIterations)
	}
	if c.Review.MaxRetries < 0 {
		return fmt.Errorf("review.max_retries must not be negative, got %d", c.Review.MaxRetries)
	}
	if c.Agent.Timeout <= 0 {
		return fmt.Errorf("agent.timeout must be positive, got %s", c.Agent.Timeout)
	}
	if c.Agent.ReviewTimeout <= 0 {
		return fmt.Errorf("agent.review_timeout must be positive, got %s", c.Agent.ReviewTimeout)
	}
	switch c.Store.Backend {
	case "file":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required when store.backend is postgres")
		}
	default:
		return fmt.Errorf("store.backend must be \"file\" or \"postgres\", got %q", c.Store.Backend)
	}
	seen := make(map[string]bool, len(c.Reviewers))
	for i, r := range c.Reviewers {
		if r.ID == "" {
			return fmt.Errorf("reviewers[%d].id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate reviewer id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}
