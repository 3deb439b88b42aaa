// Package config loads speckit settings from config files, environment
// variables, and defaults. Precedence (highest first): command-line flags
// bound by the CLI, SPECKIT_* environment variables, the config file,
// built-in defaults.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/speckit-dev/speckit/internal/errors"
)

// Config is the top-level speckit configuration.
type Config struct {
	// MaxParallel caps how many tasks run concurrently within a batch.
	MaxParallel int `mapstructure:"max_parallel"`
	// FailFast stops the run at the first failed task.
	FailFast bool `mapstructure:"fail_fast"`
	// BestEffort keeps later phases running after earlier failures,
	// skipping only tasks whose dependencies failed.
	BestEffort bool `mapstructure:"best_effort"`
	// StoryStrictPriority makes higher-priority story phases hard
	// prerequisites of later ones instead of independently schedulable.
	StoryStrictPriority bool `mapstructure:"story_strict_priority"`
	// ChecklistPolicy is "warn", "block", or "skip".
	ChecklistPolicy string `mapstructure:"checklist_policy"`
	// TaskTimeout bounds a single task execution.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// JournalPath overrides where the run ledger lives. Relative paths
	// resolve against the repository root.
	JournalPath string `mapstructure:"journal_path"`

	Executor ExecutorConfig `mapstructure:"executor"`
	Log      LogConfig      `mapstructure:"log"`
}

// ExecutorConfig selects and parameterizes the task executor.
type ExecutorConfig struct {
	// Kind is "claude", "script", or "dryrun".
	Kind string `mapstructure:"kind"`
	// Command is the script executor's binary. Required for kind "script".
	Command string `mapstructure:"command"`
	// Args are passed to the command before the task ID.
	Args []string `mapstructure:"args"`
	// Model overrides the claude executor's model.
	Model string `mapstructure:"model"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MaxParallel:     4,
		FailFast:        false,
		BestEffort:      false,
		ChecklistPolicy: "warn",
		TaskTimeout:     30 * time.Minute,
		JournalPath:     filepath.Join(".speckit", "runs.db"),
		Executor: ExecutorConfig{
			Kind: "claude",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Options controls where Load looks for configuration.
type Options struct {
	// File is an explicit config file path. When set, a missing or
	// malformed file is an error.
	File string
	// WorkDir anchors the project config search (.speckit/config.yaml).
	// Empty means the current directory.
	WorkDir string
}

// Load builds the configuration from defaults, the config file, and
// SPECKIT_* environment variables, then validates it.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		workDir := opts.WorkDir
		if workDir == "" {
			workDir = "."
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(workDir, ".speckit"))
		v.AddConfigPath(userConfigDir())
	}

	v.SetEnvPrefix("SPECKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if opts.File != "" {
			return nil, fmt.Errorf("reading config %s: %w", opts.File, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// No config file anywhere on the search path: defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("max_parallel", d.MaxParallel)
	v.SetDefault("fail_fast", d.FailFast)
	v.SetDefault("best_effort", d.BestEffort)
	v.SetDefault("story_strict_priority", d.StoryStrictPriority)
	v.SetDefault("checklist_policy", d.ChecklistPolicy)
	v.SetDefault("task_timeout", d.TaskTimeout)
	v.SetDefault("journal_path", d.JournalPath)
	v.SetDefault("executor.kind", d.Executor.Kind)
	v.SetDefault("executor.command", d.Executor.Command)
	v.SetDefault("executor.args", d.Executor.Args)
	v.SetDefault("executor.model", d.Executor.Model)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
}

// userConfigDir returns the per-user config directory, honoring
// XDG_CONFIG_HOME.
func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "speckit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".speckit"
	}
	return filepath.Join(home, ".config", "speckit")
}

// Validate checks field values and cross-field constraints.
func (c *Config) Validate() error {
	if c.MaxParallel < 1 {
		return errors.NewValidationError("max_parallel", fmt.Sprint(c.MaxParallel), "must be at least 1")
	}
	if c.TaskTimeout <= 0 {
		return errors.NewValidationError("task_timeout", c.TaskTimeout.String(), "must be positive")
	}
	switch c.ChecklistPolicy {
	case "", "warn", "block", "skip":
	default:
		return errors.NewValidationError("checklist_policy", c.ChecklistPolicy, `must be "warn", "block", or "skip"`)
	}
	if c.FailFast && c.BestEffort {
		return errors.NewValidationError("fail_fast", "true", "cannot be combined with best_effort")
	}
	switch c.Executor.Kind {
	case "", "claude", "script", "dryrun":
	default:
		return errors.NewValidationError("executor.kind", c.Executor.Kind, `must be "claude", "script", or "dryrun"`)
	}
	if c.Executor.Kind == "script" && c.Executor.Command == "" {
		return errors.NewValidationError("executor.command", "", `required when executor.kind is "script"`)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return errors.NewValidationError("log.level", c.Log.Level, `must be "debug", "info", "warn", or "error"`)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return errors.NewValidationError("log.format", c.Log.Format, `must be "console" or "json"`)
	}
	return nil
}

// ResolveJournalPath resolves the journal path against the repository
// root when it is relative.
func (c *Config) ResolveJournalPath(repoRoot string) string {
	if filepath.IsAbs(c.JournalPath) {
		return c.JournalPath
	}
	return filepath.Join(repoRoot, c.JournalPath)
}
