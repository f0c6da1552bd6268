// Package config provides configuration management for libsync.
//
// Configuration is loaded from three sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (LIBSYNC_ prefix)
//  3. Config file (.libsync.yaml)
//
// The project list itself lives in a separate store, see package project.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Defaults for the watch-build-sync pipeline.
const (
	DefaultProjectsFile = "config/projects.json"
	DefaultDebounce     = 100 * time.Millisecond
	DefaultRetries      = 3
	DefaultRetryDelay   = 500 * time.Millisecond
)

// Config represents the global configuration for libsync.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat"`

	// LogFile, when set, additionally writes logs to a rotating file.
	LogFile string `mapstructure:"log-file" json:"logFile,omitempty"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet"`

	// ProjectsFile is the path of the project store.
	ProjectsFile string `mapstructure:"projects" json:"projects"`

	// Debounce is the quiet period used to coalesce raw filesystem events.
	// Zero disables debouncing.
	Debounce time.Duration `mapstructure:"debounce" json:"debounce"`

	// Retries is how many times the build output path is polled before a
	// sync is abandoned.
	Retries int `mapstructure:"retries" json:"retries"`

	// RetryDelay separates two polls of the build output path.
	RetryDelay time.Duration `mapstructure:"retry-delay" json:"retryDelay"`

	// BuildTimeout bounds a single build. Zero means no timeout.
	BuildTimeout time.Duration `mapstructure:"build-timeout" json:"buildTimeout"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load(), never read from the config itself.
	ConfigFile string `mapstructure:"-" json:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel:     LogLevelInfo,
		LogFormat:    LogFormatText,
		ProjectsFile: DefaultProjectsFile,
		Debounce:     DefaultDebounce,
		Retries:      DefaultRetries,
		RetryDelay:   DefaultRetryDelay,
	}
}

// Validate reports every invalid setting at once, joined with errors.Join.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError}, c.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel))
	}

	if !slices.Contains([]string{LogFormatText, LogFormatJSON}, c.LogFormat) {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat))
	}

	if strings.TrimSpace(c.ProjectsFile) == "" {
		errs = append(errs, errors.New("projects file path must not be empty"))
	}

	if c.Retries < 1 {
		errs = append(errs, fmt.Errorf("invalid retries %d: must be at least 1", c.Retries))
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"debounce", c.Debounce},
		{"retry delay", c.RetryDelay},
		{"build timeout", c.BuildTimeout},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("invalid %s %s: must not be negative", d.name, d.value))
		}
	}

	return errors.Join(errs...)
}

// EffectiveLogLevel is LogLevel, or "error" under Quiet.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// Load resolves the configuration for one invocation. Every call uses its own
// viper instance.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log-level", LogLevelInfo)
	v.SetDefault("log-format", LogFormatText)
	v.SetDefault("log-file", "")
	v.SetDefault("no-color", false)
	v.SetDefault("quiet", false)
	v.SetDefault("projects", DefaultProjectsFile)
	v.SetDefault("debounce", DefaultDebounce)
	v.SetDefault("retries", DefaultRetries)
	v.SetDefault("retry-delay", DefaultRetryDelay)
	v.SetDefault("build-timeout", time.Duration(0))
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("LIBSYNC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	v.SetConfigName(".libsync")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "libsync"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}

		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags binds the flags local to cmd, so a subcommand flag such as
// --debounce reaches its key, then the persistent flags of every ancestor.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}
