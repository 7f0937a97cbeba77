// Package settings loads the tangelo-wrapper settings from defaults, an
// optional settings.yaml, TANGELO_WRAPPER_* environment variables and
// command-line flags, in increasing order of precedence.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables that override settings
const EnvPrefix = "TANGELO_WRAPPER"

// Output formats accepted by Settings.Output
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// Settings configures the wrapper itself, not the tangelo instances
type Settings struct {
	// Tool is the command used to invoke tangelo
	Tool string `mapstructure:"tool"`
	// ProgramName is matched against process command lines
	ProgramName string `mapstructure:"program_name"`
	// DefaultConfigPaths are tried when an instance reports no config
	DefaultConfigPaths []string `mapstructure:"default_config_paths"`
	// CommandTimeout bounds each tool invocation (0 = none)
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	// StopGrace bounds the wait for a foreign process to exit
	StopGrace time.Duration `mapstructure:"stop_grace"`
	// Concurrency bounds parallel daemon status queries
	Concurrency int `mapstructure:"concurrency"`
	// LogLevel is one of debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`
	// LogFormat is one of text, json, logfmt
	LogFormat string `mapstructure:"log_format"`
	// Output is the default output format of list
	Output string `mapstructure:"output"`
	// MetricsFile receives Prometheus metrics in text format on exit
	MetricsFile string `mapstructure:"metrics_file"`
}

// Default returns the built-in settings
func Default() *Settings {
	return &Settings{
		Tool:        "tangelo",
		ProgramName: "tangelo",
		DefaultConfigPaths: []string{
			"~/.config/tangelo/tangelo.conf",
			"/etc/tangelo.conf",
		},
		StopGrace:   5 * time.Second,
		Concurrency: 4,
		LogLevel:    "warn",
		LogFormat:   "text",
		Output:      OutputTable,
	}
}

// SetDefaults registers every default with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("tool", defaults.Tool)
	v.SetDefault("program_name", defaults.ProgramName)
	v.SetDefault("default_config_paths", defaults.DefaultConfigPaths)
	v.SetDefault("command_timeout", defaults.CommandTimeout)
	v.SetDefault("stop_grace", defaults.StopGrace)
	v.SetDefault("concurrency", defaults.Concurrency)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)
	v.SetDefault("output", defaults.Output)
	v.SetDefault("metrics_file", defaults.MetricsFile)
}

// Init prepares v to read the settings file and the environment. file may
// be empty to search the default locations. A missing file is not an error.
func Init(v *viper.Viper, file string) error {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix(EnvPrefix)
	// TANGELO_WRAPPER_LOG_LEVEL for log_level
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading settings: %w", err)
	}
	return nil
}

// Load unmarshals the current settings from v and validates them
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks enumerated fields
func (s *Settings) Validate() error {
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", s.LogLevel)
	}
	switch strings.ToLower(s.LogFormat) {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("invalid log_format %q", s.LogFormat)
	}
	switch s.Output {
	case OutputTable, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("invalid output %q", s.Output)
	}
	if s.Tool == "" {
		return errors.New("tool must not be empty")
	}
	if s.CommandTimeout < 0 || s.StopGrace < 0 {
		return errors.New("durations must not be negative")
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", s.Concurrency)
	}
	return nil
}

// Dir returns the directory searched for settings.yaml
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tangelo-wrapper")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tangelo-wrapper"
	}
	return filepath.Join(home, ".config", "tangelo-wrapper")
}
