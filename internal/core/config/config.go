// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kusari-oss/deploymate/internal/core/format"
	"gopkg.in/yaml.v3"
)

// Constants for default paths
const (
	DefaultConfigDir      = ".deploymate"
	DefaultConfigFileName = "config.yaml"
	DefaultAPIURL         = "http://localhost:8080"
	DefaultHistorySpec    = "@every 30s"

	// HomeEnv relocates the whole DeployMate directory, mostly for tests
	HomeEnv = "DEPLOYMATE_HOME"
)

// Environment overrides, applied after the config file
const (
	EnvAPIURL      = "DEPLOYMATE_API_URL"
	EnvLogLevel    = "DEPLOYMATE_LOG_LEVEL"
	EnvGithubToken = "DEPLOYMATE_GITHUB_TOKEN"
	EnvRequestRate = "DEPLOYMATE_REQUEST_RATE"
)

// Config holds the global application configuration
type Config struct {
	APIURL    string `yaml:"api_url" json:"api_url" toml:"api_url" validate:"required,url"`
	LogLevel  string `yaml:"log_level" json:"log_level" toml:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat string `yaml:"log_format" json:"log_format" toml:"log_format" validate:"oneof=auto console json"`
	Output    string `yaml:"output" json:"output" toml:"output" validate:"oneof=text yaml json"`

	// Milliseconds a toast stays visible when the caller gives no duration
	ToastDurationMS int `yaml:"toast_duration_ms" json:"toast_duration_ms" toml:"toast_duration_ms" validate:"gte=0"`
	// Cron spec for history refresh, e.g. "@every 30s"
	HistoryInterval string `yaml:"history_interval" json:"history_interval" toml:"history_interval" validate:"required"`
	// Requests per second towards the backend, 0 disables limiting
	RequestRate           float64 `yaml:"request_rate" json:"request_rate" toml:"request_rate" validate:"gte=0"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds" json:"request_timeout_seconds" toml:"request_timeout_seconds" validate:"gte=1"`
	TreeRevealIntervalMS  int     `yaml:"tree_reveal_interval_ms" json:"tree_reveal_interval_ms" toml:"tree_reveal_interval_ms" validate:"gte=0"`

	IgnorePatterns  []string `yaml:"ignore_patterns" json:"ignore_patterns" toml:"ignore_patterns"`
	DefaultRegistry string   `yaml:"default_registry" json:"default_registry" toml:"default_registry" validate:"required"`
	DefaultStrategy string   `yaml:"default_strategy" json:"default_strategy" toml:"default_strategy" validate:"oneof=UPDATE_IF_EXISTS FAIL_IF_EXISTS CREATE_NEW_ALWAYS"`

	// Optional, enables `ci verify` against GitHub
	GithubToken    string `yaml:"github_token,omitempty" json:"github_token,omitempty" toml:"github_token,omitempty"`
	BrowserCommand string `yaml:"browser_command,omitempty" json:"browser_command,omitempty" toml:"browser_command,omitempty"`
	CallbackPort   int    `yaml:"callback_port" json:"callback_port" toml:"callback_port" validate:"gte=0,lte=65535"`
}

// NewDefaultConfig creates a default configuration
func NewDefaultConfig() *Config {
	return &Config{
		APIURL:                DefaultAPIURL,
		LogLevel:              "info",
		LogFormat:             "auto",
		Output:                format.Text,
		ToastDurationMS:       3000,
		HistoryInterval:       DefaultHistorySpec,
		RequestRate:           10,
		RequestTimeoutSeconds: 30,
		TreeRevealIntervalMS:  0,
		IgnorePatterns:        []string{".git/", "node_modules/", "target/", "build/", "dist/"},
		DefaultRegistry:       "ghcr.io",
		DefaultStrategy:       "UPDATE_IF_EXISTS",
	}
}

// ExpandPathWithTilde expands ~ to user home directory.
// It respects the DEPLOYMATE_HOME environment variable.
func ExpandPathWithTilde(path string) string {
	if path == "~" {
		if home := getHomeDir(); home != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home := getHomeDir(); home != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func getHomeDir() string {
	if h := os.Getenv(HomeEnv); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

// DataDir returns ~/.deploymate, the directory holding config, local storage and caches
func DataDir() (string, error) {
	home := getHomeDir()
	if home == "" {
		return "", fmt.Errorf("could not determine home directory")
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// GlobalConfigFilePath returns the absolute path to the global config file
func GlobalConfigFilePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFileName), nil
}

// LoadConfig starts from defaults, merges the global config file (or
// pathOverride when set), applies environment overrides and validates the
// result. A missing config file is not an error.
func LoadConfig(pathOverride string) (*Config, error) {
	cfg := NewDefaultConfig()

	path := ExpandPathWithTilde(pathOverride)
	if path == "" {
		var err error
		path, err = GlobalConfigFilePath()
		if err != nil {
			return nil, err
		}
	}

	fileCfg, err := LoadConfigFile(path)
	switch {
	case err == nil:
		mergeConfigs(cfg, fileCfg)
	case errors.Is(err, os.ErrNotExist) && pathOverride == "":
	default:
		return nil, fmt.Errorf("could not load config file '%s': %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads a configuration from a specific file path.
// YAML, JSON and TOML are accepted.
func LoadConfigFile(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path cannot be empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := format.ParseFile(path, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// mergeConfigs merges source config into target config.
// Only non-zero values from source override target.
func mergeConfigs(target, source *Config) {
	if source.APIURL != "" {
		target.APIURL = source.APIURL
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.LogFormat != "" {
		target.LogFormat = source.LogFormat
	}
	if source.Output != "" {
		target.Output = source.Output
	}
	if source.ToastDurationMS != 0 {
		target.ToastDurationMS = source.ToastDurationMS
	}
	if source.HistoryInterval != "" {
		target.HistoryInterval = source.HistoryInterval
	}
	if source.RequestRate != 0 {
		target.RequestRate = source.RequestRate
	}
	if source.RequestTimeoutSeconds != 0 {
		target.RequestTimeoutSeconds = source.RequestTimeoutSeconds
	}
	if source.TreeRevealIntervalMS != 0 {
		target.TreeRevealIntervalMS = source.TreeRevealIntervalMS
	}
	if source.IgnorePatterns != nil {
		target.IgnorePatterns = source.IgnorePatterns
	}
	if source.DefaultRegistry != "" {
		target.DefaultRegistry = source.DefaultRegistry
	}
	if source.DefaultStrategy != "" {
		target.DefaultStrategy = source.DefaultStrategy
	}
	if source.GithubToken != "" {
		target.GithubToken = source.GithubToken
	}
	if source.BrowserCommand != "" {
		target.BrowserCommand = source.BrowserCommand
	}
	if source.CallbackPort != 0 {
		target.CallbackPort = source.CallbackPort
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv(EnvGithubToken); v != "" {
		cfg.GithubToken = v
	}
	if v := os.Getenv(EnvRequestRate); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvRequestRate, v, err)
		}
		cfg.RequestRate = rate
	}
	return nil
}

// SaveGlobalConfig writes the configuration to the global config path
func SaveGlobalConfig(cfg *Config) error {
	globalPath, err := GlobalConfigFilePath()
	if err != nil {
		return fmt.Errorf("could not determine global config path for saving: %w", err)
	}

	globalDir := filepath.Dir(globalPath)
	if err := os.MkdirAll(globalDir, 0700); err != nil {
		return fmt.Errorf("error creating global config directory '%s': %w", globalDir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling global config: %w", err)
	}

	if err := os.WriteFile(globalPath, data, 0600); err != nil {
		return fmt.Errorf("error writing global config file '%s': %w", globalPath, err)
	}
	return nil
}
