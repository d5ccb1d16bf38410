// Package config handles configuration loading and management for maestro.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/maestro/internal/router"
	"github.com/ShayCichocki/maestro/pkg/models"
)

// Provider values accepted in BackendConfig.Provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderEcho      = "echo"
)

// Journal drivers accepted in JournalConfig.Driver.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// Config holds all configuration for maestro.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Backends  []BackendConfig `mapstructure:"backends"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Log       LogConfig       `mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// BaseURL overrides the API endpoint for every anthropic backend.
	BaseURL string `mapstructure:"base_url"`
}

// BackendConfig declares one backend to register.
type BackendConfig struct {
	ID       string `mapstructure:"id"`
	Provider string `mapstructure:"provider"`
	// Model is the Claude model for anthropic and bedrock backends.
	Model      string `mapstructure:"model"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
	MaxHistory int    `mapstructure:"max_history"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	// Prefix and Delay configure echo backends.
	Prefix string        `mapstructure:"prefix"`
	Delay  time.Duration `mapstructure:"delay"`
}

// RoutingConfig holds router settings.
type RoutingConfig struct {
	// Default is the backend id used when no rule matches.
	Default string `mapstructure:"default"`
	// RulesFile is a YAML rules file, watched for changes. Its rules are
	// appended after Rules.
	RulesFile string            `mapstructure:"rules_file"`
	Rules     []router.RuleSpec `mapstructure:"rules"`
	// Collaborators is the size of the backend set picked for collaborative
	// tasks that name no backends.
	Collaborators int `mapstructure:"collaborators"`
}

// StreamConfig holds stream session settings.
type StreamConfig struct {
	// ExpectedChunks is the chunk count at which progress reaches 0.99.
	ExpectedChunks int `mapstructure:"expected_chunks"`
}

// JournalConfig holds run journal settings.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Driver  string `mapstructure:"driver"`
}

// TimeoutsConfig holds timeout settings.
type TimeoutsConfig struct {
	// Task bounds every CLI task execution. Zero means no deadline.
	Task time.Duration `mapstructure:"task"`
}

// LogConfig holds debug log settings.
type LogConfig struct {
	// Path is the debug log file. Empty disables debug logging.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, MAESTRO_*)
// 2. Project config (.maestro.yaml in current directory or parent)
// 3. User config (~/.config/maestro/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		// Merge project config (takes precedence)
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return decode(v)
}

// LoadFromPath loads configuration from a specific file on top of the defaults.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return decode(v)
}

// newViper returns a viper instance with defaults and environment bindings.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	// Environment variable overrides
	v.SetEnvPrefix("MAESTRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map specific environment variables
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.base_url", "ANTHROPIC_BASE_URL")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Journal.Path = expandEnv(cfg.Journal.Path)
	cfg.Log.Path = expandEnv(cfg.Log.Path)
	cfg.Routing.RulesFile = expandEnv(cfg.Routing.RulesFile)

	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return SaveToPath(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveToPath writes the configuration to path.
func SaveToPath(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)

	backends := make([]map[string]any, len(cfg.Backends))
	for i, b := range cfg.Backends {
		backends[i] = b.settings()
	}
	rules := make([]map[string]any, len(cfg.Routing.Rules))
	for i, r := range cfg.Routing.Rules {
		rules[i] = ruleSettings(r)
	}

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.base_url", cfg.Anthropic.BaseURL)
	v.Set("backends", backends)
	v.Set("routing.default", cfg.Routing.Default)
	v.Set("routing.rules_file", cfg.Routing.RulesFile)
	v.Set("routing.rules", rules)
	v.Set("routing.collaborators", cfg.Routing.Collaborators)
	v.Set("stream.expected_chunks", cfg.Stream.ExpectedChunks)
	v.Set("journal.enabled", cfg.Journal.Enabled)
	v.Set("journal.path", cfg.Journal.Path)
	v.Set("journal.driver", cfg.Journal.Driver)
	v.Set("timeouts.task", cfg.Timeouts.Task.String())
	v.Set("log.path", cfg.Log.Path)

	return v.WriteConfig()
}

func (b BackendConfig) settings() map[string]any {
	m := map[string]any{
		"id":       b.ID,
		"provider": b.Provider,
	}
	set := func(key string, value any, zero bool) {
		if !zero {
			m[key] = value
		}
	}
	set("model", b.Model, b.Model == "")
	set("max_tokens", b.MaxTokens, b.MaxTokens == 0)
	set("max_history", b.MaxHistory, b.MaxHistory == 0)
	set("aws_region", b.AWSRegion, b.AWSRegion == "")
	set("aws_profile", b.AWSProfile, b.AWSProfile == "")
	set("prefix", b.Prefix, b.Prefix == "")
	set("delay", b.Delay.String(), b.Delay == 0)
	return m
}

func ruleSettings(r router.RuleSpec) map[string]any {
	m := map[string]any{"backend": r.Backend}
	if r.Name != "" {
		m["name"] = r.Name
	}
	if len(r.Types) > 0 {
		m["types"] = r.Types
	}
	if len(r.Keywords) > 0 {
		m["keywords"] = r.Keywords
	}
	if r.LongerThan > 0 {
		m["longer_than"] = r.LongerThan
	}
	if r.ShorterThan > 0 {
		m["shorter_than"] = r.ShorterThan
	}
	if len(r.Metadata) > 0 {
		m["metadata"] = r.Metadata
	}
	return m
}

// Validate checks the configuration for errors that would only surface at
// request time otherwise. Failures are *models.ConfigurationError.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return &models.ConfigurationError{Reason: "no backends configured"}
	}

	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if b.ID == "" {
			return &models.ConfigurationError{Reason: "backend id is required"}
		}
		if seen[b.ID] {
			return &models.ConfigurationError{BackendID: b.ID, Reason: "duplicate backend id"}
		}
		seen[b.ID] = true

		switch b.Provider {
		case ProviderAnthropic, ProviderBedrock, ProviderEcho:
		default:
			return &models.ConfigurationError{BackendID: b.ID, Reason: fmt.Sprintf("unknown provider %q", b.Provider)}
		}
	}

	if c.Routing.Default != "" && !seen[c.Routing.Default] {
		return &models.ConfigurationError{BackendID: c.Routing.Default, Reason: "routing.default names an unknown backend"}
	}
	for _, spec := range c.Routing.Rules {
		if !seen[spec.Backend] {
			return &models.ConfigurationError{BackendID: spec.Backend, Reason: fmt.Sprintf("rule %q names an unknown backend", spec.Name)}
		}
	}

	if c.Journal.Enabled {
		switch c.Journal.Driver {
		case "", DriverModernc, DriverMattn:
		default:
			return &models.ConfigurationError{Reason: fmt.Sprintf("unknown journal driver %q", c.Journal.Driver)}
		}
	}

	if c.Timeouts.Task < 0 {
		return &models.ConfigurationError{Reason: "timeouts.task must not be negative"}
	}
	return nil
}

// DefaultBackend returns the routing default, falling back to the first backend.
func (c *Config) DefaultBackend() string {
	if c.Routing.Default != "" {
		return c.Routing.Default
	}
	if len(c.Backends) > 0 {
		return c.Backends[0].ID
	}
	return ""
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Anthropic defaults
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "")

	// A single offline backend so a fresh install works without credentials
	v.SetDefault("backends", []map[string]any{
		{"id": "echo", "provider": ProviderEcho},
	})

	// Routing defaults
	v.SetDefault("routing.default", "")
	v.SetDefault("routing.rules_file", "")
	v.SetDefault("routing.collaborators", 2)

	// Stream defaults
	v.SetDefault("stream.expected_chunks", 64)

	// Journal defaults
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "")
	v.SetDefault("journal.driver", DriverModernc)

	// Timeout defaults
	v.SetDefault("timeouts.task", "5m")

	// Log defaults
	v.SetDefault("log.path", "")
}

// getUserConfigDir returns the XDG config directory for maestro.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "maestro")
	}

	// Fall back to ~/.config/maestro
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "maestro")
	}
	return filepath.Join(home, ".config", "maestro")
}

// findProjectConfig searches for .maestro.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".maestro.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Backends: []BackendConfig{
			{ID: "echo", Provider: ProviderEcho},
		},
		Routing: RoutingConfig{
			Collaborators: 2,
		},
		Stream: StreamConfig{
			ExpectedChunks: 64,
		},
		Journal: JournalConfig{
			Enabled: true,
			Driver:  DriverModernc,
		},
		Timeouts: TimeoutsConfig{
			Task: 5 * time.Minute,
		},
	}
}
