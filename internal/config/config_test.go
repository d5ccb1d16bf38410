package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/maestro/internal/router"
	"github.com/ShayCichocki/maestro/pkg/models"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Len(t, cfg.Backends, 1)
	assert.Equal(t, ProviderEcho, cfg.Backends[0].Provider)
	assert.Equal(t, 2, cfg.Routing.Collaborators)
	assert.Equal(t, 64, cfg.Stream.ExpectedChunks)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, DriverModernc, cfg.Journal.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Timeouts.Task)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromPath(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	writeFile(t, configPath, `
anthropic:
  api_key: test-key
backends:
  - id: fast
    provider: anthropic
    model: claude-3-5-haiku-20241022
    max_tokens: 1024
  - id: heavy
    provider: bedrock
    model: claude-sonnet-4-20250514
    aws_region: us-west-2
  - id: local
    provider: echo
    prefix: "echo: "
    delay: 20ms
routing:
  default: fast
  collaborators: 3
  rules:
    - name: long-inputs
      backend: heavy
      longer_than: 1000
    - backend: local
      types: [test]
journal:
  enabled: false
  driver: sqlite3
timeouts:
  task: 90s
log:
  path: /tmp/maestro.log
`)

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Anthropic.APIKey)

	require.Len(t, cfg.Backends, 3)
	assert.EqualValues(t, 1024, cfg.Backends[0].MaxTokens)
	assert.Equal(t, "us-west-2", cfg.Backends[1].AWSRegion)
	assert.Equal(t, "echo: ", cfg.Backends[2].Prefix)
	assert.Equal(t, 20*time.Millisecond, cfg.Backends[2].Delay)

	assert.Equal(t, "fast", cfg.Routing.Default)
	assert.Equal(t, 3, cfg.Routing.Collaborators)
	require.Len(t, cfg.Routing.Rules, 2)
	assert.Equal(t, 1000, cfg.Routing.Rules[0].LongerThan)
	assert.Equal(t, "heavy", cfg.Routing.Rules[0].Backend)
	assert.Equal(t, []string{"test"}, cfg.Routing.Rules[1].Types)

	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, DriverMattn, cfg.Journal.Driver)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.Task)
	assert.Equal(t, "/tmp/maestro.log", cfg.Log.Path)

	// Unset keys keep their defaults
	assert.Equal(t, 64, cfg.Stream.ExpectedChunks)

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"fast"}, cfg.AnthropicBackends())
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	userDir := filepath.Join(xdg, "maestro")
	require.NoError(t, os.MkdirAll(userDir, 0755))
	writeFile(t, filepath.Join(userDir, "config.yaml"), `
anthropic:
  api_key: user-key
timeouts:
  task: 1m
`)

	project := t.TempDir()
	nested := filepath.Join(project, "sub", "dir")
	require.NoError(t, os.MkdirAll(nested, 0755))
	writeFile(t, filepath.Join(project, ".maestro.yaml"), `
timeouts:
  task: 2m
`)
	t.Chdir(nested)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "user-key", cfg.Anthropic.APIKey)
	assert.Equal(t, 2*time.Minute, cfg.Timeouts.Task)
	assert.NotEmpty(t, GetProjectConfigPath())
}

func TestLoad_EnvironmentWins(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("MAESTRO_TIMEOUTS_TASK", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Anthropic.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Task)
}

func TestSaveToPath_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Backends = append(cfg.Backends, BackendConfig{ID: "claude", Provider: ProviderAnthropic, Model: "claude-sonnet-4-20250514", MaxTokens: 2048})
	cfg.Routing.Default = "claude"
	cfg.Routing.Rules = []router.RuleSpec{{Name: "tests", Backend: "echo", Keywords: []string{"ping"}}}
	cfg.Timeouts.Task = 45 * time.Second

	require.NoError(t, SaveToPath(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)

	require.Len(t, loaded.Backends, 2)
	assert.EqualValues(t, 2048, loaded.Backends[1].MaxTokens)
	assert.Equal(t, "claude", loaded.Routing.Default)
	require.Len(t, loaded.Routing.Rules, 1)
	assert.Equal(t, []string{"ping"}, loaded.Routing.Rules[0].Keywords)
	assert.Equal(t, 45*time.Second, loaded.Timeouts.Task)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no backends", func(c *Config) { c.Backends = nil }},
		{"missing id", func(c *Config) { c.Backends[0].ID = "" }},
		{"duplicate id", func(c *Config) { c.Backends = append(c.Backends, c.Backends[0]) }},
		{"unknown provider", func(c *Config) { c.Backends[0].Provider = "openai" }},
		{"unknown default", func(c *Config) { c.Routing.Default = "ghost" }},
		{"rule to unknown backend", func(c *Config) {
			c.Routing.Rules = []router.RuleSpec{{Name: "r", Backend: "ghost"}}
		}},
		{"unknown journal driver", func(c *Config) { c.Journal.Driver = "postgres" }},
		{"negative timeout", func(c *Config) { c.Timeouts.Task = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			var cfgErr *models.ConfigurationError
			assert.ErrorAs(t, cfg.Validate(), &cfgErr)
		})
	}
}

func TestDefaultBackend(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "echo", cfg.DefaultBackend())

	cfg.Routing.Default = "other"
	assert.Equal(t, "other", cfg.DefaultBackend())
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	assert.Equal(t, "expanded-value", expandEnv("${TEST_VAR}"))
	assert.Equal(t, "prefix-expanded-value-suffix", expandEnv("prefix-${TEST_VAR}-suffix"))
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	assert.Equal(t, "/custom/config/maestro", getUserConfigDir())
	assert.Equal(t, "/custom/config/maestro/config.yaml", GetUserConfigPath())
}
