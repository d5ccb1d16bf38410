package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/maestro/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify maestro configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/maestro/config.yaml
Project-specific overrides can be placed in .maestro.yaml
Backends and routing rules are edited in the file itself.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		switch len(args) {
		case 0:
			displayAllConfig(cmd.OutOrStdout(), cfg)
			return nil
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		default:
			return setConfigKey(cmd.OutOrStdout(), cfg, args[0], args[1])
		}
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write the default configuration to the user config file, or to
--config when given. An existing file is kept unless --force is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.GetUserConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			printStatus(cmd.OutOrStdout(), "⚠", fmt.Sprintf("%s already exists (use --force to overwrite)", path), color.FgYellow)
			return nil
		}

		if err := writeConfig(config.Default(), path); err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", "Wrote "+path, color.FgGreen)
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			printStatus(cmd.OutOrStdout(), "⚠", "ANTHROPIC_API_KEY not set (needed for anthropic backends)", color.FgYellow)
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show which config files are read",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if configPath != "" {
			fmt.Fprintf(out, "config: %s\n", configPath)
			return
		}
		fmt.Fprintf(out, "user:    %s\n", config.GetUserConfigPath())
		project := config.GetProjectConfigPath()
		if project == "" {
			project = "(none)"
		}
		fmt.Fprintf(out, "project: %s\n", project)
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// writeConfig saves cfg to path, creating its directory.
func writeConfig(cfg *config.Config, path string) error {
	if path == config.GetUserConfigPath() {
		return config.Save(cfg)
	}
	return config.SaveToPath(cfg, path)
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	key, err := config.ResolveAPIKey(cfg)
	fmt.Fprintf(w, "anthropic.api_key: %s (%s)\n", key.Masked(), key.Source)
	if ids := cfg.AnthropicBackends(); err != nil && len(ids) > 0 {
		fmt.Fprintf(w, "  warning: no API key is set for %s\n", strings.Join(ids, ", "))
	}
	fmt.Fprintf(w, "anthropic.base_url: %s\n", cfg.Anthropic.BaseURL)
	for _, b := range cfg.Backends {
		fmt.Fprintf(w, "backend %s: provider=%s model=%s\n", b.ID, b.Provider, b.Model)
	}
	fmt.Fprintf(w, "routing.default: %s\n", cfg.DefaultBackend())
	fmt.Fprintf(w, "routing.rules: %d\n", len(cfg.Routing.Rules))
	fmt.Fprintf(w, "routing.rules_file: %s\n", cfg.Routing.RulesFile)
	fmt.Fprintf(w, "routing.collaborators: %d\n", cfg.Routing.Collaborators)
	fmt.Fprintf(w, "stream.expected_chunks: %d\n", cfg.Stream.ExpectedChunks)
	fmt.Fprintf(w, "journal.enabled: %t\n", cfg.Journal.Enabled)
	fmt.Fprintf(w, "journal.path: %s\n", cfg.Journal.Path)
	fmt.Fprintf(w, "journal.driver: %s\n", cfg.Journal.Driver)
	fmt.Fprintf(w, "timeouts.task: %s\n", cfg.Timeouts.Task)
	fmt.Fprintf(w, "log.path: %s\n", cfg.Log.Path)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(w io.Writer, cfg *config.Config, key, value string) error {
	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	path := configPath
	if path == "" {
		path = config.GetUserConfigPath()
	}
	if err := writeConfig(cfg, path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintf(w, "Set %s = %s\n", key, value)
	return nil
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.base_url":
		return cfg.Anthropic.BaseURL, nil
	case "routing.default":
		return cfg.Routing.Default, nil
	case "routing.rules_file":
		return cfg.Routing.RulesFile, nil
	case "routing.collaborators":
		return strconv.Itoa(cfg.Routing.Collaborators), nil
	case "stream.expected_chunks":
		return strconv.Itoa(cfg.Stream.ExpectedChunks), nil
	case "journal.enabled":
		return strconv.FormatBool(cfg.Journal.Enabled), nil
	case "journal.path":
		return cfg.Journal.Path, nil
	case "journal.driver":
		return cfg.Journal.Driver, nil
	case "timeouts.task":
		return cfg.Timeouts.Task.String(), nil
	case "log.path":
		return cfg.Log.Path, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		// ${VAR} references are resolved at load time
		if !strings.HasPrefix(value, "${") {
			if err := config.ValidateAPIKey(value); err != nil {
				return err
			}
		}
		cfg.Anthropic.APIKey = value
	case "anthropic.base_url":
		cfg.Anthropic.BaseURL = value
	case "routing.default":
		cfg.Routing.Default = value
	case "routing.rules_file":
		cfg.Routing.RulesFile = value
	case "routing.collaborators":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for routing.collaborators: %w", err)
		}
		cfg.Routing.Collaborators = n
	case "stream.expected_chunks":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for stream.expected_chunks: %w", err)
		}
		cfg.Stream.ExpectedChunks = n
	case "journal.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for journal.enabled: %w", err)
		}
		cfg.Journal.Enabled = b
	case "journal.path":
		cfg.Journal.Path = value
	case "journal.driver":
		cfg.Journal.Driver = value
	case "timeouts.task":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for timeouts.task: %w", err)
		}
		cfg.Timeouts.Task = d
	case "log.path":
		cfg.Log.Path = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
