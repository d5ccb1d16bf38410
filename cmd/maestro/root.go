package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logPath    string
)

var rootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Multi-backend AI task orchestrator",
	Long: `Maestro routes tasks to AI backends, keeps per-conversation context,
and combines the answers of several backends.

With no arguments, launches the interactive chat.

Core capabilities:
- Rule-based routing of each task to one backend
- Collaborative execution across backends (sequential, parallel, voting)
- Cancellable streaming with progress
- A local journal of every run, used to resume conversations

Configuration is read from ~/.config/maestro/config.yaml and the nearest
.maestro.yaml, then from MAESTRO_* environment variables.`,
	SilenceUsage: true,
	RunE:         runChat,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file to use instead of the user and project config")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "Append orchestration events to this file")

	addChatFlags(rootCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(collabCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
