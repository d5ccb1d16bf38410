package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/maestro/internal/config"
	"github.com/ShayCichocki/maestro/internal/contextstore"
	"github.com/ShayCichocki/maestro/internal/state"
)

var contextJSON bool

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Inspect and reset conversations",
	Long: `Inspect and reset conversations kept in the journal.

A conversation is the history of completed tasks sharing a context id.
Commands that take --context restore it before running.`,
}

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openConfiguredJournal()
		if err != nil {
			return err
		}
		defer db.Close()

		summaries, err := db.ListContexts()
		if err != nil {
			return err
		}
		if contextJSON {
			return writeJSON(cmd.OutOrStdout(), summaries)
		}
		if len(summaries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No conversations recorded.")
			return nil
		}
		for _, s := range summaries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %d runs (%d completed)  last %s\n", s.ContextID, s.Runs, s.Completed, s.LastRunAt)
		}
		return nil
	},
}

var contextShowCmd = &cobra.Command{
	Use:   "show <context-id>",
	Short: "Show a conversation's history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openConfiguredJournal()
		if err != nil {
			return err
		}
		defer db.Close()

		store := contextstore.New()
		if _, err := state.Restore(store, db, args[0]); err != nil {
			return err
		}
		snapshot := store.Get(args[0])

		if contextJSON {
			return writeJSON(cmd.OutOrStdout(), snapshot)
		}
		if len(snapshot.History) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s has no history.\n", args[0])
			return nil
		}
		prompt := color.New(color.FgCyan, color.Bold)
		for _, entry := range snapshot.History {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", prompt.Sprint(">"), entry.Task.Input)
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(entry.Result.Output, "\n"))
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", color.HiBlackString("· %s, %.0fms", entry.Result.BackendID, entry.Result.LatencyMs))
		}
		return nil
	},
}

var contextResetCmd = &cobra.Command{
	Use:     "reset <context-id>",
	Aliases: []string{"delete", "rm"},
	Short:   "Forget a conversation's history",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openConfiguredJournal()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.DeleteContextRuns(args[0])
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("removed %d runs from %s", n, args[0]), color.FgGreen)
		return nil
	},
}

func init() {
	contextCmd.PersistentFlags().BoolVar(&contextJSON, "json", false, "Print as JSON")
	contextCmd.AddCommand(contextListCmd)
	contextCmd.AddCommand(contextShowCmd)
	contextCmd.AddCommand(contextResetCmd)
}

// openConfiguredJournal opens the journal named by the configuration. It
// fails when the journal is disabled.
func openConfiguredJournal() (*state.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return journalFor(cfg)
}

func journalFor(cfg *config.Config) (*state.DB, error) {
	if !cfg.Journal.Enabled {
		return nil, fmt.Errorf("the journal is disabled (journal.enabled: false)")
	}
	return openJournal(cfg)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
