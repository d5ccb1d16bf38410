package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/maestro/internal/state"
)

var (
	historyContext string
	historyTask    string
	historyStatus  string
	historyLimit   int
	historyJSON    bool
	historyPurge   time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs from the journal",
	Long: `List recent task and stream runs, newest first.

Examples:
  maestro history
  maestro history --context review-42 --limit 5
  maestro history --status failed --json
  maestro history --task <task-id>
  maestro history --purge 720h   # drop runs older than 30 days`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyContext, "context", "", "Only runs of this conversation")
	historyCmd.Flags().StringVar(&historyTask, "task", "", "Only runs of this task id")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Only runs with this status: completed, failed, or stopped")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print as JSON")
	historyCmd.Flags().DurationVar(&historyPurge, "purge", 0, "Delete runs older than this before listing")
}

func runHistory(cmd *cobra.Command, args []string) error {
	status := state.RunStatus(strings.ToLower(historyStatus))
	switch status {
	case "", state.RunCompleted, state.RunFailed, state.RunStopped:
	default:
		return fmt.Errorf("invalid status %q: must be completed, failed, or stopped", historyStatus)
	}

	db, err := openConfiguredJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	if historyPurge > 0 {
		n, err := db.PurgeOldRuns(historyPurge)
		if err != nil {
			return err
		}
		printStatus(cmd.ErrOrStderr(), "✓", fmt.Sprintf("purged %d runs older than %s", n, historyPurge), color.FgGreen)
	}

	runs, err := db.ListRuns(state.RunFilter{TaskID: historyTask, ContextID: historyContext, Status: status, Limit: historyLimit})
	if err != nil {
		return err
	}

	if historyJSON {
		return writeJSON(cmd.OutOrStdout(), runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderRuns(runs))

	total, err := db.CountRuns()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d journaled runs\n", len(runs), total)
	return nil
}

// renderRuns formats runs as a table.
func renderRuns(runs []state.Run) string {
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true).
		Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	failedStyle := cellStyle.Foreground(lipgloss.Color("196"))

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.ContextID,
			strings.Join(r.Backends, ","),
			r.Strategy,
			string(r.Status),
			fmt.Sprintf("%.0fms", r.LatencyMs),
			summarize(r),
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("TIME", "CONTEXT", "BACKENDS", "STRATEGY", "STATUS", "LATENCY", "OUTPUT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row < 0 || row >= len(runs):
				return cellStyle
			case runs[row].Status != state.RunCompleted:
				return failedStyle
			default:
				return cellStyle
			}
		})
	return t.String()
}

// summarize returns the first line of the output, or the error, cut to 60
// characters.
func summarize(r state.Run) string {
	text := r.Output
	if r.Status != state.RunCompleted && r.Error != "" {
		text = r.Error
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len([]rune(text)) > 60 {
		text = string([]rune(text)[:57]) + "..."
	}
	return text
}
