package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/maestro/internal/contextstore"
	"github.com/ShayCichocki/maestro/pkg/models"
)

var (
	collabFlags    taskFlags
	collabBackends []string
	collabStrategy string
	collabShowRaw  bool
)

var collabCmd = &cobra.Command{
	Use:   "collab <input...>",
	Short: "Run a task on several backends and combine the results",
	Long: `Run a task on several backends and aggregate their results.

Strategies (--strategy):
  - sequential: each backend receives the previous backend's output
  - parallel:   all backends run at once; outputs are joined per backend
  - voting:     all backends run at once; the fastest answer wins

Without --backends the routing rules pick routing.collaborators backends.

Examples:
  maestro collab --backends fast,heavy "explain this error"
  maestro collab --strategy sequential --backends draft,review "write a haiku"
  maestro collab --strategy voting --show-raw "capital of Australia?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCollab,
}

func init() {
	collabFlags.register(collabCmd, false)
	collabCmd.Flags().StringSliceVar(&collabBackends, "backends", nil, "Backends to run, in order (default: chosen by routing)")
	collabCmd.Flags().StringVar(&collabStrategy, "strategy", string(models.StrategyParallel), "Aggregation strategy: sequential, parallel, or voting")
	collabCmd.Flags().BoolVar(&collabShowRaw, "show-raw", false, "Also print every backend's own result")
}

func runCollab(cmd *cobra.Command, args []string) error {
	strategy, err := models.ParseStrategy(collabStrategy)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	task, err := buildTask(&collabFlags, args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext(context.Background())
	defer cancel()
	ctx, cancelTask := taskContext(ctx, cfg)
	defer cancelTask()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if n, err := rt.restore(collabFlags.contextID); err != nil {
		return err
	} else if n > 0 {
		printStatus(cmd.ErrOrStderr(), "↺", fmt.Sprintf("restored %d earlier exchanges", n), color.FgCyan)
	}

	result, err := rt.orch.ExecuteCollaborativeTask(ctx, task, collabBackends, strategy)
	if err != nil {
		return err
	}

	raw, _ := rt.orch.Contexts().Get(task.ContextID).Values[contextstore.KeyLastRawResults].([]models.TaskResult)
	if collabShowRaw && !collabFlags.json {
		renderRawResults(cmd.OutOrStdout(), raw)
	}

	if err := printResult(cmd.OutOrStdout(), result, collabFlags.json); err != nil {
		return err
	}
	printStatus(cmd.ErrOrStderr(), "✓", fmt.Sprintf("%s across %s in %.0fms%s (context %s)",
		strategy, strings.Join(backendIDs(raw), ", "), result.LatencyMs, usageNote(rt.tokenUsage()), task.ContextID), color.FgGreen)
	return nil
}

func backendIDs(results []models.TaskResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.BackendID
	}
	return ids
}

// renderRawResults draws each backend's result in its own box.
func renderRawResults(w io.Writer, results []models.TaskResult) {
	titleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("205")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	for _, r := range results {
		title := titleStyle.Render(fmt.Sprintf("%s · %.0fms", r.BackendID, r.LatencyMs))
		fmt.Fprintln(w, boxStyle.Render(title+"\n"+strings.TrimRight(r.Output, "\n")))
	}
}
