package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var runFlags taskFlags

var runCmd = &cobra.Command{
	Use:   "run <input...>",
	Short: "Run a task on one backend",
	Long: `Run a task on the backend chosen by the routing rules.

The first matching rule wins; without a match the default backend is used.
--backend bypasses the rules. Use "-" as the input to read it from stdin.

Pass --context to continue an earlier conversation: its history is
restored from the journal and sent along with the task.

Examples:
  maestro run "summarize this changelog"
  maestro run --type code --context review-42 "and the tests?"
  git diff | maestro run --backend heavy -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runFlags.register(runCmd, true)
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	task, err := buildTask(&runFlags, args, cmd.InOrStdin())
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

	if n, err := rt.restore(runFlags.contextID); err != nil {
		return err
	} else if n > 0 {
		printStatus(cmd.ErrOrStderr(), "↺", fmt.Sprintf("restored %d earlier exchanges", n), color.FgCyan)
	}

	result, err := rt.orch.ExecuteTask(ctx, task)
	if err != nil {
		return err
	}

	if err := printResult(cmd.OutOrStdout(), result, runFlags.json); err != nil {
		return err
	}
	printSummary(cmd.ErrOrStderr(), rt, result, task.ContextID)
	return nil
}
