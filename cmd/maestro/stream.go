package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/maestro/internal/stream"
	"github.com/ShayCichocki/maestro/pkg/models"
)

var streamFlags taskFlags

var streamCmd = &cobra.Command{
	Use:   "stream <input...>",
	Short: "Stream a task's output as it is produced",
	Long: `Stream a task from the routed backend, printing output as it arrives.

Ctrl+C stops the stream; partial output stays on screen and the
conversation is left unchanged.

Examples:
  maestro stream "write a limerick about Go channels"
  maestro stream --context notes-1 --backend fast "continue"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStream,
}

func init() {
	streamFlags.register(streamCmd, true)
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	task, err := buildTask(&streamFlags, args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	// Interrupts stop the session rather than cancel its context, so the
	// stream ends as stopped instead of failed.
	interrupted, cancel := interruptContext(context.Background())
	defer cancel()
	ctx, cancelTask := taskContext(context.Background(), cfg)
	defer cancelTask()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.restore(streamFlags.contextID); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	status := cmd.ErrOrStderr()
	session, err := rt.orch.Stream(ctx, task, streamCallbacks(out, status, streamFlags.json))
	if err != nil {
		return err
	}

	select {
	case <-session.Done():
	case <-interrupted.Done():
		rt.orch.StopStream(session.TaskID())
		<-session.Done()
	}

	result, err := session.Wait(context.Background())
	switch {
	case err != nil && session.Stopped():
		fmt.Fprintln(out)
		printStatus(status, "■", "stopped", color.FgYellow)
		return err
	case err != nil:
		return err
	}

	if streamFlags.json {
		return printResult(out, result, true)
	}
	fmt.Fprintln(out)
	printSummary(status, rt, result, task.ContextID)
	return nil
}

// streamCallbacks prints text as it arrives. With asJSON only the final
// result is printed.
func streamCallbacks(out, status io.Writer, asJSON bool) stream.Callbacks {
	if asJSON {
		return stream.Callbacks{}
	}
	return stream.Callbacks{
		OnChunk: func(chunk models.StreamChunk) {
			switch chunk.Type {
			case models.ChunkTextDelta:
				io.WriteString(out, chunk.Content)
			case models.ChunkToolCall:
				printStatus(status, "⚙", "tool call: "+chunk.Content, color.FgCyan)
			}
		},
	}
}
