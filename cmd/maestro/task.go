package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/maestro/pkg/models"
)

// taskFlags are the task fields shared by run, collab and stream.
type taskFlags struct {
	taskType  string
	contextID string
	backend   string
	system    string
	metadata  map[string]string
	json      bool
}

func (f *taskFlags) register(cmd *cobra.Command, withBackend bool) {
	cmd.Flags().StringVar(&f.taskType, "type", "", "Task type used by routing rules")
	cmd.Flags().StringVar(&f.contextID, "context", "", "Continue this conversation (default: a new one)")
	cmd.Flags().StringVar(&f.system, "system", "", "System instruction sent with the task")
	cmd.Flags().StringToStringVar(&f.metadata, "meta", nil, "Task metadata as key=value pairs")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print the result as JSON")
	if withBackend {
		cmd.Flags().StringVar(&f.backend, "backend", "", "Backend to use, bypassing routing rules")
	}
}

// buildTask turns the arguments into a task. A single "-" argument reads the
// input from stdin. Without --context the task gets a fresh context id.
func buildTask(f *taskFlags, args []string, stdin io.Reader) (models.Task, error) {
	input := strings.Join(args, " ")
	if input == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return models.Task{}, fmt.Errorf("read stdin: %w", err)
		}
		input = string(data)
	}
	if strings.TrimSpace(input) == "" {
		return models.Task{}, fmt.Errorf("task input is empty")
	}

	contextID := f.contextID
	if contextID == "" {
		contextID = uuid.NewString()
	}

	task := models.Task{
		Type:               f.taskType,
		Input:              input,
		System:             f.system,
		ContextID:          contextID,
		PreferredBackendID: f.backend,
	}
	if len(f.metadata) > 0 {
		task.Metadata = make(map[string]any, len(f.metadata))
		for k, v := range f.metadata {
			task.Metadata[k] = v
		}
	}
	return task, nil
}

// printResult writes the result output, or the whole result as JSON.
func printResult(w io.Writer, result models.TaskResult, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	output := result.Output
	if !strings.HasSuffix(output, "\n") {
		output += "\n"
	}
	_, err := io.WriteString(w, output)
	return err
}

// printSummary writes a one-line summary of a finished task.
func printSummary(w io.Writer, rt *runtime, result models.TaskResult, contextID string) {
	printStatus(w, "✓", fmt.Sprintf("%s in %.0fms%s (context %s)",
		result.BackendID, result.LatencyMs, usageNote(rt.tokenUsage()), contextID), color.FgGreen)
}

// usageNote describes token usage, or is empty when no API calls were made.
func usageNote(input, output int64, calls int) string {
	switch calls {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf(", %d in / %d out tokens", input, output)
	default:
		return fmt.Sprintf(", %d in / %d out tokens over %d calls", input, output, calls)
	}
}

// printStatus prints a status line with a colored symbol
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}
