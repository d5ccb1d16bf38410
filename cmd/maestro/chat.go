package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/maestro/internal/tui"
)

var (
	chatContext string
	chatBackend string
	chatType    string
	chatSystem  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive streaming chat",
	Long: `Open a terminal chat that streams every reply.

All prompts share one conversation. Pass --context to resume an earlier
one from the journal.

Keys: Enter sends, Esc stops the current reply, Ctrl+C quits.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	addChatFlags(chatCmd)
}

func addChatFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&chatContext, "context", "", "Resume this conversation (default: a new one)")
	cmd.Flags().StringVar(&chatBackend, "backend", "", "Backend to use, bypassing routing rules")
	cmd.Flags().StringVar(&chatType, "type", "", "Task type used by routing rules")
	cmd.Flags().StringVar(&chatSystem, "system", "", "System instruction sent with every prompt")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	contextID := chatContext
	if contextID == "" {
		contextID = uuid.NewString()
	}
	if _, err := rt.restore(chatContext); err != nil {
		return err
	}

	program, app := tui.NewChatProgram(rt.orch, tui.ChatConfig{
		ContextID: contextID,
		TaskType:  chatType,
		Backend:   chatBackend,
		System:    chatSystem,
	})
	defer app.Close()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run chat: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Conversation saved as %s\n", contextID)
	return nil
}
