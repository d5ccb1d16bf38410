// Package tui provides the terminal chat interface used by the chat command.
//
// The chat streams every prompt through the orchestrator under a single
// context id, so each reply sees the conversation so far. Output appears
// chunk by chunk with a progress bar underneath.
//
// Keys:
//   - Enter submits the prompt
//   - Esc stops the reply being streamed
//   - Ctrl+C quits
//
// Usage:
//
//	program, app := tui.NewChatProgram(orch, tui.ChatConfig{ContextID: "chat"})
//	defer app.Close()
//	if _, err := program.Run(); err != nil {
//	    return err
//	}
package tui
