package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/ShayCichocki/maestro/internal/stream"
	"github.com/ShayCichocki/maestro/pkg/models"
)

// Streamer starts and stops streamed tasks. *orchestrator.Orchestrator
// implements it.
type Streamer interface {
	Stream(ctx context.Context, task models.Task, cb stream.Callbacks) (*stream.Session, error)
	StopStream(taskID string) bool
}

// ChatConfig controls how prompts are turned into tasks.
type ChatConfig struct {
	ContextID string
	TaskType  string
	Backend   string
	System    string
}

// ChunkMsg carries a non-terminal chunk of the reply to TaskID.
type ChunkMsg struct {
	TaskID string
	Chunk  models.StreamChunk
}

// ProgressMsg carries the progress fraction of the reply to TaskID.
type ProgressMsg struct {
	TaskID   string
	Fraction float64
}

// ReplyDoneMsg is sent when the reply to TaskID completed.
type ReplyDoneMsg struct {
	TaskID string
	Result models.TaskResult
}

// ReplyErrMsg is sent when the reply to TaskID failed.
type ReplyErrMsg struct {
	TaskID string
	Err    error
}

const (
	userPrefix = "> "
	notePrefix = "· "
)

// ChatApp is the model for the streaming chat.
type ChatApp struct {
	streamer   Streamer
	cfg        ChatConfig
	input      *InputField
	transcript *Transcript
	newID      func() string

	// msgs bridges session callbacks into the program.
	msgs   chan tea.Msg
	ctx    context.Context
	cancel context.CancelFunc

	activeTask string
	progress   float64
	status     string
	statusErr  bool
	width      int
	height     int
	quitting   bool

	titleStyle    lipgloss.Style
	userStyle     lipgloss.Style
	noteStyle     lipgloss.Style
	hintStyle     lipgloss.Style
	errorStyle    lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
}

// NewChatApp creates a chat bound to s.
func NewChatApp(s Streamer, cfg ChatConfig) *ChatApp {
	if cfg.ContextID == "" {
		cfg.ContextID = models.DefaultContextID
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &ChatApp{
		streamer:   s,
		cfg:        cfg,
		input:      NewInputField(),
		transcript: NewTranscript(DefaultBufferSize),
		newID:      uuid.NewString,
		msgs:       make(chan tea.Msg, 256),
		ctx:        ctx,
		cancel:     cancel,
		width:      80,

		titleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true),

		userStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true),

		noteStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		progressFull: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		progressEmpty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// NewChatProgram creates a Bubbletea program running a ChatApp.
func NewChatProgram(s Streamer, cfg ChatConfig) (*tea.Program, *ChatApp) {
	app := NewChatApp(s, cfg)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// Close cancels the reply being streamed, if any.
func (a *ChatApp) Close() {
	a.cancel()
}

// Init implements tea.Model.
func (a *ChatApp) Init() tea.Cmd {
	return tea.Batch(a.input.Focus(), a.waitForMsg)
}

// Update implements tea.Model.
func (a *ChatApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.SetWidth(msg.Width)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			a.quitting = true
			a.cancel()
			return a, tea.Quit
		case "esc":
			a.stop()
			return a, nil
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd

	case PromptSubmittedMsg:
		a.submit(msg.Prompt)
		return a, nil

	case ChunkMsg:
		if msg.TaskID == a.activeTask {
			switch msg.Chunk.Type {
			case models.ChunkTextDelta:
				a.transcript.Write(msg.Chunk.Content)
			case models.ChunkToolCall:
				a.transcript.Line(notePrefix + "tool call: " + msg.Chunk.Content)
			}
		}
		return a, a.waitForMsg

	case ProgressMsg:
		if msg.TaskID == a.activeTask {
			a.progress = msg.Fraction
		}
		return a, a.waitForMsg

	case ReplyDoneMsg:
		if msg.TaskID == a.activeTask {
			a.transcript.Flush()
			a.transcript.Line(fmt.Sprintf("%s%s, %.0fms", notePrefix, msg.Result.BackendID, msg.Result.LatencyMs))
			a.finish("done", false)
		}
		return a, a.waitForMsg

	case ReplyErrMsg:
		if msg.TaskID == a.activeTask {
			a.transcript.Flush()
			a.transcript.Line(notePrefix + "error: " + msg.Err.Error())
			a.finish(msg.Err.Error(), true)
		}
		return a, a.waitForMsg
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// submit starts streaming the reply to prompt. Only one reply streams at a time.
func (a *ChatApp) submit(prompt string) {
	if a.activeTask != "" {
		a.status = "a reply is still streaming, press esc to stop it"
		a.statusErr = true
		return
	}

	task := models.Task{
		ID:                 a.newID(),
		Type:               a.cfg.TaskType,
		Input:              prompt,
		System:             a.cfg.System,
		ContextID:          a.cfg.ContextID,
		PreferredBackendID: a.cfg.Backend,
	}
	a.transcript.Line(userPrefix + prompt)

	if _, err := a.streamer.Stream(a.ctx, task, a.callbacks(task.ID)); err != nil {
		a.transcript.Line(notePrefix + "error: " + err.Error())
		a.status = err.Error()
		a.statusErr = true
		return
	}

	a.activeTask = task.ID
	a.progress = 0
	a.status = ""
	a.statusErr = false
}

// stop aborts the active reply. A stopped session invokes no further
// callbacks, so the transcript is closed off here.
func (a *ChatApp) stop() {
	if a.activeTask == "" {
		return
	}
	if a.streamer.StopStream(a.activeTask) {
		a.transcript.Flush()
		a.transcript.Line(notePrefix + "stopped")
		a.finish("stopped", false)
	}
}

func (a *ChatApp) finish(status string, failed bool) {
	a.activeTask = ""
	a.status = status
	a.statusErr = failed
	if !failed {
		a.progress = 1
	}
}

func (a *ChatApp) callbacks(taskID string) stream.Callbacks {
	return stream.Callbacks{
		OnChunk: func(chunk models.StreamChunk) {
			if !chunk.Type.Terminal() {
				a.send(ChunkMsg{TaskID: taskID, Chunk: chunk})
			}
		},
		OnProgress: func(fraction float64) {
			a.send(ProgressMsg{TaskID: taskID, Fraction: fraction})
		},
		OnComplete: func(result models.TaskResult) {
			a.send(ReplyDoneMsg{TaskID: taskID, Result: result})
		},
		OnError: func(err error) {
			a.send(ReplyErrMsg{TaskID: taskID, Err: err})
		},
	}
}

// send runs on a session goroutine. It gives up once the chat is closed.
func (a *ChatApp) send(msg tea.Msg) {
	select {
	case a.msgs <- msg:
	case <-a.ctx.Done():
	}
}

// waitForMsg is the command that hands the next bridged message to Update.
func (a *ChatApp) waitForMsg() tea.Msg {
	select {
	case msg := <-a.msgs:
		return msg
	case <-a.ctx.Done():
		return nil
	}
}

// View implements tea.Model.
func (a *ChatApp) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}

	header := a.titleStyle.Render("maestro chat") + a.hintStyle.Render("  context: "+a.cfg.ContextID)

	bodyHeight := 20
	if a.height > 0 {
		// header, status, input box (3) and footer
		bodyHeight = a.height - 6
	}
	lines := a.transcript.Tail(bodyHeight)
	rendered := make([]string, len(lines))
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, userPrefix):
			rendered[i] = a.userStyle.Render(line)
		case strings.HasPrefix(line, notePrefix):
			rendered[i] = a.noteStyle.Render(line)
		default:
			rendered[i] = line
		}
	}
	body := strings.Join(rendered, "\n")

	footer := a.hintStyle.Render("enter send • esc stop • ctrl+c quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, body, a.statusLine(), a.input.View(), footer)
}

func (a *ChatApp) statusLine() string {
	switch {
	case a.activeTask != "":
		return a.renderProgressBar(a.progress*100, 30)
	case a.statusErr:
		return a.errorStyle.Render(a.status)
	default:
		return a.hintStyle.Render(a.status)
	}
}

// renderProgressBar renders a progress bar.
func (a *ChatApp) renderProgressBar(pct float64, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}

	filled := int(pct / 100 * float64(width))
	empty := width - filled

	bar := a.progressFull.Render(strings.Repeat("█", filled)) +
		a.progressEmpty.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("  %s %.0f%%", bar, pct)
}
