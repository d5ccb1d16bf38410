package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/maestro/internal/backend"
	"github.com/ShayCichocki/maestro/internal/orchestrator"
	"github.com/ShayCichocki/maestro/internal/router"
	"github.com/ShayCichocki/maestro/internal/stream"
	"github.com/ShayCichocki/maestro/pkg/models"
)

var _ Streamer = (*orchestrator.Orchestrator)(nil)

// fakeStreamer replays a scripted reply on its own goroutine.
type fakeStreamer struct {
	reply   []string
	err     error
	fail    error
	hold    bool
	tasks   []models.Task
	stopped []string
}

func (f *fakeStreamer) Stream(ctx context.Context, task models.Task, cb stream.Callbacks) (*stream.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	if f.hold {
		return nil, nil
	}

	go func() {
		if f.fail != nil {
			cb.OnChunk(models.NewChunk(models.ChunkError, f.fail.Error()))
			cb.OnError(f.fail)
			return
		}
		var out strings.Builder
		for i, part := range f.reply {
			cb.OnChunk(models.NewChunk(models.ChunkTextDelta, part))
			cb.OnProgress(float64(i+1) / float64(len(f.reply)+1))
			out.WriteString(part)
		}
		cb.OnProgress(1)
		cb.OnChunk(models.NewChunk(models.ChunkDone, ""))
		cb.OnComplete(models.TaskResult{TaskID: task.ID, BackendID: "fake", Output: out.String(), LatencyMs: 12})
	}()
	return nil, nil
}

func (f *fakeStreamer) StopStream(taskID string) bool {
	f.stopped = append(f.stopped, taskID)
	return true
}

func nextMsg(t *testing.T, app *ChatApp) tea.Msg {
	t.Helper()
	got := make(chan tea.Msg, 1)
	go func() { got <- app.waitForMsg() }()
	select {
	case msg := <-got:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a streamed message")
		return nil
	}
}

// drain feeds bridged messages to the app until the reply finishes.
func drain(t *testing.T, app *ChatApp) {
	t.Helper()
	for {
		msg := nextMsg(t, app)
		app.Update(msg)
		switch msg.(type) {
		case ReplyDoneMsg, ReplyErrMsg:
			return
		}
	}
}

func newTestChat(s Streamer) *ChatApp {
	app := NewChatApp(s, ChatConfig{ContextID: "chat", Backend: "fast", TaskType: "qa"})
	ids := 0
	app.newID = func() string {
		ids++
		return "task-" + string(rune('0'+ids))
	}
	return app
}

func TestNewChatApp_Defaults(t *testing.T) {
	app := NewChatApp(&fakeStreamer{}, ChatConfig{})
	defer app.Close()

	assert.Equal(t, models.DefaultContextID, app.cfg.ContextID)
	assert.NotNil(t, app.input)
	assert.NotNil(t, app.transcript)
	assert.NotNil(t, app.Init())
}

func TestChatApp_StreamsReply(t *testing.T) {
	fake := &fakeStreamer{reply: []string{"Hel", "lo\nthere"}}
	app := newTestChat(fake)
	defer app.Close()

	app.Update(PromptSubmittedMsg{Prompt: "hi"})

	require.Equal(t, "task-1", app.activeTask)
	require.Len(t, fake.tasks, 1)
	task := fake.tasks[0]
	assert.Equal(t, "chat", task.ContextID)
	assert.Equal(t, "fast", task.PreferredBackendID)
	assert.Equal(t, "qa", task.Type)
	assert.Equal(t, "hi", task.Input)

	drain(t, app)

	assert.Equal(t, []string{"> hi", "Hello", "there", "· fake, 12ms"}, app.transcript.Lines())
	assert.Empty(t, app.activeTask)
	assert.Equal(t, 1.0, app.progress)
	assert.Equal(t, "done", app.status)
}

func TestChatApp_ReplyError(t *testing.T) {
	fake := &fakeStreamer{fail: errors.New("backend down")}
	app := newTestChat(fake)
	defer app.Close()

	app.Update(PromptSubmittedMsg{Prompt: "hi"})
	drain(t, app)

	lines := app.transcript.Lines()
	assert.Equal(t, "· error: backend down", lines[len(lines)-1])
	assert.True(t, app.statusErr)
}

func TestChatApp_StreamStartError(t *testing.T) {
	fake := &fakeStreamer{err: &models.RoutingError{BackendID: "ghost"}}
	app := newTestChat(fake)
	defer app.Close()

	app.Update(PromptSubmittedMsg{Prompt: "hi"})

	assert.Empty(t, app.activeTask)
	assert.True(t, app.statusErr)
	lines := app.transcript.Lines()
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], notePrefix+"error: "), "transcript %q", lines)
}

func TestChatApp_EscStopsReply(t *testing.T) {
	fake := &fakeStreamer{hold: true}
	app := newTestChat(fake)
	defer app.Close()

	app.Update(PromptSubmittedMsg{Prompt: "hi"})
	app.Update(ChunkMsg{TaskID: "task-1", Chunk: models.NewChunk(models.ChunkTextDelta, "par")})
	app.Update(tea.KeyMsg{Type: tea.KeyEsc})

	require.Equal(t, []string{"task-1"}, fake.stopped)
	assert.Empty(t, app.activeTask)

	// Late chunks from the stopped reply are ignored
	app.Update(ChunkMsg{TaskID: "task-1", Chunk: models.NewChunk(models.ChunkTextDelta, "tial")})

	assert.Equal(t, []string{"> hi", "par", "· stopped"}, app.transcript.Lines())
}

func TestChatApp_EscWithoutReply(t *testing.T) {
	fake := &fakeStreamer{}
	app := newTestChat(fake)
	defer app.Close()

	app.Update(tea.KeyMsg{Type: tea.KeyEsc})

	assert.Empty(t, fake.stopped, "nothing to stop without an active reply")
}

func TestChatApp_RejectsPromptWhileStreaming(t *testing.T) {
	fake := &fakeStreamer{hold: true}
	app := newTestChat(fake)
	defer app.Close()

	app.Update(PromptSubmittedMsg{Prompt: "first"})
	app.Update(PromptSubmittedMsg{Prompt: "second"})

	assert.Len(t, fake.tasks, 1)
	assert.Equal(t, "task-1", app.activeTask)
	assert.True(t, app.statusErr, "busy status")
}

func TestChatApp_ToolCallChunk(t *testing.T) {
	app := newTestChat(&fakeStreamer{hold: true})
	defer app.Close()

	app.Update(PromptSubmittedMsg{Prompt: "hi"})
	app.Update(ChunkMsg{TaskID: "task-1", Chunk: models.NewChunk(models.ChunkToolCall, "lookup")})

	lines := app.transcript.Lines()
	assert.Equal(t, "· tool call: lookup", lines[len(lines)-1])
}

func TestChatApp_CtrlC(t *testing.T) {
	app := newTestChat(&fakeStreamer{})

	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	updated := model.(*ChatApp)
	assert.True(t, updated.quitting)
	assert.NotNil(t, cmd, "quit command")
	assert.Error(t, updated.ctx.Err(), "context is cancelled on quit")
	assert.Nil(t, updated.waitForMsg(), "no messages once closed")
	assert.Equal(t, "Goodbye!\n", updated.View())
}

func TestChatApp_WindowSize(t *testing.T) {
	app := newTestChat(&fakeStreamer{})
	defer app.Close()

	app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	assert.Equal(t, 100, app.width)
	assert.Equal(t, 30, app.height)
	assert.Equal(t, 100, app.input.width)
}

func TestChatApp_View(t *testing.T) {
	app := newTestChat(&fakeStreamer{hold: true})
	defer app.Close()

	app.Update(PromptSubmittedMsg{Prompt: "hello there"})
	app.Update(ProgressMsg{TaskID: "task-1", Fraction: 0.5})

	view := app.View()
	for _, want := range []string{"maestro chat", "context: chat", "hello there", "50%", "esc stop"} {
		assert.Contains(t, view, want)
	}
}

func TestChatApp_WithOrchestrator(t *testing.T) {
	registry, err := backend.NewRegistry(backend.NewEcho(backend.EchoConfig{ID: "echo"}))
	require.NoError(t, err)
	orch, err := orchestrator.New(orchestrator.RequiredConfig{Registry: registry, Router: router.New("echo")})
	require.NoError(t, err)

	app := NewChatApp(orch, ChatConfig{ContextID: "chat"})
	defer app.Close()

	app.Update(PromptSubmittedMsg{Prompt: "one two"})
	drain(t, app)

	lines := app.transcript.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "one two", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "· echo, "), "transcript %q", lines)
	assert.Len(t, orch.Contexts().History("chat"), 1)
}
