package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/maestro/internal/backend"
	"github.com/ShayCichocki/maestro/internal/events"
	"github.com/ShayCichocki/maestro/pkg/models"
)

// stepBackend emits one text-delta per value received on steps and blocks
// on ctx otherwise. Closing steps ends the stream successfully.
type stepBackend struct {
	id    string
	steps chan string
	err   error
}

func (b *stepBackend) ID() string { return b.id }

func (b *stepBackend) Execute(ctx context.Context, task models.Task) (models.TaskResult, error) {
	return b.StreamExecute(ctx, task, func(models.StreamChunk) {})
}

func (b *stepBackend) StreamExecute(ctx context.Context, task models.Task, onChunk backend.ChunkFunc) (models.TaskResult, error) {
	for {
		select {
		case <-ctx.Done():
			return models.TaskResult{}, ctx.Err()
		case s, ok := <-b.steps:
			if !ok {
				if b.err != nil {
					return models.TaskResult{}, b.err
				}
				return models.TaskResult{TaskID: task.ID, BackendID: b.id, Output: "ignored", LatencyMs: 7}, nil
			}
			if s == "tool" {
				onChunk(models.NewChunk(models.ChunkToolCall, "search"))
				continue
			}
			onChunk(models.NewChunk(models.ChunkTextDelta, s))
		}
	}
}

// recorder collects callback invocations.
type recorder struct {
	mu        sync.Mutex
	chunks    []models.StreamChunk
	progress  []float64
	completed []models.TaskResult
	errs      []error
	chunkSeen chan struct{}
}

func newRecorder() *recorder {
	return &recorder{chunkSeen: make(chan struct{}, 100)}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnChunk: func(c models.StreamChunk) {
			r.mu.Lock()
			r.chunks = append(r.chunks, c)
			r.mu.Unlock()
			r.chunkSeen <- struct{}{}
		},
		OnProgress: func(p float64) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
		},
		OnComplete: func(res models.TaskResult) {
			r.mu.Lock()
			r.completed = append(r.completed, res)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() ([]models.StreamChunk, []float64, []models.TaskResult, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.StreamChunk(nil), r.chunks...), append([]float64(nil), r.progress...),
		append([]models.TaskResult(nil), r.completed...), append([]error(nil), r.errs...)
}

func waitChunk(t *testing.T, r *recorder) {
	t.Helper()
	select {
	case <-r.chunkSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk")
	}
}

func TestStart_CompletesWithConcatenatedOutput(t *testing.T) {
	b := &stepBackend{id: "fast", steps: make(chan string, 4)}
	b.steps <- "Hel"
	b.steps <- "tool"
	b.steps <- "lo"
	close(b.steps)

	rec := newRecorder()
	m := NewManager(WithExpectedChunks(4))
	s, err := m.Start(context.Background(), "t1", b, models.Task{Input: "hi"}, rec.callbacks())
	require.NoError(t, err)

	result, err := s.Wait(context.Background())
	require.NoError(t, err)

	chunks, progress, completed, errs := rec.snapshot()
	require.Len(t, chunks, 4)
	assert.Equal(t, models.ChunkTextDelta, chunks[0].Type)
	assert.Equal(t, models.ChunkToolCall, chunks[1].Type)
	assert.Equal(t, models.ChunkDone, chunks[3].Type)
	assert.Empty(t, errs)

	require.Len(t, completed, 1)
	assert.Equal(t, "Hello", completed[0].Output)
	assert.Equal(t, "t1", completed[0].TaskID)
	assert.Equal(t, "fast", completed[0].BackendID)
	assert.Equal(t, 7.0, completed[0].LatencyMs)
	assert.Equal(t, completed[0], result)

	assert.Equal(t, []float64{0.25, 0.5, 0.75, 1}, progress)
	assert.Equal(t, chunks, m.Buffer("t1"))
	assert.False(t, s.Stopped())
}

func TestStart_ErrorEmitsSingleTerminalChunk(t *testing.T) {
	cause := errors.New("content policy")
	b := &stepBackend{id: "fast", steps: make(chan string, 1), err: cause}
	b.steps <- "partial"
	close(b.steps)

	rec := newRecorder()
	m := NewManager()
	s, err := m.Start(context.Background(), "t1", b, models.Task{}, rec.callbacks())
	require.NoError(t, err)

	_, err = s.Wait(context.Background())
	assert.ErrorIs(t, err, cause)

	chunks, _, completed, errs := rec.snapshot()
	require.Len(t, chunks, 2)
	assert.Equal(t, models.ChunkError, chunks[1].Type)
	assert.Equal(t, "content policy", chunks[1].Content)
	assert.Empty(t, completed)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], cause)
}

func TestStop_NoCallbacksAfterward(t *testing.T) {
	b := &stepBackend{id: "fast", steps: make(chan string, 4)}

	rec := newRecorder()
	m := NewManager()
	s, err := m.Start(context.Background(), "t1", b, models.Task{}, rec.callbacks())
	require.NoError(t, err)

	b.steps <- "one"
	waitChunk(t, rec)

	assert.True(t, m.Stop("t1"))
	b.steps <- "two"
	close(b.steps)

	_, err = s.Wait(context.Background())
	var aborted *models.StreamAbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, "t1", aborted.TaskID)
	assert.True(t, s.Stopped())

	chunks, _, completed, errs := rec.snapshot()
	require.Len(t, chunks, 1)
	assert.Equal(t, "one", chunks[0].Content)
	assert.Empty(t, completed)
	assert.Empty(t, errs)

	buffered := m.Buffer("t1")
	require.Len(t, buffered, 1)
	assert.Equal(t, "one", buffered[0].Content)

	assert.False(t, m.Stop("t1"), "second stop is a no-op")
}

func TestStop_FromInsideChunkCallback(t *testing.T) {
	b := backend.NewEcho(backend.EchoConfig{ID: "echo"})
	m := NewManager()

	var mu sync.Mutex
	var got []string
	completed := false
	s, err := m.Start(context.Background(), "t1", b, models.Task{Input: "a b c d"}, Callbacks{
		OnChunk: func(c models.StreamChunk) {
			mu.Lock()
			got = append(got, c.Content)
			mu.Unlock()
			m.Stop("t1")
		},
		OnComplete: func(models.TaskResult) { completed = true },
	})
	require.NoError(t, err)

	_, err = s.Wait(context.Background())
	var aborted *models.StreamAbortedError
	assert.ErrorAs(t, err, &aborted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a "}, got)
	assert.False(t, completed)
}

func TestStop_DuringCallbackSkipsTheRest(t *testing.T) {
	b := &stepBackend{id: "fast", steps: make(chan string, 2)}
	entered := make(chan struct{})
	release := make(chan struct{})

	var mu sync.Mutex
	var chunks []string
	var progress []float64
	completed := false
	m := NewManager()
	s, err := m.Start(context.Background(), "t1", b, models.Task{}, Callbacks{
		OnChunk: func(c models.StreamChunk) {
			mu.Lock()
			chunks = append(chunks, c.Content)
			first := len(chunks) == 1
			mu.Unlock()
			if first {
				close(entered)
				<-release
			}
		},
		OnProgress: func(p float64) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		},
		OnComplete: func(models.TaskResult) {
			mu.Lock()
			completed = true
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	b.steps <- "one"
	<-entered
	assert.True(t, m.Stop("t1"))
	b.steps <- "two"
	close(b.steps)
	close(release)

	_, err = s.Wait(context.Background())
	var aborted *models.StreamAbortedError
	require.ErrorAs(t, err, &aborted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one"}, chunks)
	assert.Empty(t, progress, "progress for the interrupted chunk is not reported")
	assert.False(t, completed)
}

func TestStop_AfterCompletionKeepsResult(t *testing.T) {
	m := NewManager()
	completed := make(chan models.TaskResult, 1)
	s, err := m.Start(context.Background(), "t1", backend.NewEcho(backend.EchoConfig{ID: "echo"}), models.Task{Input: "hi"}, Callbacks{
		OnChunk: func(c models.StreamChunk) {
			if c.Type == models.ChunkDone {
				m.Stop("t1")
			}
		},
		OnComplete: func(r models.TaskResult) { completed <- r },
	})
	require.NoError(t, err)

	result, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, s.Stopped())
	require.Len(t, completed, 1)
	assert.Equal(t, result, <-completed)
}

func TestStart_SameTaskIDStopsPrevious(t *testing.T) {
	first := &stepBackend{id: "first", steps: make(chan string)}
	second := &stepBackend{id: "second", steps: make(chan string, 1)}
	second.steps <- "fresh"
	close(second.steps)

	m := NewManager()
	s1, err := m.Start(context.Background(), "t1", first, models.Task{}, Callbacks{})
	require.NoError(t, err)
	s2, err := m.Start(context.Background(), "t1", second, models.Task{}, Callbacks{})
	require.NoError(t, err)

	_, err = s1.Wait(context.Background())
	var aborted *models.StreamAbortedError
	assert.ErrorAs(t, err, &aborted)

	result, err := s2.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", result.Output)

	buf := m.Buffer("t1")
	require.Len(t, buf, 2)
	assert.Equal(t, "fresh", buf[0].Content)
}

func TestStart_NonStreamingBackendFallback(t *testing.T) {
	m := NewManager()
	rec := newRecorder()

	s, err := m.Start(context.Background(), "t1", plainBackend{}, models.Task{Input: "x"}, rec.callbacks())
	require.NoError(t, err)
	result, err := s.Wait(context.Background())
	require.NoError(t, err)

	chunks, _, _, _ := rec.snapshot()
	require.Len(t, chunks, 2)
	assert.Equal(t, "plain:x", chunks[0].Content)
	assert.Equal(t, models.ChunkDone, chunks[1].Type)
	assert.Equal(t, "plain:x", result.Output)
}

func TestStart_ParentContextCancellationIsAFailure(t *testing.T) {
	b := &stepBackend{id: "fast", steps: make(chan string)}
	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()

	s, err := NewManager().Start(ctx, "t1", b, models.Task{}, rec.callbacks())
	require.NoError(t, err)
	cancel()

	_, err = s.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)

	chunks, _, _, errs := rec.snapshot()
	require.Len(t, chunks, 1)
	assert.Equal(t, models.ChunkError, chunks[0].Type)
	assert.Len(t, errs, 1)
}

func TestClear(t *testing.T) {
	m := NewManager()
	s, err := m.Start(context.Background(), "t1", backend.NewEcho(backend.EchoConfig{ID: "echo"}), models.Task{Input: "hi"}, Callbacks{})
	require.NoError(t, err)
	_, err = s.Wait(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, m.Buffer("t1"))
	m.Clear("t1")
	assert.Empty(t, m.Buffer("t1"))
	assert.False(t, m.Stop("t1"))
}

func TestManager_EmitsLifecycleEvents(t *testing.T) {
	var mu sync.Mutex
	var types []events.Type
	emitter := events.NewEmitter(events.ListenerFunc(func(e events.Event) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	}))

	m := NewManager(WithEmitter(emitter))
	s, err := m.Start(context.Background(), "t1", backend.NewEcho(backend.EchoConfig{ID: "echo"}), models.Task{Input: "hi"}, Callbacks{})
	require.NoError(t, err)
	_, err = s.Wait(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.Type{events.StreamStarted, events.StreamCompleted}, types)
}

func TestStart_NilBackend(t *testing.T) {
	_, err := NewManager().Start(context.Background(), "t1", nil, models.Task{}, Callbacks{})
	var routeErr *models.RoutingError
	assert.ErrorAs(t, err, &routeErr)
}

type plainBackend struct{}

func (plainBackend) ID() string { return "plain" }

func (plainBackend) Execute(_ context.Context, task models.Task) (models.TaskResult, error) {
	return models.TaskResult{TaskID: task.ID, BackendID: "plain", Output: "plain:" + task.Input}, nil
}
