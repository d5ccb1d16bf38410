// Package stream runs cancellable, chunked executions against a single backend.
package stream

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/maestro/internal/backend"
	"github.com/ShayCichocki/maestro/internal/events"
	"github.com/ShayCichocki/maestro/pkg/models"
)

// Callbacks receive a session's output. All callbacks run on the session's
// goroutine, in chunk order. Any of them may be nil. A callback may stop its
// own session.
type Callbacks struct {
	// OnChunk receives every chunk, including the terminal one.
	OnChunk func(models.StreamChunk)
	// OnProgress receives a fraction in [0, 1].
	OnProgress func(float64)
	// OnComplete receives the final result after the done chunk.
	OnComplete func(models.TaskResult)
	// OnError receives the failure after the error chunk.
	OnError func(error)
}

// Session is one streamed execution.
type Session struct {
	taskID   string
	task     models.Task
	backend  backend.Backend
	cb       Callbacks
	expected int
	emitter  *events.Emitter

	cancel  context.CancelFunc
	stopped atomic.Bool

	// cbMu is held while a callback is admitted and runs; inCallback marks
	// that one is running so a stop issued from inside it does not wait.
	cbMu       sync.Mutex
	inCallback atomic.Bool

	mu         sync.Mutex
	chunks     []models.StreamChunk
	progressed int
	terminated bool

	done   chan struct{}
	result models.TaskResult
	err    error
}

// TaskID returns the id the session was started under.
func (s *Session) TaskID() string {
	return s.taskID
}

// Done is closed when the session has finished, whatever the outcome.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session finishes or ctx is done. A stopped session
// returns a *models.StreamAbortedError.
func (s *Session) Wait(ctx context.Context) (models.TaskResult, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		return models.TaskResult{}, ctx.Err()
	}
}

// Stopped reports whether the session was stopped before it finished.
func (s *Session) Stopped() bool {
	return s.stopped.Load()
}

// Chunks returns a copy of the chunks recorded so far.
func (s *Session) Chunks() []models.StreamChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StreamChunk(nil), s.chunks...)
}

// stop aborts the backend call. Chunks recorded so far are kept. Once the
// terminal chunk is recorded the session can no longer be stopped. It
// reports whether the session was still running.
//
// On return no further callback is entered. A stop racing the admission of
// a callback waits for that callback to return.
func (s *Session) stop() bool {
	s.mu.Lock()
	running := !s.terminated && !s.stopped.Load()
	if running {
		s.stopped.Store(true)
	}
	s.mu.Unlock()
	if !running {
		return false
	}

	s.cancel()
	if !s.inCallback.Load() {
		s.cbMu.Lock()
		s.cbMu.Unlock()
	}
	return true
}

// callback runs fn unless the session was stopped. It reports whether fn ran.
func (s *Session) callback(fn func()) bool {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.stopped.Load() {
		return false
	}
	s.inCallback.Store(true)
	defer s.inCallback.Store(false)
	fn()
	return true
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	s.emitter.Emit(events.Event{Type: events.StreamStarted, TaskID: s.taskID, ContextID: s.task.ContextID, BackendIDs: []string{s.backend.ID()}})

	start := time.Now()
	var (
		result models.TaskResult
		err    error
	)
	if streamer, ok := s.backend.(backend.Streamer); ok {
		result, err = streamer.StreamExecute(ctx, s.task, s.deliver)
	} else {
		result, err = s.backend.Execute(ctx, s.task)
		if err == nil && result.Output != "" {
			s.deliver(models.NewChunk(models.ChunkTextDelta, result.Output))
		}
	}

	if s.stopped.Load() {
		s.aborted()
		return
	}

	if err != nil {
		chunk := models.NewChunk(models.ChunkError, err.Error())
		chunk.Metadata = map[string]any{"backendId": s.backend.ID()}
		if !s.terminate(chunk) {
			s.aborted()
			return
		}
		s.err = err
		if s.cb.OnError != nil {
			s.callback(func() { s.cb.OnError(err) })
		}
		s.emitter.Emit(events.Event{Type: events.StreamFailed, TaskID: s.taskID, TaskType: s.task.Type, ContextID: s.task.ContextID, Input: s.task.Input, BackendIDs: []string{s.backend.ID()}, Error: err})
		return
	}

	final := s.finalResult(result, start)
	if s.cb.OnProgress != nil {
		s.callback(func() { s.cb.OnProgress(1) })
	}
	if !s.terminate(models.NewChunk(models.ChunkDone, "")) {
		s.aborted()
		return
	}
	s.result = final
	if s.cb.OnComplete != nil {
		s.callback(func() { s.cb.OnComplete(final) })
	}
	s.emitter.Emit(events.Event{
		Type:       events.StreamCompleted,
		TaskID:     s.taskID,
		TaskType:   s.task.Type,
		ContextID:  s.task.ContextID,
		BackendIDs: []string{final.BackendID},
		Input:      s.task.Input,
		Output:     final.Output,
		LatencyMs:  final.LatencyMs,
	})
}

// aborted finishes a stopped session.
func (s *Session) aborted() {
	s.err = &models.StreamAbortedError{TaskID: s.taskID}
	s.markTerminated()
	s.emitter.Emit(events.Event{Type: events.StreamStopped, TaskID: s.taskID, TaskType: s.task.Type, ContextID: s.task.ContextID, Input: s.task.Input, BackendIDs: []string{s.backend.ID()}})
}

// deliver records and forwards a non-terminal chunk. Chunks arriving after
// Stop are dropped.
func (s *Session) deliver(chunk models.StreamChunk) {
	if chunk.Type.Terminal() {
		return
	}
	if chunk.Timestamp.IsZero() {
		chunk.Timestamp = time.Now()
	}

	s.mu.Lock()
	if s.terminated || s.stopped.Load() {
		s.mu.Unlock()
		return
	}
	s.chunks = append(s.chunks, chunk)
	s.progressed++
	progress := float64(s.progressed) / float64(s.expected)
	s.mu.Unlock()

	if progress > 0.99 {
		progress = 0.99
	}
	if s.cb.OnChunk != nil {
		s.callback(func() { s.cb.OnChunk(chunk) })
	}
	if s.cb.OnProgress != nil {
		s.callback(func() { s.cb.OnProgress(progress) })
	}
}

// terminate records the single terminal chunk and forwards it. It returns
// false when the session was stopped first, in which case nothing is
// recorded and no callback runs.
func (s *Session) terminate(chunk models.StreamChunk) bool {
	s.mu.Lock()
	if s.terminated || s.stopped.Load() {
		s.mu.Unlock()
		return false
	}
	s.terminated = true
	s.chunks = append(s.chunks, chunk)
	s.mu.Unlock()

	if s.cb.OnChunk != nil {
		s.callback(func() { s.cb.OnChunk(chunk) })
	}
	return true
}

func (s *Session) markTerminated() {
	s.mu.Lock()
	s.terminated = true
	s.mu.Unlock()
}

// finalResult builds the completion result. Its output is the concatenation
// of the text-delta chunks.
func (s *Session) finalResult(result models.TaskResult, start time.Time) models.TaskResult {
	var b strings.Builder
	for _, c := range s.Chunks() {
		if c.Type == models.ChunkTextDelta {
			b.WriteString(c.Content)
		}
	}

	final := result
	final.TaskID = s.taskID
	final.Output = b.String()
	if final.BackendID == "" {
		final.BackendID = s.backend.ID()
	}
	if final.LatencyMs <= 0 {
		final.LatencyMs = models.Since(start)
	}
	if now := time.Now(); final.Timestamp.Before(now) {
		final.Timestamp = now
	}
	return final
}
