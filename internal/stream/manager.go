package stream

import (
	"context"
	"sync"

	"github.com/ShayCichocki/maestro/internal/backend"
	"github.com/ShayCichocki/maestro/internal/events"
	"github.com/ShayCichocki/maestro/pkg/models"
)

// DefaultExpectedChunks is the chunk count treated as a full stream when
// reporting progress.
const DefaultExpectedChunks = 64

// Manager tracks stream sessions by task id. Finished sessions stay
// registered so their buffers can be read until Clear is called.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	emitter  *events.Emitter
	expected int
}

// Option configures a Manager.
type Option func(*Manager)

// WithEmitter sets the emitter for stream lifecycle events.
func WithEmitter(e *events.Emitter) Option {
	return func(m *Manager) { m.emitter = e }
}

// WithExpectedChunks sets the chunk count used as the progress denominator.
func WithExpectedChunks(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.expected = n
		}
	}
}

// NewManager creates a Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		expected: DefaultExpectedChunks,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins streaming task on b under taskID and returns immediately.
// A session already running under the same id is stopped first; its Wait
// returns a *models.StreamAbortedError.
func (m *Manager) Start(ctx context.Context, taskID string, b backend.Backend, task models.Task, cb Callbacks) (*Session, error) {
	if b == nil {
		return nil, &models.RoutingError{TaskID: taskID}
	}
	if taskID == "" {
		taskID = task.ID
	}
	if task.ID == "" {
		task.ID = taskID
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		taskID:   taskID,
		task:     task,
		backend:  b,
		cb:       cb,
		expected: m.expected,
		emitter:  m.emitter,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	prev := m.sessions[taskID]
	m.sessions[taskID] = s
	m.mu.Unlock()

	if prev != nil {
		prev.stop()
	}

	go s.run(runCtx)
	return s, nil
}

// Stop aborts the stream running under taskID. No callback is entered once
// Stop has returned, though one already running may still be finishing.
// The chunks recorded so far stay available through Buffer. A stream whose
// terminal chunk is already recorded is not stopped. It reports whether a
// running stream was stopped.
func (m *Manager) Stop(taskID string) bool {
	s := m.session(taskID)
	if s == nil {
		return false
	}
	return s.stop()
}

// Buffer returns the chunks recorded for taskID, or nil.
func (m *Manager) Buffer(taskID string) []models.StreamChunk {
	s := m.session(taskID)
	if s == nil {
		return nil
	}
	return s.Chunks()
}

// Clear drops the recorded chunks for taskID. Finished sessions are
// forgotten entirely.
func (m *Manager) Clear(taskID string) {
	m.mu.Lock()
	s := m.sessions[taskID]
	if s != nil {
		select {
		case <-s.done:
			delete(m.sessions, taskID)
		default:
		}
	}
	m.mu.Unlock()

	if s != nil {
		s.clear()
	}
}

// StopAll stops every running stream.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.stop()
	}
}

func (m *Manager) session(taskID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[taskID]
}
