// Package contextstore keeps per-conversation state in memory.
//
// Contexts are created lazily on first access and never returned by
// reference: every read hands out a copy. Concurrent updates to the same id
// are applied one at a time but not ordered; the last write wins.
package contextstore

import (
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/maestro/internal/events"
	"github.com/ShayCichocki/maestro/pkg/models"
)

// Bag keys written by Update when a patch carries a task/result pair.
const (
	KeyLastTask       = "lastTask"
	KeyLastResult     = "lastResult"
	KeyLastRawResults = "lastRawResults"
)

// Patch describes a context update.
type Patch struct {
	// Values are merged into the context's bag, top-level keys only.
	Values map[string]any
	// LastTask and LastResult, when both set, append a history entry.
	LastTask   *models.Task
	LastResult *models.TaskResult
	// RawResults holds per-backend results of a collaborative task.
	RawResults []models.TaskResult
}

// Store is an in-memory, process-local context store.
type Store struct {
	mu       sync.Mutex
	contexts map[string]*models.Context
	emitter  *events.Emitter
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithEmitter sets the emitter used for context lifecycle events.
func WithEmitter(e *events.Emitter) Option {
	return func(s *Store) { s.emitter = e }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		contexts: make(map[string]*models.Context),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a snapshot of the context, creating it if it does not exist.
func (s *Store) Get(id string) *models.Context {
	s.mu.Lock()
	c, created := s.getOrCreate(id)
	snapshot := c.Clone()
	s.mu.Unlock()

	if created {
		s.emitter.Emit(events.Event{Type: events.ContextCreated, ContextID: id})
	}
	return snapshot
}

// Update merges patch into the context and returns the new snapshot.
func (s *Store) Update(id string, patch Patch) *models.Context {
	s.mu.Lock()
	c, created := s.getOrCreate(id)
	now := s.now()

	maps.Copy(c.Values, patch.Values)
	if patch.LastTask != nil && patch.LastResult != nil {
		task := *patch.LastTask
		task.Context = nil
		c.Values[KeyLastTask] = task
		c.Values[KeyLastResult] = *patch.LastResult
		c.History = append(c.History, models.HistoryEntry{
			Task:      task,
			Result:    *patch.LastResult,
			Timestamp: now,
		})
	}
	if len(patch.RawResults) > 0 {
		c.Values[KeyLastRawResults] = append([]models.TaskResult(nil), patch.RawResults...)
	}
	c.UpdatedAt = now
	snapshot := c.Clone()
	s.mu.Unlock()

	if created {
		s.emitter.Emit(events.Event{Type: events.ContextCreated, ContextID: id})
	}
	s.emitter.Emit(events.Event{Type: events.ContextUpdated, ContextID: id})
	return snapshot
}

// Reset empties the history while keeping CreatedAt and the value bag.
// Unknown ids are created.
func (s *Store) Reset(id string) *models.Context {
	s.mu.Lock()
	c, created := s.getOrCreate(id)
	c.History = nil
	c.UpdatedAt = s.later(c.UpdatedAt)
	snapshot := c.Clone()
	s.mu.Unlock()

	if created {
		s.emitter.Emit(events.Event{Type: events.ContextCreated, ContextID: id})
	}
	s.emitter.Emit(events.Event{Type: events.ContextReset, ContextID: id})
	return snapshot
}

// Delete removes the context. A later Get recreates it empty.
// It reports whether the context existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	_, ok := s.contexts[id]
	delete(s.contexts, id)
	s.mu.Unlock()

	if ok {
		s.emitter.Emit(events.Event{Type: events.ContextDeleted, ContextID: id})
	}
	return ok
}

// History returns a copy of the context's history, creating the context if needed.
func (s *Store) History(id string) []models.HistoryEntry {
	return s.Get(id).History
}

// IDs returns the ids of all live contexts, sorted.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.contexts))
	for id := range s.contexts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// getOrCreate must be called with s.mu held.
func (s *Store) getOrCreate(id string) (*models.Context, bool) {
	if c, ok := s.contexts[id]; ok {
		return c, false
	}
	now := s.now()
	c := &models.Context{
		ID:        id,
		Values:    make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.contexts[id] = c
	return c, true
}

// later returns the current time, nudged forward so that it is strictly
// after prev even on coarse clocks.
func (s *Store) later(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}
