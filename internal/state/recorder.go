package state

import (
	"log"

	"github.com/ShayCichocki/maestro/internal/events"
)

// Recorder journals finished tasks and streams. It is an events.Listener;
// write failures are logged and never reach the orchestrator.
type Recorder struct {
	store RunStore
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store RunStore) *Recorder {
	return &Recorder{store: store}
}

// OnEvent implements events.Listener.
func (r *Recorder) OnEvent(e events.Event) {
	run, ok := runFromEvent(e)
	if !ok {
		return
	}
	if err := r.store.RecordRun(run); err != nil {
		log.Printf("[journal] failed to record run for task %s: %v", e.TaskID, err)
	}
}

// runFromEvent maps terminal task and stream events to a Run.
func runFromEvent(e events.Event) (*Run, bool) {
	run := &Run{
		TaskID:    e.TaskID,
		TaskType:  e.TaskType,
		ContextID: e.ContextID,
		Backends:  e.BackendIDs,
		Strategy:  e.Strategy,
		Input:     e.Input,
		Output:    e.Output,
		LatencyMs: e.LatencyMs,
		CreatedAt: e.Timestamp,
	}

	switch e.Type {
	case events.TaskCompleted, events.StreamCompleted:
		run.Status = RunCompleted
	case events.TaskFailed, events.StreamFailed:
		run.Status = RunFailed
	case events.StreamStopped:
		run.Status = RunStopped
	default:
		return nil, false
	}

	if e.Type == events.StreamCompleted || e.Type == events.StreamFailed || e.Type == events.StreamStopped {
		run.Strategy = "stream"
	}
	if e.Error != nil {
		run.Error = e.Error.Error()
	}
	return run, true
}

var _ events.Listener = (*Recorder)(nil)
