// Package events carries structured orchestration events to listeners.
// The orchestration core emits events instead of logging; collectors decide
// where they go.
package events

import (
	"time"
)

// Type represents the type of orchestration event.
type Type string

const (
	// TaskStarted indicates a task has been routed and is executing.
	TaskStarted Type = "task_started"
	// TaskCompleted indicates a task completed successfully.
	TaskCompleted Type = "task_completed"
	// TaskFailed indicates a task failed.
	TaskFailed Type = "task_failed"
	// ContextCreated indicates a context was created on first access.
	ContextCreated Type = "context_created"
	// ContextUpdated indicates a context was patched.
	ContextUpdated Type = "context_updated"
	// ContextReset indicates a context's history was cleared.
	ContextReset Type = "context_reset"
	// ContextDeleted indicates a context was removed.
	ContextDeleted Type = "context_deleted"
	// StreamStarted indicates a stream session began.
	StreamStarted Type = "stream_started"
	// StreamCompleted indicates a stream emitted its done chunk.
	StreamCompleted Type = "stream_completed"
	// StreamFailed indicates a stream emitted its error chunk.
	StreamFailed Type = "stream_failed"
	// StreamStopped indicates a stream was stopped by its caller.
	StreamStopped Type = "stream_stopped"
)

// Event is a single structured observation.
type Event struct {
	// Type is the kind of event.
	Type Type
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// TaskType is the routing tag of the related task.
	TaskType string
	// ContextID is the ID of the related context, if applicable.
	ContextID string
	// BackendIDs lists the backends involved, in invocation order.
	BackendIDs []string
	// Strategy is set for collaborative tasks.
	Strategy string
	// Input is the task input for terminal task and stream events.
	Input string
	// Output is the final output for completion events.
	Output string
	// LatencyMs is the result latency for completion events.
	LatencyMs float64
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Listener receives events. Listeners are called synchronously on the
// emitting goroutine and must not block for long.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// OnEvent implements Listener.
func (f ListenerFunc) OnEvent(e Event) {
	f(e)
}
