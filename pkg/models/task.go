package models

import "time"

// DefaultContextID is used when a task arrives without a context id.
const DefaultContextID = "default"

// AggregatedBackendID is the backend id carried by results produced by
// aggregation rather than a single backend.
const AggregatedBackendID = "aggregated"

// Task represents a unit of work routed to one or more backends.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Type is a free-form tag used by routing rules.
	Type string `json:"type,omitempty"`
	// Input is the prompt text.
	Input string `json:"input"`
	// System is an optional instruction text.
	System string `json:"system,omitempty"`
	// ContextID keys the conversation state in the context store.
	ContextID string `json:"contextId"`
	// PreferredBackendID overrides every routing rule when set.
	PreferredBackendID string `json:"preferredBackendId,omitempty"`
	// Metadata is an open map carried through untouched.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Context is a snapshot of the conversation state attached by the
	// orchestrator right before execution. Backends must treat it as read-only.
	Context *Context `json:"-"`
}

// WithInput returns a copy of the task with its input replaced.
func (t Task) WithInput(input string) Task {
	t.Input = input
	return t
}

// TaskResult is the output of a task on a backend, or of an aggregation.
type TaskResult struct {
	TaskID    string `json:"taskId"`
	BackendID string `json:"backendId"`
	Output    string `json:"output"`
	// Metadata is an opaque per-backend payload. Each backend documents the
	// concrete type it stores here.
	Metadata  any       `json:"metadata,omitempty"`
	LatencyMs float64   `json:"latencyMs"`
	Timestamp time.Time `json:"timestamp"`
}

// Since returns the milliseconds elapsed from start, never negative.
func Since(start time.Time) float64 {
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	if ms < 0 {
		return 0
	}
	return ms
}
