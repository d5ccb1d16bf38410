package models

import "fmt"

// RoutingError is returned when a resolved backend id has no registered backend.
type RoutingError struct {
	BackendID string
	TaskID    string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("no backend registered for id %q (task %s)", e.BackendID, e.TaskID)
}

// BackendExecutionError wraps a provider failure.
type BackendExecutionError struct {
	BackendID string
	Err       error
}

func (e *BackendExecutionError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.BackendID, e.Err)
}

func (e *BackendExecutionError) Unwrap() error {
	return e.Err
}

// AggregationError is returned when results cannot be merged.
type AggregationError struct {
	Reason string
}

func (e *AggregationError) Error() string {
	return "aggregation failed: " + e.Reason
}

// StreamAbortedError is returned by a stream that was stopped by its caller.
type StreamAbortedError struct {
	TaskID string
}

func (e *StreamAbortedError) Error() string {
	return fmt.Sprintf("stream for task %s aborted", e.TaskID)
}

// ConfigurationError reports a backend that cannot run as configured.
type ConfigurationError struct {
	BackendID string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("backend %s misconfigured: %s", e.BackendID, e.Reason)
}
