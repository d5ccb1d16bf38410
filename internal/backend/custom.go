package backend

import (
	"context"
	"time"

	"github.com/ShayCichocki/maestro/pkg/models"
)

// HandlerFunc produces the output text for a task.
type HandlerFunc func(ctx context.Context, task models.Task) (string, error)

// StreamHandlerFunc produces output incrementally through emit.
type StreamHandlerFunc func(ctx context.Context, task models.Task, emit func(text string)) error

// CustomMetadata is stored in TaskResult.Metadata by Custom backends.
type CustomMetadata struct {
	Handler  string `json:"handler"`
	Streamed bool   `json:"streamed"`
}

// Custom is a backend driven by a caller-supplied handler.
type Custom struct {
	id            string
	handler       HandlerFunc
	streamHandler StreamHandlerFunc
}

// CustomOption configures a Custom backend.
type CustomOption func(*Custom)

// WithStreamHandler sets a handler used by StreamExecute.
func WithStreamHandler(h StreamHandlerFunc) CustomOption {
	return func(c *Custom) { c.streamHandler = h }
}

// NewCustom creates a handler-backed backend. A nil handler is rejected here so
// misconfiguration surfaces at startup.
func NewCustom(id string, handler HandlerFunc, opts ...CustomOption) (*Custom, error) {
	if handler == nil {
		return nil, &models.ConfigurationError{BackendID: id, Reason: "custom backend requires a handler"}
	}
	c := &Custom{id: id, handler: handler}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ID implements Backend.
func (c *Custom) ID() string {
	return c.id
}

// Execute implements Backend.
func (c *Custom) Execute(ctx context.Context, task models.Task) (models.TaskResult, error) {
	if c.handler == nil {
		return models.TaskResult{}, &models.ConfigurationError{BackendID: c.id, Reason: "custom backend requires a handler"}
	}

	start := time.Now()
	output, err := c.handler(ctx, task)
	if err != nil {
		return models.TaskResult{}, &models.BackendExecutionError{BackendID: c.id, Err: err}
	}
	return c.result(task, output, start, false), nil
}

// StreamExecute implements Streamer. Without a stream handler the whole
// output is delivered as one text-delta chunk.
func (c *Custom) StreamExecute(ctx context.Context, task models.Task, onChunk ChunkFunc) (models.TaskResult, error) {
	if c.streamHandler == nil {
		result, err := c.Execute(ctx, task)
		if err != nil {
			return result, err
		}
		if result.Output != "" {
			onChunk(models.NewChunk(models.ChunkTextDelta, result.Output))
		}
		return result, nil
	}

	start := time.Now()
	var output []byte
	err := c.streamHandler(ctx, task, func(text string) {
		output = append(output, text...)
		onChunk(models.NewChunk(models.ChunkTextDelta, text))
	})
	if err != nil {
		return models.TaskResult{}, &models.BackendExecutionError{BackendID: c.id, Err: err}
	}
	return c.result(task, string(output), start, true), nil
}

func (c *Custom) result(task models.Task, output string, start time.Time, streamed bool) models.TaskResult {
	return models.TaskResult{
		TaskID:    task.ID,
		BackendID: c.id,
		Output:    output,
		Metadata:  CustomMetadata{Handler: c.id, Streamed: streamed},
		LatencyMs: models.Since(start),
		Timestamp: time.Now(),
	}
}

var _ Streamer = (*Custom)(nil)
