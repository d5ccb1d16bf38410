// Package backend defines the provider-agnostic contract the orchestration
// core uses to invoke generative-model backends.
package backend

import (
	"context"

	"github.com/ShayCichocki/maestro/pkg/models"
)

// ChunkFunc receives streamed chunks in order.
type ChunkFunc func(chunk models.StreamChunk)

// Backend invokes one generative-model provider.
type Backend interface {
	// ID returns the registry id of this backend.
	ID() string
	// Execute runs the task to completion.
	Execute(ctx context.Context, task models.Task) (models.TaskResult, error)
}

// Streamer is a Backend that can deliver incremental output.
// Implementations call onChunk for text-delta and tool-call chunks only;
// terminal chunks are emitted by the stream session.
type Streamer interface {
	Backend
	StreamExecute(ctx context.Context, task models.Task, onChunk ChunkFunc) (models.TaskResult, error)
}
