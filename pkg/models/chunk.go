package models

import "time"

// ChunkType classifies a streamed chunk.
type ChunkType string

const (
	ChunkTextDelta ChunkType = "text-delta"
	ChunkToolCall  ChunkType = "tool-call"
	ChunkError     ChunkType = "error"
	ChunkDone      ChunkType = "done"
)

// Terminal reports whether the chunk type ends a stream.
func (c ChunkType) Terminal() bool {
	return c == ChunkDone || c == ChunkError
}

// StreamChunk is one piece of incremental output.
type StreamChunk struct {
	Type      ChunkType      `json:"type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewChunk builds a chunk stamped with the current time.
func NewChunk(typ ChunkType, content string) StreamChunk {
	return StreamChunk{Type: typ, Content: content, Timestamp: time.Now()}
}
