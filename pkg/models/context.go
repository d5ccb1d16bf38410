package models

import (
	"maps"
	"time"
)

// HistoryEntry is one completed exchange recorded against a context.
type HistoryEntry struct {
	Task      Task       `json:"task"`
	Result    TaskResult `json:"result"`
	Timestamp time.Time  `json:"timestamp"`
}

// Context is per-conversation state shared by tasks with the same context id.
type Context struct {
	ID        string         `json:"id"`
	Values    map[string]any `json:"values"`
	History   []HistoryEntry `json:"history"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Clone returns a copy whose values map and history slice are not shared
// with the receiver.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	out.Values = maps.Clone(c.Values)
	if out.Values == nil {
		out.Values = make(map[string]any)
	}
	out.History = append([]HistoryEntry(nil), c.History...)
	return &out
}
