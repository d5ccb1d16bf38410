package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategy_Valid(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		want     bool
	}{
		{"parallel is valid", StrategyParallel, true},
		{"sequential is valid", StrategySequential, true},
		{"voting is valid", StrategyVoting, true},
		{"empty string is invalid", Strategy(""), false},
		{"unknown strategy is invalid", Strategy("consensus"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.strategy.Valid())
		})
	}
}

func TestParseStrategy(t *testing.T) {
	got, err := ParseStrategy("  Sequential ")
	require.NoError(t, err)
	assert.Equal(t, StrategySequential, got)

	_, err = ParseStrategy("majority")
	var aggErr *AggregationError
	require.ErrorAs(t, err, &aggErr)
	assert.Contains(t, err.Error(), "majority")
}

func TestStrategy_Concurrent(t *testing.T) {
	assert.True(t, StrategyParallel.Concurrent())
	assert.True(t, StrategyVoting.Concurrent())
	assert.False(t, StrategySequential.Concurrent())
}

func TestChunkType_Terminal(t *testing.T) {
	tests := []struct {
		typ  ChunkType
		want bool
	}{
		{ChunkTextDelta, false},
		{ChunkToolCall, false},
		{ChunkError, true},
		{ChunkDone, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Terminal())
		})
	}
}

func TestTask_JSONFieldNames(t *testing.T) {
	task := Task{
		ID:                 "t1",
		Input:              "Hello",
		ContextID:          "s1",
		PreferredBackendID: "fast",
		Context:            &Context{ID: "s1"},
	}

	data, err := json.Marshal(task)
	require.NoError(t, err)

	s := string(data)
	for _, field := range []string{`"id":"t1"`, `"contextId":"s1"`, `"preferredBackendId":"fast"`} {
		assert.Contains(t, s, field)
	}
	assert.NotContains(t, s, "history", "attached context is not serialized")
}

func TestTask_WithInput(t *testing.T) {
	original := Task{ID: "t1", Input: "a"}
	next := original.WithInput("b")

	assert.Equal(t, "b", next.Input)
	assert.Equal(t, "t1", next.ID)
	assert.Equal(t, "a", original.Input, "receiver is unchanged")
}

func TestContext_Clone(t *testing.T) {
	now := time.Now()
	c := &Context{
		ID:        "s1",
		Values:    map[string]any{"k": "v"},
		History:   []HistoryEntry{{Task: Task{ID: "t1"}, Timestamp: now}},
		CreatedAt: now,
	}

	clone := c.Clone()
	clone.Values["k"] = "changed"
	clone.History[0].Task.ID = "changed"
	clone.History = append(clone.History, HistoryEntry{})

	assert.Equal(t, "v", c.Values["k"], "clone shares values map")
	assert.Equal(t, "t1", c.History[0].Task.ID, "clone shares history backing array")
	assert.Len(t, c.History, 1)
	assert.Equal(t, now, clone.CreatedAt)
}

func TestContext_CloneNil(t *testing.T) {
	var c *Context
	assert.Nil(t, c.Clone())

	empty := (&Context{ID: "x"}).Clone()
	assert.NotNil(t, empty.Values)
}

func TestErrors_Messages(t *testing.T) {
	cause := errors.New("rate limited")
	execErr := &BackendExecutionError{BackendID: "fast", Err: cause}
	assert.ErrorIs(t, execErr, cause)
	assert.Contains(t, execErr.Error(), "rate limited")

	routeErr := &RoutingError{BackendID: "ghost", TaskID: "t1"}
	assert.Contains(t, routeErr.Error(), "ghost")
}
