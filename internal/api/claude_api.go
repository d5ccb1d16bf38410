package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/maestro/internal/backend"
	"github.com/ShayCichocki/maestro/pkg/models"
)

// DefaultMaxTokens caps each response when the config leaves it unset.
const DefaultMaxTokens = 4096

// DefaultMaxHistory is the number of prior exchanges replayed per request.
const DefaultMaxHistory = 20

// errEmptyResponse is returned when the API answers without content blocks.
var errEmptyResponse = errors.New("malformed response: no content blocks")

// Usage is stored in TaskResult.Metadata by ClaudeBackend.
type Usage struct {
	Provider     Provider `json:"provider"`
	Model        string   `json:"model"`
	InputTokens  int64    `json:"inputTokens"`
	OutputTokens int64    `json:"outputTokens"`
	StopReason   string   `json:"stopReason,omitempty"`
}

// ClaudeBackendConfig contains configuration for ClaudeBackend.
type ClaudeBackendConfig struct {
	// ID is the registry id of the backend.
	ID     string
	Client *Client
	// Model overrides the client's model.
	Model      anthropic.Model
	MaxTokens  int64
	MaxHistory int
}

// ClaudeBackend runs tasks against Claude through the Anthropic SDK.
type ClaudeBackend struct {
	id         string
	client     *Client
	model      anthropic.Model
	maxTokens  int64
	maxHistory int
}

// NewClaudeBackend creates a backend. A missing client is a configuration error.
func NewClaudeBackend(cfg ClaudeBackendConfig) (*ClaudeBackend, error) {
	if cfg.Client == nil {
		return nil, &models.ConfigurationError{BackendID: cfg.ID, Reason: "anthropic client is required"}
	}

	model := cfg.Client.Model()
	if cfg.Model != "" {
		model = cfg.Client.TranslateModel(cfg.Model)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	maxHistory := cfg.MaxHistory
	if maxHistory == 0 {
		maxHistory = DefaultMaxHistory
	}

	return &ClaudeBackend{
		id:         cfg.ID,
		client:     cfg.Client,
		model:      model,
		maxTokens:  maxTokens,
		maxHistory: maxHistory,
	}, nil
}

// ID implements backend.Backend.
func (b *ClaudeBackend) ID() string {
	return b.id
}

// Tracker returns the token counts of every call this backend made.
func (b *ClaudeBackend) Tracker() *TokenTracker {
	return b.client.Tracker()
}

// Execute implements backend.Backend.
func (b *ClaudeBackend) Execute(ctx context.Context, task models.Task) (models.TaskResult, error) {
	start := time.Now()

	resp, err := b.client.sdk().Messages.New(ctx, b.params(task))
	if err != nil {
		return models.TaskResult{}, b.fail(err)
	}
	b.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	if len(resp.Content) == 0 {
		return models.TaskResult{}, b.fail(errEmptyResponse)
	}
	return b.result(task, resp, start), nil
}

// StreamExecute implements backend.Streamer. Text deltas become text-delta
// chunks and each tool_use block start becomes a tool-call chunk.
func (b *ClaudeBackend) StreamExecute(ctx context.Context, task models.Task, onChunk backend.ChunkFunc) (models.TaskResult, error) {
	start := time.Now()

	stream := b.client.sdk().Messages.NewStreaming(ctx, b.params(task))
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return models.TaskResult{}, b.fail(err)
		}

		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if tool, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				chunk := models.NewChunk(models.ChunkToolCall, tool.Name)
				chunk.Metadata = map[string]any{"id": tool.ID}
				onChunk(chunk)
			}
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				onChunk(models.NewChunk(models.ChunkTextDelta, delta.Text))
			}
		}
	}
	if err := stream.Err(); err != nil {
		return models.TaskResult{}, b.fail(err)
	}
	b.client.Tracker().Add(message.Usage.InputTokens, message.Usage.OutputTokens)

	return b.result(task, &message, start), nil
}

// params builds the request: the attached context's history replayed as
// alternating turns, then the task input.
func (b *ClaudeBackend) params(task models.Task) anthropic.MessageNewParams {
	var messages []anthropic.MessageParam
	if task.Context != nil {
		history := task.Context.History
		if b.maxHistory > 0 && len(history) > b.maxHistory {
			history = history[len(history)-b.maxHistory:]
		}
		for _, entry := range history {
			if entry.Task.Input == "" || entry.Result.Output == "" {
				continue
			}
			messages = append(messages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(entry.Task.Input)),
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(entry.Result.Output)),
			)
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(task.Input)))

	params := anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: b.maxTokens,
		Messages:  messages,
	}
	if task.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: task.System}}
	}
	return params
}

func (b *ClaudeBackend) result(task models.Task, msg *anthropic.Message, start time.Time) models.TaskResult {
	var text strings.Builder
	for _, block := range msg.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	return models.TaskResult{
		TaskID:    task.ID,
		BackendID: b.id,
		Output:    text.String(),
		Metadata: Usage{
			Provider:     b.client.Provider(),
			Model:        string(b.model),
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
			StopReason:   string(msg.StopReason),
		},
		LatencyMs: models.Since(start),
		Timestamp: time.Now(),
	}
}

func (b *ClaudeBackend) fail(err error) error {
	return &models.BackendExecutionError{BackendID: b.id, Err: err}
}

var _ backend.Streamer = (*ClaudeBackend)(nil)
