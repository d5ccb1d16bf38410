package events

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DebugLogger writes timestamped lines to a file. It doubles as a Listener so
// the CLI can attach it to the orchestrator's emitter.
type DebugLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewDebugLogger creates a logger writing to the specified path.
// If the path is empty, returns a no-op logger.
// Creates parent directories if they don't exist.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := &DebugLogger{file: f}
	logger.Log("=== maestro debug log started at %s ===", time.Now().Format(time.RFC3339))

	return logger, nil
}

// Log writes a timestamped message to the debug log.
// If the logger is nil or has no file, this is a no-op.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.file == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, msg)
	l.file.Sync()
}

// OnEvent implements Listener by writing one key=value line per event.
func (l *DebugLogger) OnEvent(e Event) {
	if l == nil || l.file == nil {
		return
	}
	l.Log("%s", FormatEvent(e))
}

// Close closes the log file.
// Safe to call on nil logger or logger without file.
func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// FormatEvent renders an event as space-separated key=value pairs,
// omitting empty fields.
func FormatEvent(e Event) string {
	var b strings.Builder
	b.WriteString("event=")
	b.WriteString(string(e.Type))

	field := func(key, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, " %s=%q", key, value)
	}
	field("task", e.TaskID)
	field("type", e.TaskType)
	field("context", e.ContextID)
	field("backends", strings.Join(e.BackendIDs, ","))
	field("strategy", e.Strategy)
	if e.LatencyMs > 0 {
		fmt.Fprintf(&b, " latency_ms=%.1f", e.LatencyMs)
	}
	if e.Error != nil {
		field("error", e.Error.Error())
	}
	return b.String()
}

var _ Listener = (*DebugLogger)(nil)
